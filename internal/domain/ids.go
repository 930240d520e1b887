package domain

import (
	"sync"
	"time"
	_ "time/tzdata" // outlet timezones resolve without system zoneinfo

	"github.com/google/uuid"
)

// IDGenerator mints entity ids. Implemented by UUIDv7Generator (production)
// and SequenceGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a hyphenated UUIDv7. Panics if the random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-0001", "<prefix>-0002", ... for
// deterministic tests and golden files.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// NewID returns the next id in sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return formatSeqID(g.prefix, g.n)
}

func formatSeqID(prefix string, n int) string {
	const digits = "0123456789"
	buf := []byte{'0', '0', '0', '0'}
	for i := len(buf) - 1; i >= 0 && n > 0; i-- {
		buf[i] = digits[n%10]
		n /= 10
	}
	return prefix + "-" + string(buf)
}

// Clock abstracts wall-clock time so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FormatTime renders timestamps the way every table and response stores them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a timestamp stored by FormatTime or sent by a client
// (RFC 3339, with or without fractional seconds).
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
