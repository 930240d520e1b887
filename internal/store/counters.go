package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CounterStore is the atomic counter primitive shared by change cursors,
// quota usage and invoice numbering.
//
// IncrementAndGet adds delta to key (creating it at zero) and returns the
// new value. IncrementBounded does the same only if the new value stays at
// or below ceiling; otherwise it returns a *CeilingError and leaves the counter
// untouched.
type CounterStore interface {
	IncrementAndGet(ctx context.Context, key string, delta int64) (int64, error)
	IncrementBounded(ctx context.Context, key string, delta, ceiling int64) (int64, error)
}

// CeilingError reports a bounded increment that would pass its ceiling.
type CeilingError struct {
	Key     string
	Current int64
	Delta   int64
	Max     int64
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("counter %s: %d + %d exceeds %d", e.Key, e.Current, e.Delta, e.Max)
}

// IsCeilingError reports whether err is a *CeilingError and returns it.
func IsCeilingError(err error) (*CeilingError, bool) {
	var ce *CeilingError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var _ CounterStore = conn{}

// IncrementAndGet implements CounterStore.
func (c conn) IncrementAndGet(ctx context.Context, key string, delta int64) (int64, error) {
	var value int64
	err := c.queryRow(ctx, `
		INSERT INTO counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = counters.value + excluded.value
		RETURNING value
	`, key, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return value, nil
}

// IncrementBounded implements CounterStore. The ceiling check and the
// increment are one statement, so two callers can never both pass a
// ceiling that only one of them fits under.
func (c conn) IncrementBounded(ctx context.Context, key string, delta, ceiling int64) (int64, error) {
	if delta > ceiling {
		current, err := c.CounterValue(ctx, key)
		if err != nil {
			return 0, err
		}
		return 0, &CeilingError{Key: key, Current: current, Delta: delta, Max: ceiling}
	}

	var value int64
	err := c.queryRow(ctx, `
		INSERT INTO counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = counters.value + excluded.value
		WHERE counters.value + excluded.value <= ?
		RETURNING value
	`, key, delta, ceiling).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		current, cerr := c.CounterValue(ctx, key)
		if cerr != nil {
			return 0, cerr
		}
		return 0, &CeilingError{Key: key, Current: current, Delta: delta, Max: ceiling}
	}
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return value, nil
}

// CounterValue returns the current value of key, zero if it was never set.
func (c conn) CounterValue(ctx context.Context, key string) (int64, error) {
	var value int64
	err := c.queryRow(ctx, `SELECT value FROM counters WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return value, nil
}
