// Package schema validates JSON payloads against CUE definitions embedded
// in payloads.cue.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

//go:embed payloads.cue
var payloadsCUE string

// Definition names.
const (
	OrderCreate        = "#OrderCreate"
	OrderAddPayment    = "#OrderAddPayment"
	OrderUpdateStatus  = "#OrderUpdateStatus"
	OrderAssignCourier = "#OrderAssignCourier"
	PushRequest        = "#PushRequest"
	PullRequest        = "#PullRequest"
	ClaimRequest       = "#ClaimRequest"
)

// ForMutation returns the payload definition of a mutation type.
func ForMutation(t domain.MutationType) string {
	switch t {
	case domain.MutationOrderCreate:
		return OrderCreate
	case domain.MutationOrderAddPayment:
		return OrderAddPayment
	case domain.MutationOrderUpdateLaundryStatus, domain.MutationOrderUpdateCourierStatus:
		return OrderUpdateStatus
	case domain.MutationOrderAssignCourier:
		return OrderAssignCourier
	}
	return ""
}

// Validator checks JSON documents against the embedded definitions.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so
// validation is serialized with a mutex.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(payloadsCUE, cue.Filename("payloads.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &Validator{ctx: ctx, root: root}, nil
}

// MustNewValidator is NewValidator for package init and tests. The schema
// is embedded, so a failure is a programming error.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidationError is the first violation found in a document.
type ValidationError struct {
	Definition string
	Path       string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Validate unifies the JSON document with a definition and requires the
// result to be concrete. An empty document validates as {}.
func (v *Validator) Validate(definition string, document []byte) error {
	if len(strings.TrimSpace(string(document))) == 0 {
		document = []byte("{}")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	def := v.root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema: unknown definition %s", definition)
	}

	data := v.ctx.CompileBytes(document, cue.Filename("payload.json"))
	if err := data.Err(); err != nil {
		return &ValidationError{Definition: definition, Message: "payload is not valid JSON."}
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return firstViolation(definition, err)
	}
	return nil
}

// firstViolation turns the first CUE error into a client-facing message.
func firstViolation(definition string, err error) *ValidationError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Definition: definition, Message: err.Error()}
	}
	first := errs[0]

	var path []string
	for _, p := range first.Path() {
		if !strings.HasPrefix(p, "#") {
			path = append(path, p)
		}
	}
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)

	ve := &ValidationError{Definition: definition, Path: strings.Join(path, ".")}
	switch {
	case strings.Contains(msg, "incomplete value"):
		ve.Message = ve.Path + " is required."
		if ve.Path == "" {
			ve.Message = "A required field is missing."
		}
	default:
		ve.Message = msg
	}
	return ve
}
