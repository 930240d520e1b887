package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran and failed: store unreachable, server stopped
	ExitCommandError = 2 // the command itself is wrong: flags, config, fixtures
)

// Error kinds reported in the JSON error envelope.
const (
	KindUsage    = "USAGE"
	KindConfig   = "CONFIG"
	KindFixtures = "FIXTURES"
	KindStore    = "STORE"
	KindBroker   = "BROKER"
	KindCache    = "CACHE"
	KindServer   = "SERVER"
	KindNotFound = "NOT_FOUND"
)

// ExitError is a command failure together with the exit code it maps to.
type ExitError struct {
	Code    int
	Kind    string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// commandError reports a malformed invocation (exit code 2).
func commandError(kind, message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Kind: kind, Message: message, Err: err}
}

// runtimeError reports a failure while running a valid command (exit code 1).
func runtimeError(kind, message string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Kind: kind, Message: message, Err: err}
}

// asExitError returns err as an ExitError. Errors raised by cobra itself
// (missing arguments, required flags) become usage errors.
func asExitError(err error) *ExitError {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	return commandError(KindUsage, err.Error(), nil)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// Response is the document every command writes with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Printer writes command results as text or JSON. Out carries results;
// Diag carries verbose and error text.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// Result prints a successful result. In text mode a value with a Text
// method renders itself.
func (p *Printer) Result(v any) error {
	if p.Format == "json" {
		return json.NewEncoder(p.Out).Encode(Response{Status: "ok", Data: v})
	}
	if t, ok := v.(interface{ Text() string }); ok {
		_, err := io.WriteString(p.Out, t.Text())
		return err
	}
	_, err := fmt.Fprintln(p.Out, v)
	return err
}

// Failure prints a failed command. JSON goes to Out so a script reads
// exactly one document either way; text goes to Diag.
func (p *Printer) Failure(err error) error {
	ee := asExitError(err)
	if p.Format == "json" {
		re := &ResponseError{Code: ee.Kind, Message: ee.Message}
		if ee.Err != nil {
			re.Details = ee.Err.Error()
		}
		return json.NewEncoder(p.Out).Encode(Response{Status: "error", Error: re})
	}

	_, werr := fmt.Fprintf(p.diag(), "error [%s]: %s\n", ee.Kind, ee.Error())
	return werr
}

// Debugf writes a diagnostic line in verbose mode only.
func (p *Printer) Debugf(format string, args ...any) {
	if p.Verbose {
		fmt.Fprintf(p.diag(), format+"\n", args...)
	}
}

func (p *Printer) diag() io.Writer {
	if p.Diag != nil {
		return p.Diag
	}
	return p.Out
}
