package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Pass failed (store outage, malformed data, commit error)
	ExitCommandError = 2 // Command error (bad config, state store not readable, etc.)
	ExitLocked       = 3 // Another pass holds the lock
)

// Error codes reported in JSON output.
const (
	ErrCodeConfig = "E001" // configuration missing or invalid
	ErrCodeState  = "E002" // state store could not be opened or written
	ErrCodePass   = "E003" // pass aborted
	ErrCodeLocked = "E004" // another pass is running
)

// ExitError carries the process exit code of a failed command. Details are
// included in the JSON error body.
type ExitError struct {
	Code    int
	Message string
	Details any
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// errorCode maps an exit code to the JSON error code.
func errorCode(exit int) string {
	switch exit {
	case ExitCommandError:
		return ErrCodeConfig
	case ExitLocked:
		return ErrCodeLocked
	default:
		return ErrCodePass
	}
}

// GetExitCode extracts the exit code from an error. Errors without one
// exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func errorDetails(err error) any {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Details
	}
	return nil
}

// Envelope is the JSON body of every command result and server response.
type Envelope struct {
	Status string   `json:"status"` // "ok" or "error"
	Data   any      `json:"data,omitempty"`
	Error  *Problem `json:"error,omitempty"`
}

// Problem describes a failed command or request.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func okEnvelope(data any) Envelope { return Envelope{Status: "ok", Data: data} }

func errorEnvelope(code, message string, details any) Envelope {
	return Envelope{Status: "error", Error: &Problem{Code: code, Message: message, Details: details}}
}

// printer writes command results as a JSON envelope or as text.
type printer struct {
	json    bool
	out     io.Writer
	diag    io.Writer
	verbose bool
}

// print encodes data with --format json and calls text otherwise.
func (p *printer) print(data any, text func(w io.Writer) error) error {
	if p.json {
		return json.NewEncoder(p.out).Encode(okEnvelope(data))
	}
	return text(p.out)
}

// printf prints a one-line text result, or data as JSON.
func (p *printer) printf(data any, format string, args ...any) error {
	return p.print(data, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		return err
	})
}

// fail reports err. JSON errors go to out so callers can parse one
// document; text errors go to diag.
func (p *printer) fail(err error) {
	code := errorCode(GetExitCode(err))
	if p.json {
		_ = json.NewEncoder(p.out).Encode(errorEnvelope(code, err.Error(), errorDetails(err)))
		return
	}
	fmt.Fprintf(p.diag, "Error: %v\n", err)
	if p.verbose {
		if d := errorDetails(err); d != nil {
			fmt.Fprintf(p.diag, "Details: %v\n", d)
		}
	}
}

// sync prints the outcome of a pass. Rejected mutations are listed on diag
// with --verbose.
func (p *printer) sync(s SyncSummary) error {
	return p.print(s, func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, s.Line()); err != nil {
			return err
		}
		if p.verbose {
			for _, f := range s.Failures {
				fmt.Fprintf(p.diag, "  rejected: %s\n", f)
			}
		}
		return nil
	})
}

// status prints the boundary, pause flag and pass log.
func (p *printer) status(st *Status) error {
	return p.print(st, func(w io.Writer) error {
		writeStatus(w, st)
		return nil
	})
}
