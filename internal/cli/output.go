package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/importer/internal/core"
)

// Exit codes for importctl.
const (
	ExitSuccess      = 0 // Command succeeded
	ExitFailure      = 1 // Import or mutation failed
	ExitCommandError = 2 // Bad arguments or configuration
)

// ExitError carries the process exit code for an error. Reported errors
// have already been written to the command output.
type ExitError struct {
	Code     int
	Err      error
	Reported bool
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitCommandError, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err was already written as command output.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// Response is the envelope for json and yaml output.
type Response struct {
	Status string            `json:"status" yaml:"status"` // "ok" or "error"
	Data   any               `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *core.UserMessage `json:"error,omitempty" yaml:"error,omitempty"`
}

// formatter writes command results in the selected format.
type formatter struct {
	format string
	w      io.Writer
}

// result writes data. text renders it with the given function.
func (f *formatter) result(data any, text func(io.Writer)) error {
	if f.format == "text" {
		text(f.w)
		return nil
	}
	return f.encode(Response{Status: "ok", Data: data})
}

// failure writes err with its user-facing message and returns it so the
// command exits non-zero. data, if not nil, is included with the error.
func (f *formatter) failure(err error, data any) error {
	reported := &ExitError{Code: ExitFailure, Err: err, Reported: true}
	if f.format == "text" {
		fmt.Fprintf(f.w, "error: %s\n", core.FormatUserError(err))
		return reported
	}
	msg := core.MapError(err)
	if encErr := f.encode(Response{Status: "error", Data: data, Error: &msg}); encErr != nil {
		return encErr
	}
	return reported
}

func (f *formatter) encode(v any) error {
	if f.format == "yaml" {
		enc := yaml.NewEncoder(f.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
