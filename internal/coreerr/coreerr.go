// Package coreerr defines the typed error surface returned across the
// worker boundary (§6.5). Every code in Code is a sentinel value so
// callers can recover it with errors.As regardless of how deep the wrap
// chain built by github.com/pkg/errors runs.
package coreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the fixed error codes in §6.5.
type Code string

const (
	CodeUnrecognizedFormat Code = "unrecognized_format"
	CodeMixedPlatforms     Code = "mixed_platforms"
	CodeIO                 Code = "io_error"
	CodeParse              Code = "parse_error"
	CodeMigrationRequired  Code = "migration_required"
	CodeCancelled          Code = "cancelled"
	CodeSQL                Code = "sql_error"
	CodeNotFound           Code = "not_found"
)

// PartialMatch is one candidate format the sniffer ruled out, along with
// what it was missing (§4.1).
type PartialMatch struct {
	FormatName    string   `json:"formatName"`
	MissingFields []string `json:"missingFields"`
}

// Diagnosis accompanies CodeUnrecognizedFormat.
type Diagnosis struct {
	Suggestion     string         `json:"suggestion"`
	PartialMatches []PartialMatch `json:"partialMatches,omitempty"`
}

// Error is the typed error returned to callers of the core. It wraps an
// underlying cause (often produced via github.com/pkg/errors.Wrap at the
// point of detection) without losing that cause's stack trace.
type Error struct {
	Code      Code
	Message   string
	Diagnosis *Diagnosis
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a typed code to an underlying error, preserving it as the
// cause via errors.Wrap so stack context survives for logging. Wrap
// returns a true nil error when cause is nil, mirroring errors.Wrap, so
// callers can write "return coreerr.Wrap(code, err, msg)" directly after a
// call that may or may not have failed without a typed-nil footgun.
func Wrap(code Code, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// WithDiagnosis attaches format-sniffing diagnosis to an unrecognized-format
// error.
func WithDiagnosis(message string, d Diagnosis) *Error {
	return &Error{Code: CodeUnrecognizedFormat, Message: message, Diagnosis: &d}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
