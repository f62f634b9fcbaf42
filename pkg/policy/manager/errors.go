package manager

import (
	"errors"
	"fmt"
	"strings"
)

// LoadError is a rule set file that could not be read: missing, not
// permitted, or over the size limit.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load %q: %s", e.FilePath, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError is malformed JSON or a document of the wrong shape.
type ParseError struct {
	FilePath string
	Offset   int64 // byte offset of a syntax error, 0 when unknown
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error in %q", e.FilePath)
	if e.Offset > 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError is a domain entry or policy that fails the schema.
// Index is the policy position in the domain file, or -1 for the domain
// entry itself.
type ValidationError struct {
	Product string
	Domain  string
	Index   int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := []string{"invalid"}
	if e.Product != "" {
		parts = append(parts, fmt.Sprintf("product %q", e.Product))
	}
	if e.Domain != "" {
		parts = append(parts, fmt.Sprintf("domain %q", e.Domain))
	}
	if e.Index >= 0 {
		parts = append(parts, fmt.Sprintf("policy[%d]:", e.Index))
	} else {
		parts[len(parts)-1] += ":"
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ErrGenerationInUse is returned by Store.Reload when readers still hold the
// inactive generation.
var ErrGenerationInUse = errors.New("previous generation still in use")

// ErrNotLoaded is returned when no generation has been published yet.
var ErrNotLoaded = errors.New("no rule set loaded")

// ErrorList collects the problems found while loading one rule set.
type ErrorList struct {
	Errors []error
}

func (e *ErrorList) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("rule set has %d problems:", len(e.Errors)))
	for _, err := range e.Errors {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// Add appends err unless it is nil.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether anything was collected.
func (e *ErrorList) HasErrors() bool { return len(e.Errors) > 0 }

// ToError returns nil, the only error, or the list itself.
func (e *ErrorList) ToError() error {
	switch len(e.Errors) {
	case 0:
		return nil
	case 1:
		return e.Errors[0]
	}
	return e
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *ErrorList) Unwrap() []error {
	return e.Errors
}
