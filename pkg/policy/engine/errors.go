package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPolicy indicates that no domain produced an output for the turn.
	// It covers every ordinary "no result" outcome.
	ErrNoPolicy = errors.New("no applicable policy")

	// ErrUnknownProduct indicates the requested product is not configured.
	// It wraps ErrNoPolicy.
	ErrUnknownProduct = fmt.Errorf("%w: unknown product", ErrNoPolicy)
)

// ResolveError explains why a policy produced no output in one domain.
// It is logged per domain and never returned from Resolve.
type ResolveError struct {
	Domain string
	Intent string
	Stage  string
	Cause  error
}

// Resolution stages.
const (
	StageParams    = "params"
	StageAssertion = "assertion"
	StageRender    = "render"
)

// Error returns the error message.
func (e *ResolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("domain %s intent %q: %s: %v", e.Domain, e.Intent, e.Stage, e.Cause)
	}
	return fmt.Sprintf("domain %s intent %q: %s failed", e.Domain, e.Intent, e.Stage)
}

// Unwrap returns the underlying cause.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// ParamError is a required parameter that could not be resolved.
type ParamError struct {
	Name  string
	Type  string
	Cause error
}

// Error returns the error message.
func (e *ParamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("required param %q (%s) unresolved: %v", e.Name, e.Type, e.Cause)
	}
	return fmt.Sprintf("required param %q (%s) unresolved", e.Name, e.Type)
}

// Unwrap returns the underlying cause.
func (e *ParamError) Unwrap() error {
	return e.Cause
}

var errNoOutput = errors.New("no output passed its assertions")
