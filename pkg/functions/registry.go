// Package functions provides the user function registry invoked by func_val
// policy parameters.
//
// A Function receives its template-resolved arguments and the request
// context and returns a single string. The registry is populated at startup
// and read concurrently by every resolve call afterwards.
package functions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dmkit-hq/dmkit/pkg/policy/model"
)

var (
	// ErrUnknownFunction is returned when no function is registered under a name.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrInvalidArgs is returned when a function rejects its arguments.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrNoRemote is returned by service calls when the request carries no
	// remote-call collaborator.
	ErrNoRemote = errors.New("no remote service manager")
)

// Function is one callable user function.
type Function interface {
	Call(ctx context.Context, args []string, rc *model.RequestContext) (string, error)
}

// FunctionFunc adapts an ordinary function to the Function interface.
type FunctionFunc func(ctx context.Context, args []string, rc *model.RequestContext) (string, error)

// Call implements Function.
func (f FunctionFunc) Call(ctx context.Context, args []string, rc *model.RequestContext) (string, error) {
	return f(ctx, args, rc)
}

// CallError wraps a failed function invocation.
type CallError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("function %q failed: %v", e.Name, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Observer receives the outcome of every call.
type Observer interface {
	ObserveFunctionCall(name string, err error, duration time.Duration)
}

// Registry is a name-keyed table of functions.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
	observer  Observer
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		functions: make(map[string]Function),
		logger:    logger.With("component", "functions"),
	}
}

// SetObserver installs an observer for call outcomes.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register adds fn under name. Registering a name twice is an error.
func (r *Registry) Register(name string, fn Function) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// startup wiring of built-ins.
func (r *Registry) MustRegister(name string, fn Function) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// Names returns the registered names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the function registered under name. A panic inside the
// function is recovered and reported as a *CallError.
func (r *Registry) Call(ctx context.Context, name string, args []string, rc *model.RequestContext) (result string, err error) {
	r.mu.RLock()
	fn, ok := r.functions[name]
	observer := r.observer
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Call to undefined function", "function", name)
		err = &CallError{Name: name, Err: ErrUnknownFunction}
		if observer != nil {
			observer.ObserveFunctionCall(name, err, 0)
		}
		return "", err
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Function panicked", "function", name, "panic", p)
			result = ""
			err = &CallError{Name: name, Err: fmt.Errorf("panic: %v", p)}
		}
		if observer != nil {
			observer.ObserveFunctionCall(name, err, time.Since(start))
		}
	}()

	result, err = fn.Call(ctx, args, rc)
	if err != nil {
		var cerr *CallError
		if !errors.As(err, &cerr) {
			err = &CallError{Name: name, Err: err}
		}
		return "", err
	}
	return result, nil
}
