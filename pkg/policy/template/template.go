// Package template implements the {%name%} placeholder substitution used by
// policy parameters, assertions and outputs.
//
// A string is scanned left to right. Text outside delimiters is copied
// verbatim; each {%name%} is replaced by the value of name in the parameter
// map. Delimiters do not nest. An unknown name, an unclosed {% or a stray %}
// fails the whole string and no partial result is returned.
package template

import (
	"errors"
	"fmt"
	"strings"
)

const (
	openDelim  = "{%"
	closeDelim = "%}"
)

var (
	// ErrUnclosed is returned when a {% has no matching %}.
	ErrUnclosed = errors.New("unclosed placeholder")

	// ErrUnopened is returned for a %} with no preceding {%.
	ErrUnopened = errors.New("placeholder close without open")

	// ErrUnknownParam is returned when a placeholder names no known parameter.
	ErrUnknownParam = errors.New("unknown parameter")
)

// Error describes why a template string failed to resolve.
type Error struct {
	Template string
	Name     string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("cannot resolve %q: %v %q", e.Template, e.Err, e.Name)
	}
	return fmt.Sprintf("cannot resolve %q: %v", e.Template, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Resolve substitutes every placeholder in s from params.
func Resolve(s string, params map[string]string) (string, error) {
	if !strings.Contains(s, openDelim) && !strings.Contains(s, closeDelim) {
		return s, nil
	}

	var sb strings.Builder
	sb.Grow(len(s))

	rest := s
	for {
		openAt := strings.Index(rest, openDelim)
		closeAt := strings.Index(rest, closeDelim)

		if closeAt >= 0 && (openAt < 0 || closeAt < openAt) {
			return "", &Error{Template: s, Err: ErrUnopened}
		}
		if openAt < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}

		sb.WriteString(rest[:openAt])
		body := rest[openAt+len(openDelim):]

		end := strings.Index(body, closeDelim)
		if end < 0 {
			return "", &Error{Template: s, Err: ErrUnclosed}
		}

		name := body[:end]
		if strings.Contains(name, openDelim) {
			return "", &Error{Template: s, Err: ErrUnclosed}
		}

		value, ok := params[name]
		if !ok {
			return "", &Error{Template: s, Name: name, Err: ErrUnknownParam}
		}
		sb.WriteString(value)
		rest = body[end+len(closeDelim):]
	}
}

// ResolveList splits s on sep, trims each part and resolves it. Any part
// failing to resolve fails the list. A trailing separator does not produce
// an empty final element.
func ResolveList(s string, sep byte, params map[string]string) ([]string, error) {
	var out []string
	start := 0
	for start < len(s) {
		idx := strings.IndexByte(s[start:], sep)
		var part string
		if idx < 0 {
			part = s[start:]
			start = len(s)
		} else {
			part = s[start : start+idx]
			start += idx + 1
		}

		resolved, err := Resolve(strings.TrimSpace(part), params)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// Names returns the placeholder names referenced by s in order of
// appearance. Malformed strings return an error.
func Names(s string) ([]string, error) {
	var names []string
	rest := s
	for {
		openAt := strings.Index(rest, openDelim)
		closeAt := strings.Index(rest, closeDelim)
		if closeAt >= 0 && (openAt < 0 || closeAt < openAt) {
			return nil, &Error{Template: s, Err: ErrUnopened}
		}
		if openAt < 0 {
			return names, nil
		}
		body := rest[openAt+len(openDelim):]
		end := strings.Index(body, closeDelim)
		if end < 0 || strings.Contains(body[:end], openDelim) {
			return nil, &Error{Template: s, Err: ErrUnclosed}
		}
		names = append(names, body[:end])
		rest = body[end+len(closeDelim):]
	}
}
