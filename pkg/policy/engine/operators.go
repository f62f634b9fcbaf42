package engine

import (
	"strconv"
	"strings"

	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/policy/template"
)

// evaluateAssertion reports whether a passes under values. The assertion
// value is resolved once as a whole; list operators then split it on
// commas and resolve every part again.
func (e *Engine) evaluateAssertion(a model.Assertion, values map[string]string) bool {
	resolved, err := template.Resolve(a.Value, values)
	if err != nil {
		return false
	}

	switch a.Type {
	case model.AssertNotEmpty:
		return resolved != ""

	case model.AssertEmpty:
		return resolved == ""

	case model.AssertIn:
		list, err := template.ResolveList(resolved, ',', values)
		if err != nil {
			return false
		}
		return containsFirst(list)

	case model.AssertNotIn:
		list, err := template.ResolveList(resolved, ',', values)
		if err != nil {
			return e.config.NotInFailOpen
		}
		return !containsFirst(list)

	case model.AssertEq:
		list, err := template.ResolveList(resolved, ',', values)
		if err != nil || len(list) < 2 {
			return false
		}
		return list[0] == list[1]

	case model.AssertGt:
		left, right, ok := numericPair(resolved, values)
		return ok && left > right

	case model.AssertGe:
		left, right, ok := numericPair(resolved, values)
		return ok && left >= right

	default:
		e.logger.Warn("Unknown assertion type", "type", a.Type)
		return false
	}
}

// containsFirst reports whether list[0] equals any later element.
func containsFirst(list []string) bool {
	if len(list) == 0 {
		return false
	}
	for _, v := range list[1:] {
		if v == list[0] {
			return true
		}
	}
	return false
}

func numericPair(resolved string, values map[string]string) (float64, float64, bool) {
	list, err := template.ResolveList(resolved, ',', values)
	if err != nil || len(list) < 2 {
		return 0, 0, false
	}
	left, err := strconv.ParseFloat(strings.TrimSpace(list[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	right, err := strconv.ParseFloat(strings.TrimSpace(list[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return left, right, true
}
