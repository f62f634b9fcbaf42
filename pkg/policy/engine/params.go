package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/policy/template"
)

// FunctionCaller invokes user functions referenced by func_val params.
type FunctionCaller interface {
	Call(ctx context.Context, name string, args []string, rc *model.RequestContext) (string, error)
}

var (
	errSlotMissing   = errors.New("slot not found")
	errBadSlotIndex  = errors.New("invalid slot index")
	errNoContextKey  = errors.New("session context key not found")
	errNoRequestKey  = errors.New("request param not found")
	errNoFunctions   = errors.New("no function registry configured")
	errUnknownParam  = errors.New("unknown param type")
	errEmptyFuncName = errors.New("empty function name")
)

// paramInput is everything a param may read.
type paramInput struct {
	qu      *model.QUResult
	session model.Session
	rc      *model.RequestContext
}

// evaluateParams resolves params in declaration order. Each value is
// visible to the params after it. An unresolved required param stops
// evaluation with a *ParamError; an unresolved optional one takes its
// default.
func (e *Engine) evaluateParams(ctx context.Context, params []model.Param, in paramInput) (map[string]string, error) {
	values := make(map[string]string, len(params))
	for _, p := range params {
		v, err := e.resolveParam(ctx, p, in, values)
		if err != nil {
			if p.Required {
				return nil, &ParamError{Name: p.Name, Type: string(p.Type), Cause: err}
			}
			e.logger.Debug("Param unresolved, using default",
				"param", p.Name,
				"type", p.Type,
				"error", err,
			)
			v = p.Default
		}
		values[p.Name] = v
	}
	return values, nil
}

func (e *Engine) resolveParam(ctx context.Context, p model.Param, in paramInput, values map[string]string) (string, error) {
	switch p.Type {
	case model.ParamSlotVal:
		return slotValue(in.qu, p.Value, true)
	case model.ParamSlotValOri:
		return slotValue(in.qu, p.Value, false)
	case model.ParamQUIntent:
		return in.qu.Intent, nil
	case model.ParamSessionState:
		return in.session.State, nil
	case model.ParamSessionContext:
		if v, ok := in.session.ContextValue(p.Value); ok {
			return v, nil
		}
		return "", errNoContextKey
	case model.ParamConstVal:
		return p.Value, nil
	case model.ParamRequestParam:
		if v, ok := in.rc.Param(p.Value); ok {
			return v, nil
		}
		return "", errNoRequestKey
	case model.ParamFuncVal:
		return e.callFunction(ctx, p.Value, in.rc, values)
	default:
		return "", fmt.Errorf("%w %q", errUnknownParam, p.Type)
	}
}

// slotValue selects the index-th slot keyed tag from a "tag[,index]" reference.
func slotValue(qu *model.QUResult, ref string, preferNormalized bool) (string, error) {
	parts := strings.Split(ref, ",")
	tag := parts[0]
	index := 0
	if len(parts) >= 2 {
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w in %q", errBadSlotIndex, ref)
		}
		index = n
	}

	for _, s := range qu.Slots {
		if s.Key != tag {
			continue
		}
		if index > 0 {
			index--
			continue
		}
		if preferNormalized && s.NormalizedValue != "" {
			return s.NormalizedValue, nil
		}
		return s.Value, nil
	}
	return "", fmt.Errorf("%w: %q", errSlotMissing, ref)
}

// callFunction evaluates a "name" or "name:arg1,arg2" reference.
func (e *Engine) callFunction(ctx context.Context, ref string, rc *model.RequestContext, values map[string]string) (string, error) {
	if e.functions == nil {
		return "", errNoFunctions
	}

	rawName, rawArgs, hasArgs := strings.Cut(ref, ":")
	name, err := template.Resolve(rawName, values)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errEmptyFuncName
	}

	var args []string
	if hasArgs && rawArgs != "" {
		args, err = template.ResolveList(rawArgs, ',', values)
		if err != nil {
			return "", err
		}
	}

	return e.functions.Call(ctx, name, args, rc)
}
