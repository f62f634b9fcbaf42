package engine

import (
	"context"
	"errors"
	"fmt"

	"dmkit-hq/dmkit/pkg/policy/model"
	"dmkit-hq/dmkit/pkg/policy/template"
)

var errEmptyResult = errors.New("result has no values")

// ResolveOutput runs a matched policy for domain: it evaluates the params,
// selects the first output whose assertions all pass and renders it. A nil
// output is always accompanied by a *ResolveError saying why.
func (e *Engine) ResolveOutput(ctx context.Context, domain string, p *model.Policy, qu *model.QUResult, session model.Session, rc *model.RequestContext) (*model.ResolvedOutput, error) {
	if qu == nil {
		qu = &model.QUResult{Domain: domain}
	}
	if rc == nil {
		rc = &model.RequestContext{}
	}
	fail := func(stage string, err error) (*model.ResolvedOutput, error) {
		return nil, &ResolveError{Domain: domain, Intent: p.Trigger.Intent, Stage: stage, Cause: err}
	}

	values, err := e.evaluateParams(ctx, p.Params, paramInput{qu: qu, session: session, rc: rc})
	if err != nil {
		return fail(StageParams, err)
	}

	selected := -1
	for i, out := range p.Outputs {
		if e.assertionsPass(out.Assertions, values) {
			selected = i
			break
		}
	}
	if selected < 0 {
		return fail(StageAssertion, errNoOutput)
	}

	resolved, err := e.render(p.Outputs[selected], values)
	if err != nil {
		return fail(StageRender, err)
	}
	resolved.Domain = domain
	resolved.Intent = p.Trigger.Intent
	resolved.State = p.Trigger.State
	resolved.Session.Domain = domain
	return resolved, nil
}

func (e *Engine) assertionsPass(assertions []model.Assertion, values map[string]string) bool {
	for _, a := range assertions {
		if !e.evaluateAssertion(a, values) {
			return false
		}
	}
	return true
}

// render resolves every template of out against values.
func (e *Engine) render(out model.Output, values map[string]string) (*model.ResolvedOutput, error) {
	resolved := &model.ResolvedOutput{}

	var err error
	if resolved.Meta, err = resolveKVs(out.Meta, values); err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}

	if resolved.Session.Domain, err = template.Resolve(out.Session.Domain, values); err != nil {
		return nil, fmt.Errorf("session domain: %w", err)
	}
	if resolved.Session.State, err = template.Resolve(out.Session.State, values); err != nil {
		return nil, fmt.Errorf("session state: %w", err)
	}
	if resolved.Session.Context, err = resolveKVs(out.Session.Context, values); err != nil {
		return nil, fmt.Errorf("session context: %w", err)
	}

	now := e.config.Clock()
	resolved.Results = make([]model.RenderedResult, 0, len(out.Results))
	for i, item := range out.Results {
		if len(item.Values) == 0 {
			return nil, fmt.Errorf("result[%d]: %w", i, errEmptyResult)
		}
		choice := item.Values[0]
		if n := int64(len(item.Values)); n > 1 {
			idx := now.Unix() % n
			if idx < 0 {
				idx = 0
			}
			choice = item.Values[idx]
		}
		value, err := template.Resolve(choice, values)
		if err != nil {
			return nil, fmt.Errorf("result[%d]: %w", i, err)
		}
		resolved.Results = append(resolved.Results, model.RenderedResult{
			Type:  item.Type,
			Value: value,
			Extra: item.Extra,
		})
	}

	return resolved, nil
}

func resolveKVs(list model.KVList, values map[string]string) (model.KVList, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make(model.KVList, 0, len(list))
	for _, kv := range list {
		key, err := template.Resolve(kv.Key, values)
		if err != nil {
			return nil, err
		}
		value, err := template.Resolve(kv.Value, values)
		if err != nil {
			return nil, err
		}
		out = append(out, model.KV{Key: key, Value: value})
	}
	return out, nil
}
