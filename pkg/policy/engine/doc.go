// Package engine resolves a dialog turn against the live rule set.
//
// For each domain of the requested product the engine picks the single best
// policy for the query (FindBestPolicy), ranks the matching domains and
// resolves them in order until one produces an output. The domain the
// session is already in wins the ranking when the matched policy was
// written for the session's current state; the rest are ordered by
// descending score and then by name.
//
// Resolving a policy has three phases:
//
//   - Params are evaluated in declaration order. A required param that
//     cannot be resolved fails the policy; an optional one takes its
//     default.
//   - The first output whose assertions all pass is selected.
//   - Meta, session and results of that output are rendered through
//     package template. When a result has several alternatives, one is
//     picked from the clock (Unix seconds mod count). This is not a
//     uniform choice.
//
// Failing to resolve is an ordinary outcome: Resolve returns an error that
// wraps ErrNoPolicy, and the caller chooses a fallback response.
//
// # Basic Usage
//
//	eng, err := engine.New(mgr.Store(), registry, engine.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//
//	out, err := eng.Resolve(ctx, "default", model.NewQUSet(qu), session, rc)
//	if errors.Is(err, engine.ErrNoPolicy) {
//	    // no domain could answer
//	}
package engine
