package engine

import (
	"dmkit-hq/dmkit/pkg/policy/model"
)

// FindBestPolicy selects the policy of dp that best matches the query.
//
// Candidates are looked up under the query intent, then under
// model.FallbackIntent when no intent candidate survives. A candidate
// survives when its trigger state is empty or equals the session state
// (which only applies when the session belongs to dp) and when the query
// carries at least as many slots of every key as the trigger names. Among
// survivors a non-empty state beats an empty one, then more trigger slots
// win, then the earlier candidate.
func FindBestPolicy(dp *model.DomainPolicy, qu *model.QUResult, session model.Session) *model.Policy {
	if dp == nil {
		return nil
	}
	if qu == nil {
		qu = &model.QUResult{}
	}

	state := ""
	if dp.Name == session.Domain {
		state = session.State
	}
	available := qu.SlotCounts()

	if p := bestCandidate(dp.Policies(qu.Intent), state, available); p != nil {
		return p
	}
	return bestCandidate(dp.Policies(model.FallbackIntent), state, available)
}

func bestCandidate(candidates []*model.Policy, state string, available map[string]int) *model.Policy {
	var best *model.Policy
	for _, p := range candidates {
		if !triggerMatches(p.Trigger, state, available) {
			continue
		}
		if best == nil || outranks(p.Trigger, best.Trigger) {
			best = p
		}
	}
	return best
}

func triggerMatches(t model.Trigger, state string, available map[string]int) bool {
	if t.State != "" && t.State != state {
		return false
	}
	return slotsCovered(t.Slots, available)
}

// slotsCovered reports whether the required slot multiset is contained in
// available.
func slotsCovered(required []string, available map[string]int) bool {
	if len(required) == 0 {
		return true
	}
	need := make(map[string]int, len(required))
	for _, key := range required {
		need[key]++
	}
	for key, n := range need {
		if available[key] < n {
			return false
		}
	}
	return true
}

// outranks reports whether candidate strictly beats current.
func outranks(candidate, current model.Trigger) bool {
	if current.State != "" && candidate.State == "" {
		return false
	}
	if current.State == "" && candidate.State != "" {
		return true
	}
	return len(candidate.Slots) > len(current.Slots)
}
