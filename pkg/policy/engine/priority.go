package engine

import (
	"sort"

	"dmkit-hq/dmkit/pkg/policy/model"
)

// candidate is a domain together with the policy it matched.
type candidate struct {
	domain   *model.DomainPolicy
	policy   *model.Policy
	affinity bool
}

// hasAffinity reports whether the session continues in dp with the state
// the matched policy was written for.
func hasAffinity(dp *model.DomainPolicy, p *model.Policy, session model.Session) bool {
	return session.Domain != "" &&
		session.Domain == dp.Name &&
		session.State != "" &&
		p.Trigger.State == session.State
}

// rankCandidates orders candidates for resolution: the affinity match
// first, then by descending domain score, then by domain name.
func rankCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.affinity != b.affinity {
			return a.affinity
		}
		if a.domain.Score != b.domain.Score {
			return a.domain.Score > b.domain.Score
		}
		return a.domain.Name < b.domain.Name
	})
}
