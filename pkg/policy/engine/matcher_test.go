package engine

import (
	"testing"

	"dmkit-hq/dmkit/pkg/policy/model"
)

func slots(keys ...string) []model.Slot {
	out := make([]model.Slot, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.Slot{Key: k, Value: k + "-value"})
	}
	return out
}

func domainWith(name string, score int, policies ...*model.Policy) *model.DomainPolicy {
	dp := &model.DomainPolicy{Name: name, Score: score, Intents: make(map[string][]*model.Policy)}
	for _, p := range policies {
		dp.Intents[p.Trigger.Intent] = append(dp.Intents[p.Trigger.Intent], p)
	}
	return dp
}

func policy(intent, state string, slots ...string) *model.Policy {
	return &model.Policy{Trigger: model.Trigger{Intent: intent, State: state, Slots: slots}}
}

func TestFindBestPolicy_SlotCoverage(t *testing.T) {
	p := policy("pay", "", "A", "A", "B")
	dp := domainWith("billing", 0, p)

	tests := []struct {
		name  string
		slots []model.Slot
		want  bool
	}{
		{"missing duplicate", slots("A", "B"), false},
		{"exact", slots("A", "A", "B"), true},
		{"superset", slots("A", "A", "B", "C"), true},
		{"order independent", slots("B", "A", "C", "A"), true},
		{"none", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindBestPolicy(dp, &model.QUResult{Intent: "pay", Slots: tt.slots}, model.Session{})
			if (got == p) != tt.want {
				t.Errorf("FindBestPolicy() = %v, want match %v", got, tt.want)
			}
		})
	}
}

func TestFindBestPolicy_Specificity(t *testing.T) {
	general := policy("pay", "", "amount")
	specific := policy("pay", "", "amount", "account")
	dp := domainWith("billing", 0, general, specific)

	got := FindBestPolicy(dp, &model.QUResult{Intent: "pay", Slots: slots("amount", "account")}, model.Session{})
	if got != specific {
		t.Errorf("FindBestPolicy() = %v, want the policy with more slots", got)
	}

	got = FindBestPolicy(dp, &model.QUResult{Intent: "pay", Slots: slots("amount")}, model.Session{})
	if got != general {
		t.Errorf("FindBestPolicy() = %v, want general policy", got)
	}
}

func TestFindBestPolicy_FirstSeenBreaksTies(t *testing.T) {
	first := policy("pay", "", "amount")
	second := policy("pay", "", "account")
	dp := domainWith("billing", 0, first, second)

	got := FindBestPolicy(dp, &model.QUResult{Intent: "pay", Slots: slots("amount", "account")}, model.Session{})
	if got != first {
		t.Error("FindBestPolicy() should keep the first of equally specific candidates")
	}
}

func TestFindBestPolicy_State(t *testing.T) {
	stateless := policy("confirm", "", "amount", "account")
	stateful := policy("confirm", "awaiting_confirm")
	dp := domainWith("billing", 0, stateless, stateful)
	qu := &model.QUResult{Intent: "confirm", Slots: slots("amount", "account")}

	tests := []struct {
		name    string
		session model.Session
		want    *model.Policy
	}{
		{
			name:    "matching state beats more slots",
			session: model.Session{Domain: "billing", State: "awaiting_confirm"},
			want:    stateful,
		},
		{
			name:    "state of another domain is ignored",
			session: model.Session{Domain: "travel", State: "awaiting_confirm"},
			want:    stateless,
		},
		{
			name:    "different state",
			session: model.Session{Domain: "billing", State: "other"},
			want:    stateless,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindBestPolicy(dp, qu, tt.session); got != tt.want {
				t.Errorf("FindBestPolicy() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFindBestPolicy_Fallback(t *testing.T) {
	needsSlot := policy("pay", "", "amount")
	fallback := policy(model.FallbackIntent, "")
	dp := domainWith("billing", 0, needsSlot, fallback)

	tests := []struct {
		name string
		qu   *model.QUResult
		want *model.Policy
	}{
		{"intent match", &model.QUResult{Intent: "pay", Slots: slots("amount")}, needsSlot},
		{"no survivor under intent", &model.QUResult{Intent: "pay"}, fallback},
		{"unknown intent", &model.QUResult{Intent: "weather"}, fallback},
		{"empty query", nil, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindBestPolicy(dp, tt.qu, model.Session{}); got != tt.want {
				t.Errorf("FindBestPolicy() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := FindBestPolicy(domainWith("empty", 0), &model.QUResult{Intent: "pay"}, model.Session{}); got != nil {
		t.Errorf("FindBestPolicy() on empty domain = %v, want nil", got)
	}
	if got := FindBestPolicy(nil, nil, model.Session{}); got != nil {
		t.Errorf("FindBestPolicy(nil) = %v, want nil", got)
	}
}

func TestRankCandidates(t *testing.T) {
	low := domainWith("alpha", 10)
	high := domainWith("beta", 20)
	tieA := domainWith("gamma", 5)
	tieB := domainWith("delta", 5)
	sticky := domainWith("omega", 1)

	ranked := []candidate{
		{domain: tieA}, {domain: low}, {domain: sticky, affinity: true}, {domain: high}, {domain: tieB},
	}
	rankCandidates(ranked)

	want := []string{"omega", "beta", "alpha", "delta", "gamma"}
	for i, name := range want {
		if ranked[i].domain.Name != name {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].domain.Name, name)
		}
	}
}

func TestHasAffinity(t *testing.T) {
	dp := domainWith("billing", 0)
	tests := []struct {
		name    string
		trigger string
		session model.Session
		want    bool
	}{
		{"same domain and state", "02", model.Session{Domain: "billing", State: "02"}, true},
		{"other domain", "02", model.Session{Domain: "travel", State: "02"}, false},
		{"empty session state", "", model.Session{Domain: "billing"}, false},
		{"different state", "01", model.Session{Domain: "billing", State: "02"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasAffinity(dp, policy("x", tt.trigger), tt.session); got != tt.want {
				t.Errorf("hasAffinity() = %v, want %v", got, tt.want)
			}
		})
	}
}
