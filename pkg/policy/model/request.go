package model

import "context"

// Slot is one piece of information extracted from the utterance.
type Slot struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	NormalizedValue string `json:"normalized_value,omitempty"`
}

// QUResult is the query-understanding result for one domain.
type QUResult struct {
	Domain string `json:"domain"`
	Intent string `json:"intent"`
	Slots  []Slot `json:"slots,omitempty"`
}

// SlotCounts returns the multiset of slot keys.
func (q *QUResult) SlotCounts() map[string]int {
	counts := make(map[string]int)
	if q == nil {
		return counts
	}
	for _, s := range q.Slots {
		counts[s.Key]++
	}
	return counts
}

// QUSet holds one query-understanding result per domain.
type QUSet map[string]*QUResult

// NewQUSet indexes results by domain. A later result for the same domain
// replaces an earlier one.
func NewQUSet(results ...*QUResult) QUSet {
	set := make(QUSet, len(results))
	for _, r := range results {
		if r != nil {
			set[r.Domain] = r
		}
	}
	return set
}

// For returns the result for domain. A domain without an entry gets an
// empty result so that only its fallback policies can match.
func (s QUSet) For(domain string) *QUResult {
	if r, ok := s[domain]; ok && r != nil {
		return r
	}
	return &QUResult{Domain: domain}
}

// RemoteRequest is an outbound call issued by a user function.
type RemoteRequest struct {
	URL    string
	Method string
	Body   string
}

// RemoteCaller issues calls against named remote services.
type RemoteCaller interface {
	Call(ctx context.Context, service string, req RemoteRequest) (string, error)
}

// RequestContext is the read-only request state visible to user functions.
type RequestContext struct {
	// LogID identifies the request in logs and evidence.
	LogID string

	// Params are the caller-supplied request parameters.
	Params map[string]string

	// Remote is the remote-call collaborator. It may be nil.
	Remote RemoteCaller
}

// Param returns the request parameter named key.
func (rc *RequestContext) Param(key string) (string, bool) {
	if rc == nil || rc.Params == nil {
		return "", false
	}
	v, ok := rc.Params[key]
	return v, ok
}
