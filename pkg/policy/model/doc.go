// Package model defines the plain data types of the dialog policy rule set.
//
// A RuleSet is one immutable generation of configuration: products map to
// domains, each domain (a DomainPolicy) indexes its policies by intent, and
// each Policy carries a Trigger, an ordered parameter list and an ordered
// list of candidate Outputs. Nothing in this package has behavior beyond
// construction, lookups and JSON encoding; matching and rendering live in
// the engine package.
//
// # Request-side types
//
// QUResult carries the query-understanding result for one domain, Session
// carries the cross-turn dialog state, and RequestContext exposes the
// caller-supplied parameters and the remote-call collaborator to user
// functions.
//
// # Output
//
// ResolvedOutput is what a successful resolve returns. Its JSON form is:
//
//	{"meta": {...}, "result": [{"type": "...", "value": "...", <extra>}], "session": {...}}
package model
