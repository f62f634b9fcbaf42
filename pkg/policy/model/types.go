package model

import (
	"sort"
	"time"
)

// FallbackIntent is the reserved intent a domain's policies are indexed under
// when they should match any intent that has no surviving candidate of its own.
const FallbackIntent = "system@reserved@domain_fallback_intent"

// ParamType identifies how a Param's value is computed.
type ParamType string

const (
	// ParamSlotVal selects a slot by key and index, preferring the normalized value.
	ParamSlotVal ParamType = "slot_val"

	// ParamSlotValOri selects a slot by key and index, always using the raw value.
	ParamSlotValOri ParamType = "slot_val_ori"

	// ParamQUIntent evaluates to the query intent.
	ParamQUIntent ParamType = "qu_intent"

	// ParamSessionState evaluates to the caller session state.
	ParamSessionState ParamType = "session_state"

	// ParamSessionContext looks up a key in the session context.
	ParamSessionContext ParamType = "session_context"

	// ParamConstVal evaluates to the literal value.
	ParamConstVal ParamType = "const_val"

	// ParamRequestParam looks up a caller-supplied request parameter.
	ParamRequestParam ParamType = "request_param"

	// ParamFuncVal invokes a registered function ("name" or "name:arg1,arg2").
	ParamFuncVal ParamType = "func_val"
)

// AssertionType identifies the comparison an Assertion performs.
type AssertionType string

const (
	AssertNotEmpty AssertionType = "not_empty"
	AssertEmpty    AssertionType = "empty"
	AssertIn       AssertionType = "in"
	AssertNotIn    AssertionType = "not_in"
	AssertEq       AssertionType = "eq"
	AssertGt       AssertionType = "gt"
	AssertGe       AssertionType = "ge"
)

// Trigger defines when a Policy is eligible.
type Trigger struct {
	// Intent is the index key the policy is registered under.
	Intent string

	// Slots is a multiset of slot keys the query must carry.
	Slots []string

	// State, when non-empty, must equal the domain-scoped session state.
	State string
}

// Param declares one computed input of a Policy.
type Param struct {
	Name     string
	Type     ParamType
	Value    string
	Default  string
	Required bool
}

// Assertion gates an Output. Value is a template string.
type Assertion struct {
	Type  AssertionType
	Value string
}

// ExtraField is one key of a ResultItem's extra object. Value holds the
// encoded JSON scalar.
type ExtraField struct {
	Key   string
	Value []byte
}

// ResultItem is one output value. When Values holds more than one
// alternative, one is picked at render time.
type ResultItem struct {
	Type   string
	Values []string
	Extra  []ExtraField
}

// Output is one candidate response of a Policy.
type Output struct {
	Assertions []Assertion
	Meta       KVList
	Session    Session
	Results    []ResultItem
}

// Policy is the unit of configuration. It is immutable once loaded.
type Policy struct {
	Trigger Trigger
	Params  []Param
	Outputs []Output
}

// DomainPolicy is one domain's rule set.
type DomainPolicy struct {
	// Name is the domain name.
	Name string

	// Score is the static ranking priority; higher is tried first.
	Score int

	// Source is the policy file the domain was loaded from.
	Source string

	// Intents indexes policies by trigger intent. A present key never maps
	// to an empty list.
	Intents map[string][]*Policy
}

// Policies returns the candidates registered under intent.
func (d *DomainPolicy) Policies(intent string) []*Policy {
	if d == nil {
		return nil
	}
	return d.Intents[intent]
}

// PolicyCount returns the total number of policies across all intents.
func (d *DomainPolicy) PolicyCount() int {
	n := 0
	for _, list := range d.Intents {
		n += len(list)
	}
	return n
}

// Product is a product's domains keyed by domain name.
type Product map[string]*DomainPolicy

// RuleSet is one generation of the loaded configuration. Once published it
// is never mutated, only replaced wholesale.
type RuleSet struct {
	// Products maps product name to its domains.
	Products map[string]Product

	// Version is a content hash of every file the generation was built from.
	Version string

	// Source is the product index file path.
	Source string

	// LoadedAt is when the generation was built.
	LoadedAt time.Time
}

// Product returns the named product's domains, or nil.
func (r *RuleSet) Product(name string) Product {
	if r == nil {
		return nil
	}
	return r.Products[name]
}

// ProductNames returns the product names in lexicographic order.
func (r *RuleSet) ProductNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Products))
	for name := range r.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DomainNames returns the product's domain names in lexicographic order.
func (p Product) DomainNames() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
