package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResolvedOutput is the rendered response of the policy that won a turn.
type ResolvedOutput struct {
	// Domain is the domain whose policy produced the output.
	Domain string

	// Intent is the trigger intent of the selected policy.
	Intent string

	// State is the trigger state of the selected policy.
	State string

	// Version is the rule set generation the output was resolved against.
	Version string

	Meta    KVList
	Session Session
	Results []RenderedResult
}

// RenderedResult is a ResultItem after alternative selection and template
// resolution.
type RenderedResult struct {
	Type  string
	Value string
	Extra []ExtraField
}

// MarshalJSON encodes {"type","value"} followed by the extra fields.
func (r RenderedResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if err := writeJSONString(&buf, r.Type); err != nil {
		return nil, err
	}
	buf.WriteString(`,"value":`)
	if err := writeJSONString(&buf, r.Value); err != nil {
		return nil, err
	}
	for _, f := range r.Extra {
		buf.WriteByte(',')
		if err := writeJSONString(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type resolvedOutputJSON struct {
	Meta    KVList           `json:"meta"`
	Result  []RenderedResult `json:"result"`
	Session Session          `json:"session"`
}

// MarshalJSON encodes the output as {"meta","result","session"}.
func (o *ResolvedOutput) MarshalJSON() ([]byte, error) {
	meta := o.Meta
	if meta == nil {
		meta = KVList{}
	}
	results := o.Results
	if results == nil {
		results = []RenderedResult{}
	}
	return json.Marshal(resolvedOutputJSON{Meta: meta, Result: results, Session: o.Session})
}

// ParseExtra decodes a ResultItem's extra JSON object string. Keys "type"
// and "value" are reserved, and only scalar values are kept; both kinds of
// dropped keys are returned so the caller can report them.
func ParseExtra(raw string) (fields []ExtraField, dropped []string, err error) {
	if raw == "" {
		return nil, nil, nil
	}
	err = DecodeOrderedObject([]byte(raw), func(key string, value json.RawMessage) error {
		if key == "type" || key == "value" {
			dropped = append(dropped, key)
			return nil
		}
		if !isScalar(value) {
			dropped = append(dropped, key)
			return nil
		}
		fields = append(fields, ExtraField{Key: key, Value: append([]byte(nil), bytes.TrimSpace(value)...)})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid extra object: %w", err)
	}
	return fields, dropped, nil
}

func isScalar(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{', '[', 'n':
		return false
	}
	return true
}
