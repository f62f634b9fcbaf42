package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// KV is one ordered key/value pair.
type KV struct {
	Key   string
	Value string
}

// KVList is an ordered string map. It encodes to and decodes from a JSON
// object while keeping key order.
type KVList []KV

// Get returns the value of the first entry keyed key.
func (l KVList) Get(key string) (string, bool) {
	for _, kv := range l {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// MarshalJSON encodes the list as a JSON object in list order.
func (l KVList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, kv.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, kv.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings, keeping key order.
func (l *KVList) UnmarshalJSON(data []byte) error {
	var out KVList
	err := DecodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("value of %q is not a string", key)
		}
		out = append(out, KV{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// Session is the cross-turn dialog state threaded by the caller.
type Session struct {
	Domain  string
	State   string
	Context KVList
}

// ContextValue returns the first context value keyed key.
func (s Session) ContextValue(key string) (string, bool) {
	return s.Context.Get(key)
}

type sessionJSON struct {
	Domain  string `json:"domain"`
	State   string `json:"state"`
	Context KVList `json:"context"`
}

// MarshalJSON encodes the session as {"domain","state","context":{}}.
func (s Session) MarshalJSON() ([]byte, error) {
	ctx := s.Context
	if ctx == nil {
		ctx = KVList{}
	}
	return json.Marshal(sessionJSON{Domain: s.Domain, State: s.State, Context: ctx})
}

// UnmarshalJSON decodes a session object. Missing fields stay empty.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Domain = raw.Domain
	s.State = raw.State
	s.Context = raw.Context
	return nil
}

// DecodeOrderedObject walks the members of a JSON object in document order.
// Anything but whitespace after the object is an error.
func DecodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after JSON object")

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
