package template

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	params := map[string]string{
		"x":    "v",
		"city": "NYC",
		"e":    "",
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "no markers", in: "plain text, 100%", want: "plain text, 100%"},
		{name: "empty", in: "", want: ""},
		{name: "single", in: "{%x%}", want: "v"},
		{name: "embedded", in: "fly to {%city%} now", want: "fly to NYC now"},
		{name: "adjacent", in: "{%x%}{%city%}", want: "vNYC"},
		{name: "empty value", in: "[{%e%}]", want: "[]"},
		{name: "lone open brace", in: "{x} %", want: "{x} %"},
		{name: "unterminated", in: "{%x", wantErr: ErrUnclosed},
		{name: "unterminated after good", in: "{%x%} {%city", wantErr: ErrUnclosed},
		{name: "nested open", in: "{%x{%city%}", wantErr: ErrUnclosed},
		{name: "nested open does not restart", in: "{%city{%x%}", wantErr: ErrUnclosed},
		{name: "stray close", in: "a %} b", wantErr: ErrUnopened},
		{name: "unknown", in: "hi {%nobody%}", wantErr: ErrUnknownParam},
		{name: "untrimmed name", in: "{% x %}", wantErr: ErrUnknownParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.in, params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				if got != "" {
					t.Errorf("Resolve(%q) = %q on error, want empty", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolve_ErrorMessage(t *testing.T) {
	_, err := Resolve("{%missing%}", nil)

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Resolve() error type = %T, want *Error", err)
	}
	if terr.Name != "missing" {
		t.Errorf("Error.Name = %q, want missing", terr.Name)
	}
}

func TestResolveList(t *testing.T) {
	params := map[string]string{"a": "1", "b": "2"}

	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr bool
	}{
		{name: "two parts", in: "{%a%},{%b%}", want: []string{"1", "2"}},
		{name: "trims", in: "  {%a%} ,  x  ", want: []string{"1", "x"}},
		{name: "trailing separator", in: "a,b,", want: []string{"a", "b"}},
		{name: "leading separator", in: ",a", want: []string{"", "a"}},
		{name: "inner empty", in: "a,,b", want: []string{"a", "", "b"}},
		{name: "empty input", in: "", want: nil},
		{name: "bad part fails list", in: "{%a%},{%zz%}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveList(tt.in, ',', params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveList(%q) error = nil, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveList(%q) error = %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveList(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	got, err := Names("{%a%} and {%b%}")
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}

	if _, err := Names("{%a"); !errors.Is(err, ErrUnclosed) {
		t.Errorf("Names(unclosed) error = %v, want ErrUnclosed", err)
	}
}
