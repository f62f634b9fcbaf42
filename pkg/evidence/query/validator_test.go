package query

import (
	"errors"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/evidence"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		query   evidence.Query
		wantErr bool
	}{
		{"empty", evidence.Query{}, false},
		{"full", evidence.Query{StartTime: &earlier, EndTime: &now, Product: "default", Outcome: "resolved", Limit: 10, SortOrder: "asc"}, false},
		{"negative limit", evidence.Query{Limit: -1}, true},
		{"limit too large", evidence.Query{Limit: MaxLimit + 1}, true},
		{"negative offset", evidence.Query{Offset: -5}, true},
		{"bad sort order", evidence.Query{SortOrder: "sideways"}, true},
		{"inverted range", evidence.Query{StartTime: &now, EndTime: &earlier}, true},
		{"unknown outcome", evidence.Query{Outcome: "blocked"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var qe *evidence.QueryError
				if !errors.As(err, &qe) {
					t.Errorf("Validate() error type = %T, want *evidence.QueryError", err)
				}
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &evidence.Query{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultLimit)
	}
	if q.SortOrder != "desc" {
		t.Errorf("SortOrder = %q, want desc", q.SortOrder)
	}

	q = &evidence.Query{Limit: 5, SortOrder: "asc"}
	ApplyDefaults(q)
	if q.Limit != 5 || q.SortOrder != "asc" {
		t.Errorf("ApplyDefaults overwrote explicit values: %+v", q)
	}
}
