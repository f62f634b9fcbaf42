package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T, driver string) evidence.Storage {
	t.Helper()
	cfg := config.Default().Evidence.SQLite
	cfg.Driver = driver
	cfg.Path = filepath.Join(t.TempDir(), "db", "turns.db")

	s, err := NewSQLiteStorage(cfg, nil)
	if err != nil {
		if driver == "sqlite3" && strings.Contains(err.Error(), "cgo") {
			t.Skip("sqlite3 driver needs cgo")
		}
		t.Fatalf("NewSQLiteStorage(%s) error = %v", driver, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]func(t *testing.T) evidence.Storage {
	return map[string]func(t *testing.T) evidence.Storage{
		"memory":         func(*testing.T) evidence.Storage { return NewMemoryStorage() },
		"sqlite/modernc": func(t *testing.T) evidence.Storage { return newSQLite(t, "sqlite") },
		"sqlite/mattn":   func(t *testing.T) evidence.Storage { return newSQLite(t, "sqlite3") },
	}
}

func seed(t *testing.T, s evidence.Storage) {
	t.Helper()
	records := []*evidence.TurnRecord{
		{ID: "r1", LogID: "log-1", Product: "default", Domain: "weather", Intent: "ask", Outcome: "resolved",
			Output: `{"meta":{},"result":[],"session":{}}`, OutputHash: "abc", Version: "v1",
			Duration: 1500 * time.Microsecond, RecordedAt: base},
		{ID: "r2", LogID: "log-2", Product: "default", Outcome: "no_policy", Error: "no applicable policy",
			RecordedAt: base.Add(time.Minute)},
		{ID: "r3", LogID: "log-3", Product: "kids", Domain: "story", Outcome: "resolved",
			RecordedAt: base.Add(2 * time.Minute)},
		{ID: "r4", LogID: "log-4", Product: "default", Domain: "weather", Outcome: "resolved",
			RecordedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store(%s) error = %v", r.ID, err)
		}
	}
}

func ids(records []*evidence.TurnRecord) string {
	var out []string
	for _, r := range records {
		out = append(out, r.ID)
	}
	return strings.Join(out, ",")
}

func TestStorage_Query(t *testing.T) {
	end := base.Add(90 * time.Second)

	tests := []struct {
		name  string
		query evidence.Query
		want  string
	}{
		{"all newest first", evidence.Query{}, "r4,r3,r2,r1"},
		{"ascending", evidence.Query{SortOrder: "asc"}, "r1,r2,r3,r4"},
		{"by product", evidence.Query{Product: "default", SortOrder: "asc"}, "r1,r2,r4"},
		{"by domain", evidence.Query{Product: "default", Domain: "weather"}, "r4,r1"},
		{"by outcome", evidence.Query{Outcome: "no_policy"}, "r2"},
		{"by log id", evidence.Query{LogID: "log-3"}, "r3"},
		{"time range", evidence.Query{EndTime: &end, SortOrder: "asc"}, "r1,r2"},
		{"paged", evidence.Query{Limit: 2, Offset: 1}, "r3,r2"},
		{"offset past end", evidence.Query{Offset: 10}, ""},
	}

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			seed(t, s)
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.Query(context.Background(), &tt.query)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if ids(got) != tt.want {
						t.Errorf("Query() = %q, want %q", ids(got), tt.want)
					}
				})
			}
		})
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			seed(t, s)

			got, err := s.Query(context.Background(), &evidence.Query{LogID: "log-1"})
			if err != nil || len(got) != 1 {
				t.Fatalf("Query() = %v, %v", got, err)
			}
			r := got[0]
			if r.Intent != "ask" || r.Version != "v1" || r.OutputHash != "abc" || r.Output == "" {
				t.Errorf("record = %+v", r)
			}
			if r.Duration != 1500*time.Microsecond {
				t.Errorf("Duration = %v, want 1.5ms", r.Duration)
			}
			if !r.RecordedAt.Equal(base) {
				t.Errorf("RecordedAt = %v, want %v", r.RecordedAt, base)
			}

			got, _ = s.Query(context.Background(), &evidence.Query{LogID: "log-2"})
			if len(got) != 1 || got[0].Error != "no applicable policy" || got[0].Domain != "" {
				t.Errorf("failure record = %+v", got)
			}
		})
	}
}

func TestStorage_CountAndDelete(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			if n, err := s.Count(ctx, &evidence.Query{Outcome: "resolved"}); err != nil || n != 3 {
				t.Errorf("Count(resolved) = %d, %v, want 3", n, err)
			}

			cutoff := base.Add(time.Minute)
			if n, err := s.Delete(ctx, &evidence.Query{EndTime: &cutoff}); err != nil || n != 2 {
				t.Errorf("Delete(before cutoff) = %d, %v, want 2", n, err)
			}
			if n, _ := s.Count(ctx, &evidence.Query{}); n != 2 {
				t.Errorf("Count() after delete = %d, want 2", n)
			}

			if n, err := s.DeleteOldest(ctx, 1); err != nil || n != 1 {
				t.Errorf("DeleteOldest(1) = %d, %v, want 1", n, err)
			}
			left, _ := s.Query(ctx, &evidence.Query{})
			if ids(left) != "r4" {
				t.Errorf("remaining = %q, want r4", ids(left))
			}

			if n, err := s.DeleteOldest(ctx, 0); err != nil || n != 0 {
				t.Errorf("DeleteOldest(0) = %d, %v, want 0", n, err)
			}
			if err := s.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}

func TestSQLiteStorage_DuplicateID(t *testing.T) {
	s := newSQLite(t, "sqlite")
	r := &evidence.TurnRecord{ID: "dup", LogID: "l", Product: "p", Outcome: "resolved", RecordedAt: base}
	if err := s.Store(context.Background(), r); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	err := s.Store(context.Background(), r)
	var se *evidence.StorageError
	if !errors.As(err, &se) || se.Operation != "store" {
		t.Errorf("Store(duplicate) error = %v, want StorageError on store", err)
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	cfg := config.Default().Evidence.SQLite
	cfg.Path = filepath.Join(t.TempDir(), "turns.db")

	s, err := NewSQLiteStorage(cfg, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	seed(t, s)
	s.Close()

	s, err = NewSQLiteStorage(cfg, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if n, _ := s.Count(context.Background(), &evidence.Query{}); n != 4 {
		t.Errorf("Count() after reopen = %d, want 4", n)
	}
}

func TestOpen(t *testing.T) {
	cfg := config.Default().Evidence
	cfg.Backend = "memory"
	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("Open(memory) = %T", s)
	}

	cfg.Backend = "postgres"
	if _, err := Open(cfg, nil); err == nil {
		t.Error("Open(postgres) succeeded, want error")
	}

	cfg.Backend = "sqlite"
	cfg.SQLite.Driver = "oracle"
	if _, err := Open(cfg, nil); err == nil {
		t.Error("Open(sqlite, bad driver) succeeded, want error")
	}
}
