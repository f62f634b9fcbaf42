package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/cli"
	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/evidence/storage"
)

// seedJournal writes a config file pointing at a fresh SQLite journal
// holding one record per age and selects it with --config.
func seedJournal(t *testing.T, ages ...time.Duration) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "turns.db")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
evidence:
  backend: sqlite
  sqlite:
    driver: sqlite
    path: %q
`, dbPath))
	withConfigFile(t, cfgPath)

	cfg, err := config.LoadConfigWithEnvOverrides(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	store, err := storage.Open(cfg.Evidence, discardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	now := time.Now()
	for i, age := range ages {
		outcome := "resolved"
		if i%2 == 1 {
			outcome = "no_policy"
		}
		rec := &evidence.TurnRecord{
			ID:         fmt.Sprintf("rec-%d", i),
			LogID:      fmt.Sprintf("dmkit_%d", i),
			Product:    "default",
			Domain:     "billing",
			Outcome:    outcome,
			RecordedAt: now.Add(-age),
			Duration:   time.Millisecond,
		}
		if err := store.Store(context.Background(), rec); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
}

func resetJournalFlags(t *testing.T) {
	t.Helper()
	prev := journalFlags
	journalFlags.since = 0
	journalFlags.until = ""
	journalFlags.logID = ""
	journalFlags.product = ""
	journalFlags.domain = ""
	journalFlags.outcome = ""
	journalFlags.limit = 100
	journalFlags.offset = 0
	journalFlags.order = "desc"
	journalFlags.format = "text"
	journalFlags.count = false
	journalFlags.days = -1
	journalFlags.maxRecords = -1
	t.Cleanup(func() { journalFlags = prev })
}

func TestBuildJournalQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		set     func()
		check   func(t *testing.T, q *evidence.Query)
		wantErr bool
	}{
		{
			name: "since",
			set:  func() { journalFlags.since = time.Hour },
			check: func(t *testing.T, q *evidence.Query) {
				if q.StartTime == nil || !q.StartTime.Equal(now.Add(-time.Hour)) {
					t.Errorf("StartTime = %v, want %v", q.StartTime, now.Add(-time.Hour))
				}
			},
		},
		{
			name: "until",
			set:  func() { journalFlags.until = "2026-02-01T00:00:00Z" },
			check: func(t *testing.T, q *evidence.Query) {
				if q.EndTime == nil || q.EndTime.Month() != time.February {
					t.Errorf("EndTime = %v", q.EndTime)
				}
			},
		},
		{
			name: "filters",
			set: func() {
				journalFlags.product = "kids"
				journalFlags.outcome = "no_policy"
				journalFlags.order = "asc"
			},
			check: func(t *testing.T, q *evidence.Query) {
				if q.Product != "kids" || q.Outcome != "no_policy" || q.SortOrder != "asc" {
					t.Errorf("query = %+v", q)
				}
			},
		},
		{name: "negative since", set: func() { journalFlags.since = -time.Minute }, wantErr: true},
		{name: "bad until", set: func() { journalFlags.until = "yesterday" }, wantErr: true},
		{name: "bad outcome", set: func() { journalFlags.outcome = "maybe" }, wantErr: true},
		{name: "limit too large", set: func() { journalFlags.limit = 1 << 20 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetJournalFlags(t)
			tt.set()

			q, err := buildJournalQuery(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildJournalQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if cli.ExitCode(err) != cli.ExitUsage {
					t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitUsage)
				}
				return
			}
			tt.check(t, q)
		})
	}
}

func TestRunJournalQuery_JSONLines(t *testing.T) {
	resetJournalFlags(t)
	seedJournal(t, time.Minute, 2*time.Minute, 3*time.Minute)
	journalFlags.format = "jsonl"
	journalFlags.outcome = "resolved"

	cmd, out := testCommand("")
	if err := runJournalQuery(cmd, nil); err != nil {
		t.Fatalf("runJournalQuery() error = %v", err)
	}

	var logIDs []string
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var rec evidence.TurnRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line is not JSON: %v: %s", err, sc.Text())
		}
		logIDs = append(logIDs, rec.LogID)
	}
	if got := strings.Join(logIDs, ","); got != "dmkit_0,dmkit_2" {
		t.Errorf("log ids = %s, want dmkit_0,dmkit_2", got)
	}
}

func TestRunJournalQuery_TextAndCount(t *testing.T) {
	resetJournalFlags(t)
	seedJournal(t, time.Minute, 2*time.Hour)

	cmd, out := testCommand("")
	if err := runJournalQuery(cmd, nil); err != nil {
		t.Fatalf("runJournalQuery() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "RECORDED") || strings.Count(out.String(), "dmkit_") != 2 {
		t.Errorf("text output:\n%s", out.String())
	}

	journalFlags.count = true
	journalFlags.since = time.Hour
	cmd, out = testCommand("")
	if err := runJournalQuery(cmd, nil); err != nil {
		t.Fatalf("runJournalQuery(--count) error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "1" {
		t.Errorf("count = %q, want 1", out.String())
	}
}

func TestRunJournalQuery_BadFormat(t *testing.T) {
	resetJournalFlags(t)
	journalFlags.format = "csv"

	cmd, _ := testCommand("")
	if err := runJournalQuery(cmd, nil); cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("runJournalQuery() error = %v, want usage error", err)
	}
}

func TestRunJournalPrune(t *testing.T) {
	resetJournalFlags(t)
	seedJournal(t, time.Hour, 48*time.Hour, 72*time.Hour)
	journalFlags.days = 1

	cmd, out := testCommand("")
	if err := runJournalPrune(cmd, nil); err != nil {
		t.Fatalf("runJournalPrune() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "Deleted 2 turns" {
		t.Errorf("output = %q, want Deleted 2 turns", out.String())
	}

	journalFlags.count = true
	cmd, out = testCommand("")
	if err := runJournalQuery(cmd, nil); err != nil {
		t.Fatalf("runJournalQuery() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "1" {
		t.Errorf("remaining = %q, want 1", out.String())
	}
}
