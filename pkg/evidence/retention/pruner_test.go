package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/evidence/storage"
)

var now = time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

type pruneObserver struct {
	deleted int64
	err     error
	runs    int
}

func (o *pruneObserver) ObservePrune(deleted int64, err error) {
	o.deleted += deleted
	o.err = err
	o.runs++
}

func seedAges(t *testing.T, s evidence.Storage, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		r := &evidence.TurnRecord{
			ID:         fmt.Sprintf("r%d", i),
			LogID:      "log",
			Product:    "default",
			Outcome:    "resolved",
			RecordedAt: now.Add(-age),
		}
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
}

func newTestPruner(s evidence.Storage, cfg *Config) *Pruner {
	p := NewPruner(s, cfg, nil)
	p.now = func() time.Time { return now }
	return p
}

func TestPruner_Prune(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name        string
		config      Config
		ages        []time.Duration
		wantDeleted int64
		wantLeft    int
	}{
		{"keep forever", Config{}, []time.Duration{day, 100 * day}, 0, 2},
		{"by age", Config{RetentionDays: 30}, []time.Duration{day, 29 * day, 31 * day, 90 * day}, 2, 2},
		{"by count", Config{MaxRecords: 2}, []time.Duration{day, 2 * day, 3 * day, 4 * day}, 2, 2},
		{"under count", Config{MaxRecords: 10}, []time.Duration{day, 2 * day}, 0, 2},
		{"age then count", Config{RetentionDays: 30, MaxRecords: 1}, []time.Duration{day, 2 * day, 40 * day}, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemoryStorage()
			seedAges(t, mem, tt.ages...)
			obs := &pruneObserver{}
			cfg := tt.config
			p := newTestPruner(mem, &cfg)
			p.SetObserver(obs)

			deleted, err := p.Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() = %d, want %d", deleted, tt.wantDeleted)
			}
			if got := mem.Size(); got != tt.wantLeft {
				t.Errorf("records left = %d, want %d", got, tt.wantLeft)
			}
			if obs.runs != 1 || obs.deleted != tt.wantDeleted {
				t.Errorf("observer = %+v", obs)
			}
		})
	}
}

func TestPruner_KeepsNewest(t *testing.T) {
	mem := storage.NewMemoryStorage()
	seedAges(t, mem, time.Hour, 3*time.Hour, 2*time.Hour)
	p := newTestPruner(mem, &Config{MaxRecords: 1})

	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	left, _ := mem.Query(context.Background(), &evidence.Query{})
	if len(left) != 1 || left[0].ID != "r0" {
		t.Errorf("remaining = %+v, want r0", left)
	}
}

type brokenStorage struct {
	*storage.MemoryStorage
}

func (brokenStorage) Delete(context.Context, *evidence.Query) (int64, error) {
	return 0, errors.New("locked")
}

func TestPruner_Error(t *testing.T) {
	obs := &pruneObserver{}
	p := newTestPruner(brokenStorage{storage.NewMemoryStorage()}, &Config{RetentionDays: 1})
	p.SetObserver(obs)

	_, err := p.Prune(context.Background())
	var re *evidence.RetentionError
	if !errors.As(err, &re) || re.Phase != "age" {
		t.Errorf("Prune() error = %v, want RetentionError in age phase", err)
	}
	if obs.err == nil {
		t.Error("observer did not receive the error")
	}
}

func TestScheduler(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPruner(storage.NewMemoryStorage(), &Config{RetentionDays: 1, PruneSchedule: "0 3 * * *"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.scheduler.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if next := p.NextPruning(); next == nil || next.Hour() != 3 {
		t.Errorf("NextPruning() = %v, want 03:00", next)
	}
	p.Stop()
	if p.scheduler.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestScheduler_InvalidAndEmpty(t *testing.T) {
	p := newTestPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "every tuesday"})
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start() with invalid schedule succeeded")
	}

	p = newTestPruner(storage.NewMemoryStorage(), &Config{})
	if err := p.Start(context.Background()); err != nil {
		t.Errorf("Start() with empty schedule error = %v", err)
	}
	if p.scheduler.IsRunning() || p.NextPruning() != nil {
		t.Error("empty schedule started the scheduler")
	}
}

func TestPruner_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "@hourly"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
