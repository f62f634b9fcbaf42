package manager

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"dmkit-hq/dmkit/pkg/policy/model"
)

// Snapshot is an acquired rule set generation. It stays valid, and is never
// replaced, until it is released.
type Snapshot struct {
	*model.RuleSet

	slot     int
	released atomic.Bool
}

// Store is the double-buffered generation cache. One slot is active and
// serves new readers; the other holds the previous generation until its
// readers drain and a reload replaces it.
type Store struct {
	loader *Loader
	logger *slog.Logger

	mu     sync.Mutex
	slots  [2]*model.RuleSet
	refs   [2]int
	active int
}

// NewStore creates an empty store. Acquire fails with ErrNotLoaded until
// the first generation is installed.
func NewStore(loader *Loader, logger *slog.Logger) *Store {
	if loader == nil {
		loader = NewLoader(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		loader: loader,
		logger: logger.With("component", "policy.store"),
	}
}

// Acquire pins the active generation. Every successful Acquire must be
// paired with exactly one Release.
func (s *Store) Acquire() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.slots[s.active]
	if rs == nil {
		return nil, ErrNotLoaded
	}
	s.refs[s.active]++
	return &Snapshot{RuleSet: rs, slot: s.active}, nil
}

// Release unpins a snapshot. Releasing the same snapshot twice is a no-op.
func (s *Store) Release(snap *Snapshot) {
	if snap == nil || !snap.released.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs[snap.slot] > 0 {
		s.refs[snap.slot]--
	}
}

// Reload builds a new generation from path and installs it. A load failure
// leaves the live generation untouched.
func (s *Store) Reload(path string) (*model.RuleSet, error) {
	rs, err := s.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := s.Install(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// Install places rs in the inactive slot and makes it active. It fails
// with ErrGenerationInUse while readers still hold the inactive slot; the
// caller is expected to retry later.
func (s *Store) Install(rs *model.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := 1 - s.active
	if s.slots[s.active] == nil {
		target = s.active
	}

	if s.refs[target] > 0 {
		s.logger.Warn("Cannot install generation, previous generation still in use",
			"slot", target,
			"readers", s.refs[target],
		)
		return ErrGenerationInUse
	}

	s.slots[target] = rs
	s.active = target
	return nil
}

// Current returns the active generation without pinning it. It is meant
// for introspection only; resolve paths must use Acquire.
func (s *Store) Current() *model.RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[s.active]
}

// Readers returns the outstanding reader count of the active and inactive
// slots.
func (s *Store) Readers() (active, inactive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[s.active], s.refs[1-s.active]
}
