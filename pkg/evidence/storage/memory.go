package storage

import (
	"context"
	"sort"
	"sync"

	"dmkit-hq/dmkit/pkg/evidence"
)

// MemoryStorage keeps records in a map. Records are lost on exit.
type MemoryStorage struct {
	records map[string]*evidence.TurnRecord
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*evidence.TurnRecord)}
}

// Store saves a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *record
	s.records[record.ID] = &c
	return nil
}

// Query returns copies of the matching records ordered by RecordedAt.
func (s *MemoryStorage) Query(ctx context.Context, q *evidence.Query) ([]*evidence.TurnRecord, error) {
	s.mu.RLock()
	results := []*evidence.TurnRecord{}
	for _, r := range s.records {
		if matches(r, q) {
			c := *r
			results = append(results, &c)
		}
	}
	s.mu.RUnlock()

	asc := q.SortOrder == "asc"
	sort.Slice(results, func(i, j int) bool {
		if asc {
			return results[i].RecordedAt.Before(results[j].RecordedAt)
		}
		return results[i].RecordedAt.After(results[j].RecordedAt)
	})

	if q.Offset >= len(results) {
		return []*evidence.TurnRecord{}, nil
	}
	results = results[q.Offset:]
	if limit := effectiveLimit(q); limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(ctx context.Context, q *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if matches(r, q) {
			n++
		}
	}
	return n, nil
}

// Delete removes the matching records.
func (s *MemoryStorage) Delete(ctx context.Context, q *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if matches(r, q) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// DeleteOldest removes the n earliest records.
func (s *MemoryStorage) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*evidence.TurnRecord, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RecordedAt.Before(all[j].RecordedAt) })
	if int64(len(all)) < n {
		n = int64(len(all))
	}
	for _, r := range all[:n] {
		delete(s.records, r.ID)
	}
	return n, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(context.Context) error {
	return nil
}

// Close drops every record.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*evidence.TurnRecord)
	return nil
}

// Size returns the number of stored records.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(r *evidence.TurnRecord, q *evidence.Query) bool {
	if q.StartTime != nil && r.RecordedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.RecordedAt.After(*q.EndTime) {
		return false
	}
	if q.LogID != "" && r.LogID != q.LogID {
		return false
	}
	if q.Product != "" && r.Product != q.Product {
		return false
	}
	if q.Domain != "" && r.Domain != q.Domain {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	return true
}

func effectiveLimit(q *evidence.Query) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return defaultLimit
}
