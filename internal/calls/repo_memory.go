package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"answering-machine/internal/apperr"
)

// MemoryStore keeps call records in process memory.
//
// Records are lost on restart and never evicted. The index lock is held only to
// find or insert an entry; each entry has its own mutex so updates of different
// calls proceed in parallel while updates of the same call are serialized.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryEntry
	opts    StoreOptions
}

type memoryEntry struct {
	mu  sync.Mutex
	rec CallRecord
}

func NewMemoryStore(opts StoreOptions) *MemoryStore {
	return &MemoryStore{records: map[string]*memoryEntry{}, opts: opts}
}

func (s *MemoryStore) Put(ctx context.Context, r CallRecord) error {
	if r.CallID == "" {
		return fmt.Errorf("calls: call_id required: %w", apperr.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.CallID]; ok {
		return fmt.Errorf("calls: %s: %w", r.CallID, apperr.ErrAlreadyExists)
	}
	s.records[r.CallID] = &memoryEntry{rec: r.clone()}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	e, ok := s.entry(callID)
	if !ok {
		return CallRecord{}, fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, callID string, u StatusUpdate) (CallRecord, error) {
	e, ok := s.entry(callID)
	if !ok {
		return CallRecord{}, fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.opts.RejectStale && u.isStale(e.rec) {
		return e.rec.clone(), fmt.Errorf("calls: %s: %w", callID, apperr.ErrStaleEvent)
	}
	u.apply(&e.rec)
	return e.rec.clone(), nil
}

// List returns all records ordered by creation time.
func (s *MemoryStore) List(ctx context.Context) ([]CallRecord, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]CallRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) entry(callID string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[callID]
	return e, ok
}
