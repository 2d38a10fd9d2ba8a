package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"answering-machine/internal/apperr"
)

func newRecord(id string, at time.Time) CallRecord {
	return CallRecord{
		CallID:            id,
		DestinationNumber: "+15551234567",
		AudioURL:          "https://example.com/a.mp3",
		Status:            CallStatusQueued,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func TestMemoryStore_PutOnce(t *testing.T) {
	s := NewMemoryStore(StoreOptions{})
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if err := s.Put(ctx, newRecord("CA1", now)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, newRecord("CA1", now)); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if err := s.Put(ctx, newRecord("", now)); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMemoryStore_UpdateUnknownIsNotFound(t *testing.T) {
	s := NewMemoryStore(StoreOptions{})
	_, err := s.Update(context.Background(), "CA404", StatusUpdate{Status: CallStatusCompleted, UpdatedAt: time.Now()})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if recs, _ := s.List(context.Background()); len(recs) != 0 {
		t.Fatalf("update must not create records")
	}
}

func TestMemoryStore_UpdateIsIdempotent(t *testing.T) {
	s := NewMemoryStore(StoreOptions{})
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	_ = s.Put(ctx, newRecord("CA1", now))

	d, p := 12, -0.0075
	u := StatusUpdate{Status: CallStatusCompleted, Duration: &d, Price: &p, PriceUnit: "USD", UpdatedAt: now.Add(time.Minute)}

	first, err := s.Update(ctx, "CA1", u)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := s.Update(ctx, "CA1", u)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if first.Status != second.Status || *first.Duration != *second.Duration || *first.Price != *second.Price ||
		!first.UpdatedAt.Equal(second.UpdatedAt) || first.PriceUnit != second.PriceUnit {
		t.Fatalf("expected identical records, got %+v and %+v", first, second)
	}
}

func TestMemoryStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	inOrder := NewMemoryStore(StoreOptions{})
	_ = inOrder.Put(ctx, newRecord("CA1", now))
	_, _ = inOrder.Update(ctx, "CA1", StatusUpdate{Status: CallStatusInProgress, UpdatedAt: now})
	got, _ := inOrder.Update(ctx, "CA1", StatusUpdate{Status: CallStatusCompleted, UpdatedAt: now})
	if got.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}

	reversed := NewMemoryStore(StoreOptions{})
	_ = reversed.Put(ctx, newRecord("CA1", now))
	_, _ = reversed.Update(ctx, "CA1", StatusUpdate{Status: CallStatusCompleted, UpdatedAt: now})
	got, _ = reversed.Update(ctx, "CA1", StatusUpdate{Status: CallStatusInProgress, UpdatedAt: now})
	if got.Status != CallStatusInProgress {
		t.Fatalf("expected in-progress (last write wins), got %q", got.Status)
	}
}

func TestMemoryStore_RejectStale(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s := NewMemoryStore(StoreOptions{RejectStale: true})
	_ = s.Put(ctx, newRecord("CA1", now))

	two, one := 2, 1
	if _, err := s.Update(ctx, "CA1", StatusUpdate{Status: CallStatusCompleted, SequenceNumber: &two, UpdatedAt: now}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := s.Update(ctx, "CA1", StatusUpdate{Status: CallStatusInProgress, SequenceNumber: &one, UpdatedAt: now})
	if !errors.Is(err, apperr.ErrStaleEvent) {
		t.Fatalf("expected stale event, got %v", err)
	}
	got, _ := s.Get(ctx, "CA1")
	if got.Status != CallStatusCompleted {
		t.Fatalf("stale update must not apply, got %q", got.Status)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s := NewMemoryStore(StoreOptions{})
	for i := 0; i < 8; i++ {
		_ = s.Put(ctx, newRecord(fmt.Sprintf("CA%d", i), now))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for j := 0; j < 50; j++ {
			wg.Add(1)
			go func(id string, n int) {
				defer wg.Done()
				d := n
				if _, err := s.Update(ctx, id, StatusUpdate{Status: CallStatusInProgress, Duration: &d, UpdatedAt: now}); err != nil {
					t.Errorf("update: %v", err)
				}
				_, _ = s.Get(ctx, id)
			}(fmt.Sprintf("CA%d", i), j)
		}
	}
	wg.Wait()

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 8 {
		t.Fatalf("expected 8 records, got %d", len(recs))
	}
	for _, r := range recs {
		if r.Status != CallStatusInProgress || r.Duration == nil {
			t.Fatalf("unexpected record %+v", r)
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	s := NewMemoryStore(StoreOptions{})
	_ = s.Put(ctx, newRecord("CA1", now))

	r, _ := s.Get(ctx, "CA1")
	r.Status = CallStatusFailed
	again, _ := s.Get(ctx, "CA1")
	if again.Status != CallStatusQueued {
		t.Fatalf("store state leaked through returned record")
	}
}
