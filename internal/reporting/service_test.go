package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"answering-machine/internal/calls"
)

func seed(t *testing.T, recs ...calls.CallRecord) *calls.MemoryStore {
	t.Helper()
	s := calls.NewMemoryStore(calls.StoreOptions{})
	for _, r := range recs {
		if err := s.Put(context.Background(), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := seed(t,
		calls.CallRecord{CallID: "c1", Status: calls.CallStatusCompleted, Duration: intPtr(12), Price: floatPtr(-0.0075), PriceUnit: "USD", CreatedAt: now, UpdatedAt: now},
		calls.CallRecord{CallID: "c2", Status: calls.CallStatusCompleted, Duration: intPtr(30), Price: floatPtr(-0.0125), PriceUnit: "USD", CreatedAt: now, UpdatedAt: now},
		calls.CallRecord{CallID: "c3", Status: calls.CallStatusNoAnswer, Duration: intPtr(0), CreatedAt: now, UpdatedAt: now},
		calls.CallRecord{CallID: "c4", Status: calls.CallStatusQueued, CreatedAt: now, UpdatedAt: now},
		calls.CallRecord{CallID: "c5", Status: "answered", CreatedAt: now, UpdatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 || out.CompletedCalls != 2 || out.NoAnswerCalls != 1 || out.QueuedCalls != 1 || out.OtherCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalDurationSeconds != 42 || out.AverageDurationSeconds != 14 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.PricedCalls != 2 || out.Spend["USD"] < 0.0199 || out.Spend["USD"] > 0.0201 {
		t.Fatalf("unexpected spend: %+v", out.Spend)
	}
}

func TestReporting_RangeFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := seed(t,
		calls.CallRecord{CallID: "old", Status: calls.CallStatusCompleted, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
		calls.CallRecord{CallID: "new", Status: calls.CallStatusCompleted, CreatedAt: now, UpdatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}
