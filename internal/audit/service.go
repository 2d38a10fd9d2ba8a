package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for journal events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Service journals callbacks that were acknowledged but not applied.
//
// IMPORTANT:
// - The journal is internal-only, exposed on the client-authenticated API.
// - Callers should treat journaling as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogOrphanCallback records a callback for a call_id with no local record.
func (s *Service) LogOrphanCallback(ctx context.Context, callID, status string, payload any) error {
	return s.Append(ctx, Event{
		Type:     EventTypeOrphanCallback,
		CallID:   callID,
		Status:   status,
		Message:  "callback for unknown call discarded",
		Metadata: marshalMetadata(payload),
	})
}

// LogStaleCallback records a callback dropped because a newer one was already applied.
func (s *Service) LogStaleCallback(ctx context.Context, callID, status string, payload any) error {
	return s.Append(ctx, Event{
		Type:     EventTypeStaleCallback,
		CallID:   callID,
		Status:   status,
		Message:  "out-of-order callback discarded",
		Metadata: marshalMetadata(payload),
	})
}

// Recent returns up to limit journal events, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.Recent(ctx, limit)
}

func marshalMetadata(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
