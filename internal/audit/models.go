package audit

import "time"

// Event is an immutable, append-only record of a provider callback that could
// not be merged into local call state.
//
// Invariants:
// - Events are never updated or deleted (the memory repo only drops the oldest
//   events once its capacity is reached).
// - call_id and type are required.
// - Journaling is best-effort; do not block the callback acknowledgment on it.

type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	CallID string `json:"call_id"`
	Status string `json:"status,omitempty"`

	// IPAddress is the resolved client IP of the delivering request, when known.
	IPAddress string `json:"ip_address,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	// Metadata is optional JSON with the full callback payload.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeOrphanCallback EventType = "orphan_callback"
	EventTypeStaleCallback  EventType = "stale_callback"
)
