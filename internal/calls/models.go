package calls

import "time"

// CallRecord is the local view of one outbound call attempt.
//
// CallID is assigned by the telephony provider and is the only key; nothing in
// this package invents identifiers. DestinationNumber and AudioURL never change
// after creation. Duration, Price and ErrorMessage are filled in by status
// callbacks once the provider reports them.
type CallRecord struct {
	CallID            string     `json:"call_id" db:"call_id"`
	DestinationNumber string     `json:"destination_number" db:"destination_number"`
	AudioURL          string     `json:"audio_url" db:"audio_url"`
	Status            CallStatus `json:"status" db:"status"`

	// Duration is the call duration in seconds.
	Duration     *int     `json:"duration,omitempty" db:"duration"`
	Price        *float64 `json:"price,omitempty" db:"price"`
	PriceUnit    string   `json:"price_unit,omitempty" db:"price_unit"`
	ErrorMessage string   `json:"error_message,omitempty" db:"error_message"`

	// SequenceNumber is the provider sequence of the last applied callback.
	SequenceNumber *int `json:"sequence_number,omitempty" db:"sequence_number"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CallStatus uses the provider vocabulary. It is an open set: unknown values
// reported by the provider are stored as-is.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// StatusUpdate is a partial update produced from one status callback.
// Nil / empty fields leave the stored value unchanged.
type StatusUpdate struct {
	Status         CallStatus
	Duration       *int
	Price          *float64
	PriceUnit      string
	ErrorMessage   string
	SequenceNumber *int

	// UpdatedAt is the mutation time. Stores clamp it to CreatedAt.
	UpdatedAt time.Time
}

// apply merges u into r. Shared by the in-process stores so their merge rules match.
func (u StatusUpdate) apply(r *CallRecord) {
	if u.Status != "" {
		r.Status = u.Status
	}
	if u.Duration != nil {
		d := *u.Duration
		r.Duration = &d
	}
	if u.Price != nil {
		p := *u.Price
		r.Price = &p
	}
	if u.PriceUnit != "" {
		r.PriceUnit = u.PriceUnit
	}
	if u.ErrorMessage != "" {
		r.ErrorMessage = u.ErrorMessage
	}
	if u.SequenceNumber != nil {
		n := *u.SequenceNumber
		r.SequenceNumber = &n
	}
	r.UpdatedAt = u.UpdatedAt
	if r.UpdatedAt.Before(r.CreatedAt) {
		r.UpdatedAt = r.CreatedAt
	}
}

// isStale reports whether u carries a sequence number that is not newer than r's.
func (u StatusUpdate) isStale(r CallRecord) bool {
	if u.SequenceNumber == nil || r.SequenceNumber == nil {
		return false
	}
	return *u.SequenceNumber <= *r.SequenceNumber
}

// clone returns a deep copy so callers never share pointers with a store.
func (r CallRecord) clone() CallRecord {
	out := r
	if r.Duration != nil {
		d := *r.Duration
		out.Duration = &d
	}
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.SequenceNumber != nil {
		n := *r.SequenceNumber
		out.SequenceNumber = &n
	}
	return out
}
