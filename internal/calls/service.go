package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"answering-machine/internal/apperr"
	"answering-machine/internal/observability"
	"answering-machine/internal/telephony"
	"answering-machine/pkg/logger"
)

// Dialer places outbound calls. *telephony.Gateway satisfies it.
type Dialer interface {
	InitiateCall(ctx context.Context, destination, audioURL string) (telephony.CallResult, error)
}

// CallFetcher reads live call state from the provider. telephony.Provider satisfies it.
type CallFetcher interface {
	FetchCall(ctx context.Context, callID string) (telephony.CallInfo, error)
}

// Journal records callbacks that were acknowledged but not applied. *audit.Service satisfies it.
type Journal interface {
	LogOrphanCallback(ctx context.Context, callID, status string, payload any) error
	LogStaleCallback(ctx context.Context, callID, status string, payload any) error
}

// Service is the call-lifecycle tracker. It composes the outbound gateway with the
// record store, merges provider callbacks, and answers status queries.
type Service struct {
	store   Store
	dialer  Dialer
	fetcher CallFetcher
	journal Journal
	clock   func() time.Time
}

func NewService(store Store, dialer Dialer, fetcher CallFetcher, journal Journal) *Service {
	return &Service{store: store, dialer: dialer, fetcher: fetcher, journal: journal, clock: time.Now}
}

// InitiateCall places the call and, on success, creates its queued record.
//
// A failure to persist the record does not undo the call: the result stays
// successful so the client learns the call_id, and the error is logged.
func (s *Service) InitiateCall(ctx context.Context, destination, audioURL string) (telephony.CallResult, error) {
	log := logger.From(ctx)
	if s.dialer == nil {
		err := fmt.Errorf("calls: dialer: %w", apperr.ErrNotConfigured)
		observability.RecordCallInitiated(apperr.Kind(err))
		return telephony.CallResult{AudioURL: audioURL, Error: err.Error()}, err
	}

	res, err := s.dialer.InitiateCall(ctx, destination, audioURL)
	if err != nil {
		observability.RecordCallInitiated(apperr.Kind(err))
		return res, err
	}
	observability.RecordCallInitiated("success")

	now := s.clock().UTC()
	rec := CallRecord{
		CallID:            res.CallID,
		DestinationNumber: strings.TrimSpace(destination),
		AudioURL:          res.AudioURL,
		Status:            CallStatusQueued,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		log.Error("call record not persisted", "call_id", res.CallID, "err", err)
		return res, nil
	}
	log.Info("call initiated", "call_id", res.CallID, "callback_registered", res.CallbackRegistered)
	return res, nil
}

// HandleStatusCallback merges one provider status event into the matching record.
//
// Unknown call ids are orphans and stale events (when stale rejection is on) are
// dropped; both are journaled and reported with a nil error so the provider is
// acknowledged. Only store failures return an error.
func (s *Service) HandleStatusCallback(ctx context.Context, ev telephony.StatusEvent) (telephony.CallbackOutcome, error) {
	log := logger.From(ctx)
	u := StatusUpdate{
		Status:         CallStatus(ev.Status),
		Duration:       ev.Duration,
		Price:          ev.Price,
		PriceUnit:      ev.PriceUnit,
		ErrorMessage:   ev.ErrorMessage,
		SequenceNumber: ev.SequenceNumber,
		UpdatedAt:      s.clock().UTC(),
	}

	rec, err := s.store.Update(ctx, ev.CallID, u)
	switch {
	case err == nil:
		observability.RecordStatusCallback(string(telephony.CallbackApplied))
		log.Info("call status updated", "call_id", rec.CallID, "status", string(rec.Status), "terminal", rec.Status.IsTerminal())
		return telephony.CallbackApplied, nil

	case errors.Is(err, apperr.ErrNotFound):
		observability.RecordStatusCallback(string(telephony.CallbackOrphan))
		log.Warn("orphan status callback", "call_id", ev.CallID, "status", ev.Status)
		if s.journal != nil {
			if jerr := s.journal.LogOrphanCallback(ctx, ev.CallID, ev.Status, ev); jerr != nil {
				log.Warn("journal append failed", "call_id", ev.CallID, "err", jerr)
			}
		}
		return telephony.CallbackOrphan, nil

	case errors.Is(err, apperr.ErrStaleEvent):
		observability.RecordStatusCallback(string(telephony.CallbackStale))
		log.Warn("stale status callback", "call_id", ev.CallID, "status", ev.Status, "current", string(rec.Status))
		if s.journal != nil {
			if jerr := s.journal.LogStaleCallback(ctx, ev.CallID, ev.Status, ev); jerr != nil {
				log.Warn("journal append failed", "call_id", ev.CallID, "err", jerr)
			}
		}
		return telephony.CallbackStale, nil

	default:
		observability.RecordStatusCallback("error")
		return "", err
	}
}

// StatusResult answers a status query. Source is "local" when the answer came from
// the record store and "provider" when it came from a live provider lookup.
type StatusResult struct {
	Success bool   `json:"success"`
	Source  string `json:"source,omitempty"`

	CallID            string     `json:"call_id"`
	DestinationNumber string     `json:"destination_number,omitempty"`
	AudioURL          string     `json:"audio_url,omitempty"`
	Status            CallStatus `json:"status,omitempty"`
	Duration          *int       `json:"duration,omitempty"`
	Price             *float64   `json:"price,omitempty"`
	PriceUnit         string     `json:"price_unit,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`

	Error string `json:"error,omitempty"`
}

const (
	SourceLocal    = "local"
	SourceProvider = "provider"
)

// GetStatus resolves callID from the store, falling back to exactly one provider
// lookup when it is unknown locally. Provider answers are not written back.
func (s *Service) GetStatus(ctx context.Context, callID string) (StatusResult, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		err := fmt.Errorf("calls: call_id required: %w", apperr.ErrInvalidArgument)
		return StatusResult{Error: err.Error()}, err
	}

	rec, err := s.store.Get(ctx, callID)
	if err == nil {
		observability.RecordStatusQuery(SourceLocal)
		return resultFromRecord(rec), nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		observability.RecordStatusQuery("error")
		return StatusResult{CallID: callID, Error: err.Error()}, err
	}

	if s.fetcher == nil {
		observability.RecordStatusQuery("not_found")
		err := fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
		return StatusResult{CallID: callID, Error: err.Error()}, err
	}

	info, err := s.fetcher.FetchCall(ctx, callID)
	if err != nil {
		logger.From(ctx).Warn("provider status lookup failed", "call_id", callID, "err", err)
		if errors.Is(err, apperr.ErrNotFound) {
			observability.RecordStatusQuery("not_found")
			err = fmt.Errorf("calls: %s unknown locally and at provider: %w", callID, apperr.ErrNotFound)
		} else {
			observability.RecordStatusQuery("error")
		}
		return StatusResult{CallID: callID, Error: err.Error()}, err
	}
	observability.RecordStatusQuery(SourceProvider)
	return resultFromProvider(callID, info), nil
}

func (s *Service) List(ctx context.Context) ([]CallRecord, error) {
	return s.store.List(ctx)
}

func resultFromRecord(r CallRecord) StatusResult {
	created, updated := r.CreatedAt, r.UpdatedAt
	return StatusResult{
		Success:           true,
		Source:            SourceLocal,
		CallID:            r.CallID,
		DestinationNumber: r.DestinationNumber,
		AudioURL:          r.AudioURL,
		Status:            r.Status,
		Duration:          r.Duration,
		Price:             r.Price,
		PriceUnit:         r.PriceUnit,
		ErrorMessage:      r.ErrorMessage,
		CreatedAt:         &created,
		UpdatedAt:         &updated,
	}
}

func resultFromProvider(callID string, info telephony.CallInfo) StatusResult {
	if info.CallID != "" {
		callID = info.CallID
	}
	return StatusResult{
		Success:           true,
		Source:            SourceProvider,
		CallID:            callID,
		DestinationNumber: info.To,
		Status:            CallStatus(info.Status),
		Duration:          info.Duration,
		Price:             info.Price,
		PriceUnit:         info.PriceUnit,
	}
}
