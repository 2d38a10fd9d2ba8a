package telephony

import (
	"context"
)

// Provider defines the provider-agnostic telephony interface used by business logic.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Errors are classified with apperr: ErrProviderRejected when the provider
//   declined the request, ErrProviderUnavailable for network, timeout and 5xx failures,
//   ErrNotFound when the provider does not know the call.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)
	UpdateCallCallback(ctx context.Context, callID, callbackURL string) error
	FetchCall(ctx context.Context, callID string) (CallInfo, error)
}

// CreateCallRequest places an outbound call that runs Script once answered.
type CreateCallRequest struct {
	// To and From are E.164 where possible.
	To   string `json:"to"`
	From string `json:"from"`

	// Script is the TwiML document executed on answer.
	Script string `json:"script"`
}

type CreateCallResult struct {
	// CallID is the provider's unique identifier for this call.
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// CallInfo is the provider's live view of a call.
type CallInfo struct {
	CallID string `json:"call_id"`
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	Status string `json:"status"`

	// Duration is in seconds; nil until the call ends.
	Duration  *int     `json:"duration,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	PriceUnit string   `json:"price_unit,omitempty"`
}
