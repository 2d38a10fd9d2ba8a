package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"answering-machine/internal/apperr"
	"answering-machine/pkg/logger"

	"golang.org/x/time/rate"
)

type GatewayConfig struct {
	// From is the configured origin number.
	From string

	// PublicBaseURL is the externally reachable origin of this service; status
	// callbacks are registered under it.
	PublicBaseURL string

	// CallsPerSecond caps outbound call creation. Twilio enforces a per-account
	// CPS limit and rejects excess requests.
	CallsPerSecond float64
}

// CallResult is the recovered outcome of InitiateCall. Exactly one of CallID and
// Error is non-empty.
type CallResult struct {
	Success            bool   `json:"success"`
	CallID             string `json:"call_id,omitempty"`
	AudioURL           string `json:"audio_url"`
	Status             string `json:"status,omitempty"`
	CallbackRegistered bool   `json:"callback_registered"`
	Error              string `json:"error,omitempty"`
}

// Gateway places outbound playback calls. It does not own call records; the
// caller persists a record for every successful result.
type Gateway struct {
	provider Provider
	from     string
	baseURL  string
	limiter  *rate.Limiter
}

func NewGateway(p Provider, cfg GatewayConfig) *Gateway {
	cps := cfg.CallsPerSecond
	if cps <= 0 {
		cps = 1
	}
	burst := int(cps)
	if burst < 1 {
		burst = 1
	}
	return &Gateway{
		provider: p,
		from:     cfg.From,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		limiter:  rate.NewLimiter(rate.Limit(cps), burst),
	}
}

// CallbackURL is the status callback endpoint registered for callID.
func (g *Gateway) CallbackURL(callID string) string {
	return g.baseURL + "/call/" + url.PathEscape(callID) + "/status"
}

// InitiateCall places a call to destination that plays audioURL and hangs up.
//
// Failures are returned both as a CallResult with Success=false and a non-empty
// Error, and as an error wrapping ErrInvalidArgument, ErrProviderRejected or
// ErrProviderUnavailable. Invalid input never reaches the provider.
func (g *Gateway) InitiateCall(ctx context.Context, destination, audioURL string) (CallResult, error) {
	log := logger.From(ctx)
	destination = strings.TrimSpace(destination)
	audioURL = strings.TrimSpace(audioURL)
	res := CallResult{AudioURL: audioURL}

	if destination == "" {
		return failed(res, fmt.Errorf("telephony: destination_number required: %w", apperr.ErrInvalidArgument))
	}
	script, err := PlaybackScript(audioURL)
	if err != nil {
		return failed(res, err)
	}
	if g.provider == nil {
		return failed(res, fmt.Errorf("telephony: provider: %w", apperr.ErrNotConfigured))
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return failed(res, fmt.Errorf("telephony: waiting for call slot: %v: %w", err, apperr.ErrProviderUnavailable))
	}

	created, err := g.provider.CreateCall(ctx, CreateCallRequest{
		To:     destination,
		From:   g.from,
		Script: script,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrProviderRejected) && !errors.Is(err, apperr.ErrProviderUnavailable) {
			err = fmt.Errorf("%v: %w", err, apperr.ErrProviderUnavailable)
		}
		log.Warn("create call failed", "provider", g.provider.Name(), "to", destination, "err", err)
		return failed(res, err)
	}

	res.Success = true
	res.CallID = created.CallID
	res.Status = created.Status

	if g.baseURL == "" {
		log.Warn("public base url not set; status callbacks disabled", "call_id", created.CallID)
		return res, nil
	}
	if err := g.provider.UpdateCallCallback(ctx, created.CallID, g.CallbackURL(created.CallID)); err != nil {
		log.Error("status callback registration failed", "call_id", created.CallID, "err", err)
		return res, nil
	}
	res.CallbackRegistered = true
	return res, nil
}

func failed(res CallResult, err error) (CallResult, error) {
	res.Success = false
	res.CallID = ""
	res.Error = err.Error()
	return res, err
}
