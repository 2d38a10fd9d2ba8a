package telephony

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"answering-machine/internal/apperr"
	"answering-machine/internal/observability"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioAPI is the slice of the Twilio 2010 REST API this adapter uses.
// *api.ApiService satisfies it.
type twilioAPI interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
	FetchCall(sid string, params *api.FetchCallParams) (*api.ApiV2010Call, error)
	FetchAccount(sid string) (*api.ApiV2010Account, error)
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// Timeout bounds each REST request.
	Timeout time.Duration
}

// TwilioProvider places and inspects calls through the Twilio REST API.
type TwilioProvider struct {
	api        twilioAPI
	accountSID string
}

func NewTwilioProvider(cfg TwilioConfig) *TwilioProvider {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &TwilioProvider{api: rc.Api, accountSID: cfg.AccountSID}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// HealthCheck fetches the configured account, the cheapest authenticated request.
func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	start := time.Now()
	_, err := withContext(ctx, func() (*api.ApiV2010Account, error) {
		return p.api.FetchAccount(p.accountSID)
	})
	return p.finish("fetch_account", start, err)
}

func (p *TwilioProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(req.Script)

	start := time.Now()
	call, err := withContext(ctx, func() (*api.ApiV2010Call, error) {
		return p.api.CreateCall(params)
	})
	if err := p.finish("create_call", start, err); err != nil {
		return CreateCallResult{}, err
	}
	if call == nil || deref(call.Sid) == "" {
		return CreateCallResult{}, fmt.Errorf("twilio: create call: empty sid: %w", apperr.ErrProviderUnavailable)
	}
	return CreateCallResult{CallID: *call.Sid, Status: deref(call.Status)}, nil
}

func (p *TwilioProvider) UpdateCallCallback(ctx context.Context, callID, callbackURL string) error {
	params := &api.UpdateCallParams{}
	params.SetStatusCallback(callbackURL)
	params.SetStatusCallbackMethod("POST")

	start := time.Now()
	_, err := withContext(ctx, func() (*api.ApiV2010Call, error) {
		return p.api.UpdateCall(callID, params)
	})
	return p.finish("update_call", start, err)
}

func (p *TwilioProvider) FetchCall(ctx context.Context, callID string) (CallInfo, error) {
	start := time.Now()
	call, err := withContext(ctx, func() (*api.ApiV2010Call, error) {
		return p.api.FetchCall(callID, &api.FetchCallParams{})
	})
	if err := p.finish("fetch_call", start, err); err != nil {
		return CallInfo{}, err
	}
	if call == nil {
		return CallInfo{}, fmt.Errorf("twilio: fetch call %s: %w", callID, apperr.ErrNotFound)
	}
	return callInfoFromTwilio(callID, call), nil
}

func (p *TwilioProvider) finish(op string, start time.Time, err error) error {
	if err == nil {
		observability.ObserveProvider(p.Name(), op, start, "")
		return nil
	}
	err = classifyTwilioError(op, err)
	observability.ObserveProvider(p.Name(), op, start, apperr.Kind(err))
	return err
}

func callInfoFromTwilio(callID string, c *api.ApiV2010Call) CallInfo {
	info := CallInfo{
		CallID:    callID,
		To:        deref(c.To),
		From:      deref(c.From),
		Status:    deref(c.Status),
		PriceUnit: deref(c.PriceUnit),
	}
	if sid := deref(c.Sid); sid != "" {
		info.CallID = sid
	}
	if d, err := strconv.Atoi(strings.TrimSpace(deref(c.Duration))); err == nil {
		info.Duration = &d
	}
	if pr, err := strconv.ParseFloat(strings.TrimSpace(deref(c.Price)), 64); err == nil {
		info.Price = &pr
	}
	return info
}

// classifyTwilioError maps SDK errors onto the apperr taxonomy.
// 404 means the call is unknown, other 4xx (except 429) mean the request was declined,
// everything else is treated as the provider being unavailable.
func classifyTwilioError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("twilio: %s: %v: %w", op, err, apperr.ErrProviderUnavailable)
	}
	var rest *client.TwilioRestError
	if errors.As(err, &rest) {
		switch {
		case rest.Status == 404:
			return fmt.Errorf("twilio: %s: %s: %w", op, rest.Message, apperr.ErrNotFound)
		case rest.Status >= 400 && rest.Status < 500 && rest.Status != 429:
			return fmt.Errorf("twilio: %s: %s (code %d): %w", op, rest.Message, rest.Code, apperr.ErrProviderRejected)
		default:
			return fmt.Errorf("twilio: %s: %s (status %d): %w", op, rest.Message, rest.Status, apperr.ErrProviderUnavailable)
		}
	}
	return fmt.Errorf("twilio: %s: %v: %w", op, err, apperr.ErrProviderUnavailable)
}

// withContext runs fn, returning early if ctx ends first. The SDK has no context
// support; the REST client timeout eventually stops the abandoned request.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
