package telephony

import (
	"context"
	"errors"
	"testing"
	"time"

	"answering-machine/internal/apperr"

	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilioAPI struct {
	createParams *api.CreateCallParams
	updateSID    string
	updateParams *api.UpdateCallParams

	call  *api.ApiV2010Call
	err   error
	delay time.Duration
}

func (f *fakeTwilioAPI) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	f.createParams = params
	time.Sleep(f.delay)
	return f.call, f.err
}

func (f *fakeTwilioAPI) UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error) {
	f.updateSID, f.updateParams = sid, params
	return f.call, f.err
}

func (f *fakeTwilioAPI) FetchCall(sid string, params *api.FetchCallParams) (*api.ApiV2010Call, error) {
	time.Sleep(f.delay)
	return f.call, f.err
}

func (f *fakeTwilioAPI) FetchAccount(sid string) (*api.ApiV2010Account, error) {
	return &api.ApiV2010Account{}, f.err
}

func strPtr(s string) *string { return &s }

func TestTwilioProvider_CreateCall(t *testing.T) {
	f := &fakeTwilioAPI{call: &api.ApiV2010Call{Sid: strPtr("CA123"), Status: strPtr("queued")}}
	p := &TwilioProvider{api: f, accountSID: "AC1"}

	res, err := p.CreateCall(context.Background(), CreateCallRequest{To: "+15551234567", From: "+15550000000", Script: "<Response/>"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.CallID != "CA123" || res.Status != "queued" {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.createParams == nil || *f.createParams.To != "+15551234567" || *f.createParams.From != "+15550000000" || *f.createParams.Twiml != "<Response/>" {
		t.Fatalf("unexpected params %+v", f.createParams)
	}
}

func TestTwilioProvider_UpdateCallCallback(t *testing.T) {
	f := &fakeTwilioAPI{call: &api.ApiV2010Call{Sid: strPtr("CA123")}}
	p := &TwilioProvider{api: f}

	if err := p.UpdateCallCallback(context.Background(), "CA123", "https://relay.example.com/call/CA123/status"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.updateSID != "CA123" || *f.updateParams.StatusCallback != "https://relay.example.com/call/CA123/status" || *f.updateParams.StatusCallbackMethod != "POST" {
		t.Fatalf("unexpected update %q %+v", f.updateSID, f.updateParams)
	}
}

func TestTwilioProvider_FetchCall(t *testing.T) {
	f := &fakeTwilioAPI{call: &api.ApiV2010Call{
		Sid:       strPtr("CA123"),
		Status:    strPtr("completed"),
		Duration:  strPtr("12"),
		Price:     strPtr("-0.0075"),
		PriceUnit: strPtr("USD"),
	}}
	p := &TwilioProvider{api: f}

	info, err := p.FetchCall(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.Status != "completed" || info.Duration == nil || *info.Duration != 12 || info.Price == nil || *info.Price != -0.0075 || info.PriceUnit != "USD" {
		t.Fatalf("unexpected info %+v", info)
	}

	f.call = &api.ApiV2010Call{Sid: strPtr("CA124"), Status: strPtr("ringing")}
	info, err = p.FetchCall(context.Background(), "CA124")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.Duration != nil || info.Price != nil {
		t.Fatalf("expected no duration/price while ringing, got %+v", info)
	}
}

func TestTwilioProvider_ErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", &client.TwilioRestError{Status: 404, Code: 20404, Message: "not found"}, apperr.ErrNotFound},
		{"bad number", &client.TwilioRestError{Status: 400, Code: 21211, Message: "invalid 'To' phone number"}, apperr.ErrProviderRejected},
		{"too many requests", &client.TwilioRestError{Status: 429, Code: 20429, Message: "too many requests"}, apperr.ErrProviderUnavailable},
		{"server error", &client.TwilioRestError{Status: 503, Message: "unavailable"}, apperr.ErrProviderUnavailable},
		{"network", errors.New("dial tcp: connection refused"), apperr.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &TwilioProvider{api: &fakeTwilioAPI{err: tc.err}}
			if _, err := p.FetchCall(context.Background(), "CA1"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTwilioProvider_ContextTimeout(t *testing.T) {
	p := &TwilioProvider{api: &fakeTwilioAPI{delay: 200 * time.Millisecond, call: &api.ApiV2010Call{Sid: strPtr("CA1")}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.CreateCall(ctx, CreateCallRequest{To: "+1", From: "+2", Script: "<Response/>"})
	if !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable on timeout, got %v", err)
	}
}

func TestTwilioProvider_HealthCheck(t *testing.T) {
	p := &TwilioProvider{api: &fakeTwilioAPI{}, accountSID: "AC1"}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	p = &TwilioProvider{api: &fakeTwilioAPI{err: &client.TwilioRestError{Status: 401, Message: "auth"}}, accountSID: "AC1"}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, apperr.ErrProviderRejected) {
		t.Fatalf("expected rejected credentials, got %v", err)
	}
}
