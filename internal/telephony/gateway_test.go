package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"answering-machine/internal/apperr"
)

func newTestGateway(p Provider) *Gateway {
	return NewGateway(p, GatewayConfig{
		From:           "+15550000000",
		PublicBaseURL:  "https://relay.example.com/",
		CallsPerSecond: 100,
	})
}

func TestGateway_InitiateCall(t *testing.T) {
	p := &fakeProvider{callID: "CA123"}
	g := newTestGateway(p)

	res, err := g.InitiateCall(context.Background(), "+15551234567", "https://example.com/a.mp3")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Success || res.CallID != "CA123" || res.Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.AudioURL != "https://example.com/a.mp3" || !res.CallbackRegistered {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(p.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(p.created))
	}
	req := p.created[0]
	if req.To != "+15551234567" || req.From != "+15550000000" || !strings.Contains(req.Script, "<Play>https://example.com/a.mp3</Play>") {
		t.Fatalf("unexpected create request %+v", req)
	}
	if got := p.callbacks["CA123"]; got != "https://relay.example.com/call/CA123/status" {
		t.Fatalf("unexpected callback url %q", got)
	}
}

func TestGateway_InvalidArgumentsNeverReachProvider(t *testing.T) {
	p := &fakeProvider{}
	g := newTestGateway(p)

	for _, tc := range []struct{ to, url string }{
		{"", "https://example.com/a.mp3"},
		{"+15551234567", ""},
		{"   ", "https://example.com/a.mp3"},
		{"+15551234567", "not-a-url"},
	} {
		res, err := g.InitiateCall(context.Background(), tc.to, tc.url)
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Fatalf("%q/%q: expected invalid argument, got %v", tc.to, tc.url, err)
		}
		if res.Success || res.CallID != "" || res.Error == "" {
			t.Fatalf("%q/%q: unexpected result %+v", tc.to, tc.url, res)
		}
	}
	if len(p.created) != 0 {
		t.Fatalf("provider contacted %d times", len(p.created))
	}
}

func TestGateway_ProviderFailuresAreRecovered(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"rejected", fmt.Errorf("bad number: %w", apperr.ErrProviderRejected), apperr.ErrProviderRejected},
		{"unavailable", fmt.Errorf("timeout: %w", apperr.ErrProviderUnavailable), apperr.ErrProviderUnavailable},
		{"unclassified", errors.New("boom"), apperr.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(&fakeProvider{createErr: tc.err})
			res, err := g.InitiateCall(context.Background(), "+15551234567", "https://example.com/a.mp3")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if res.Success || res.CallID != "" || res.Error == "" {
				t.Fatalf("expected failure with error string, got %+v", res)
			}
		})
	}
}

func TestGateway_CallbackRegistrationFailureKeepsCall(t *testing.T) {
	p := &fakeProvider{callID: "CA9", callbackErr: fmt.Errorf("down: %w", apperr.ErrProviderUnavailable)}
	g := newTestGateway(p)

	res, err := g.InitiateCall(context.Background(), "+15551234567", "https://example.com/a.mp3")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Success || res.CallID != "CA9" || res.CallbackRegistered {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGateway_RateLimitHonorsContext(t *testing.T) {
	p := &fakeProvider{}
	g := NewGateway(p, GatewayConfig{From: "+15550000000", PublicBaseURL: "https://relay.example.com", CallsPerSecond: 0.001})

	if _, err := g.InitiateCall(context.Background(), "+15551234567", "https://example.com/a.mp3"); err != nil {
		t.Fatalf("first call should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := g.InitiateCall(ctx, "+15551234567", "https://example.com/a.mp3")
	if !errors.Is(err, apperr.ErrProviderUnavailable) || res.Success {
		t.Fatalf("expected provider unavailable from limiter, got %v / %+v", err, res)
	}
	if len(p.created) != 1 {
		t.Fatalf("expected second call held back, got %d creates", len(p.created))
	}
}

func TestGateway_CallbackURLEscapesID(t *testing.T) {
	g := newTestGateway(&fakeProvider{})
	if got := g.CallbackURL("CA 1/2"); got != "https://relay.example.com/call/CA%201%2F2/status" {
		t.Fatalf("unexpected url %q", got)
	}
}
