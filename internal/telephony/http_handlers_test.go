package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type recordingSink struct {
	events  []StatusEvent
	outcome CallbackOutcome
	err     error
}

func (s *recordingSink) HandleStatusCallback(ctx context.Context, ev StatusEvent) (CallbackOutcome, error) {
	s.events = append(s.events, ev)
	return s.outcome, s.err
}

func newCallbackRouter(sink StatusCallbackSink, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := StatusCallbackHandler{Sink: sink}
	handlers := append(mw, h.HandleStatusCallback)
	r.POST("/call/:call_id/status", handlers...)
	return r
}

func postCallback(r http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusCallbackHandler_AlwaysAcknowledges(t *testing.T) {
	cases := []struct {
		name    string
		sink    *recordingSink
		body    string
		applied bool
	}{
		{"applied", &recordingSink{outcome: CallbackApplied}, "CallStatus=completed&CallDuration=12", true},
		{"orphan", &recordingSink{outcome: CallbackOrphan}, "CallStatus=completed", true},
		{"sink error", &recordingSink{err: errors.New("store down")}, "CallStatus=completed", true},
		{"malformed", &recordingSink{}, "CallDuration=12", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postCallback(newCallbackRouter(tc.sink), "/call/CA123/status", tc.body, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "xml") {
				t.Fatalf("expected xml content type, got %q", ct)
			}
			if !strings.Contains(w.Body.String(), "<Response") {
				t.Fatalf("expected empty TwiML, got %s", w.Body.String())
			}
			if got := len(tc.sink.events) == 1; got != tc.applied {
				t.Fatalf("sink called=%v, want %v", got, tc.applied)
			}
		})
	}
}

func TestStatusCallbackHandler_PassesEvent(t *testing.T) {
	sink := &recordingSink{outcome: CallbackApplied}
	postCallback(newCallbackRouter(sink), "/call/CA123/status", "CallStatus=completed&CallDuration=12&CallPrice=-0.0075", nil)

	if len(sink.events) != 1 {
		t.Fatalf("expected one event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.CallID != "CA123" || ev.Status != "completed" || *ev.Duration != 12 || *ev.Price != -0.0075 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStatusCallbackHandler_NilSink(t *testing.T) {
	w := postCallback(newCallbackRouter(nil), "/call/CA123/status", "CallStatus=completed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

// twilioSignature computes X-Twilio-Signature the way Twilio does:
// HMAC-SHA1 over the full URL followed by the sorted POST params.
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureMiddleware(t *testing.T) {
	const token = "secret-token"
	const base = "https://relay.example.com"
	form := url.Values{"CallSid": {"CA123"}, "CallStatus": {"completed"}}

	sink := &recordingSink{outcome: CallbackApplied}
	r := newCallbackRouter(sink, SignatureMiddleware(token, base+"/"))

	good := twilioSignature(token, base+"/call/CA123/status", form)
	w := postCallback(r, "/call/CA123/status", form.Encode(), http.Header{headerTwilioSignature: {good}})
	if w.Code != http.StatusOK || len(sink.events) != 1 {
		t.Fatalf("expected signed callback accepted, got %d (%d events)", w.Code, len(sink.events))
	}

	w = postCallback(r, "/call/CA123/status", form.Encode(), http.Header{headerTwilioSignature: {"bogus"}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", w.Code)
	}
	w = postCallback(r, "/call/CA123/status", form.Encode(), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing signature, got %d", w.Code)
	}
	if len(sink.events) != 1 {
		t.Fatalf("rejected callbacks must not reach the sink")
	}
}
