package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"answering-machine/internal/apperr"
)

// StatusEvent is one status callback delivered by the provider.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
//
// Optional fields are nil / empty when absent from the form so callers can
// leave the stored value unchanged.
type StatusEvent struct {
	CallID     string `json:"call_id"`
	AccountSID string `json:"account_sid,omitempty"`
	Status     string `json:"status"`

	Duration       *int     `json:"duration,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	PriceUnit      string   `json:"price_unit,omitempty"`
	ErrorCode      string   `json:"error_code,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	SequenceNumber *int     `json:"sequence_number,omitempty"`

	// Timestamp is the provider's RFC1123Z event time, kept verbatim.
	Timestamp string `json:"timestamp,omitempty"`
}

// ParseStatusCallback reads a status callback form. The call id in the URL path is
// authoritative; CallSid from the form is used only when the path has none.
func ParseStatusCallback(r *http.Request, pathCallID string) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, fmt.Errorf("telephony: parse callback form: %v: %w", err, apperr.ErrInvalidArgument)
	}
	ev := StatusEvent{
		CallID:       strings.TrimSpace(pathCallID),
		AccountSID:   r.PostFormValue("AccountSid"),
		Status:       strings.TrimSpace(r.PostFormValue("CallStatus")),
		PriceUnit:    strings.TrimSpace(r.PostFormValue("PriceUnit")),
		ErrorCode:    strings.TrimSpace(r.PostFormValue("ErrorCode")),
		ErrorMessage: strings.TrimSpace(r.PostFormValue("ErrorMessage")),
		Timestamp:    r.PostFormValue("Timestamp"),
	}
	if ev.CallID == "" {
		ev.CallID = strings.TrimSpace(r.PostFormValue("CallSid"))
	}
	if ev.CallID == "" {
		return StatusEvent{}, fmt.Errorf("telephony: callback without call id: %w", apperr.ErrInvalidArgument)
	}
	if ev.Status == "" {
		return StatusEvent{}, fmt.Errorf("telephony: callback %s without CallStatus: %w", ev.CallID, apperr.ErrInvalidArgument)
	}
	if ev.ErrorMessage == "" && ev.ErrorCode != "" {
		ev.ErrorMessage = "error code " + ev.ErrorCode
	}

	var err error
	if ev.Duration, err = formInt(r, "CallDuration"); err != nil {
		return StatusEvent{}, err
	}
	if ev.SequenceNumber, err = formInt(r, "SequenceNumber"); err != nil {
		return StatusEvent{}, err
	}
	if v := strings.TrimSpace(r.PostFormValue("CallPrice")); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return StatusEvent{}, fmt.Errorf("telephony: CallPrice %q: %w", v, apperr.ErrInvalidArgument)
		}
		ev.Price = &p
	}
	return ev, nil
}

func formInt(r *http.Request, key string) (*int, error) {
	v := strings.TrimSpace(r.PostFormValue(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("telephony: %s %q: %w", key, v, apperr.ErrInvalidArgument)
	}
	return &n, nil
}
