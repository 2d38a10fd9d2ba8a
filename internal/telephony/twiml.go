package telephony

import (
	"fmt"
	"net/url"
	"strings"

	"answering-machine/internal/apperr"

	"github.com/twilio/twilio-go/twiml"
)

// PlaybackScript returns the TwiML that plays audioURL once and hangs up.
func PlaybackScript(audioURL string) (string, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return "", fmt.Errorf("telephony: audio_url required: %w", apperr.ErrInvalidArgument)
	}
	u, err := url.Parse(audioURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("telephony: audio_url must be an absolute http(s) url: %w", apperr.ErrInvalidArgument)
	}
	return twiml.Voice([]twiml.Element{
		&twiml.VoicePlay{Url: audioURL},
		&twiml.VoiceHangup{},
	})
}

// EmptyResponse is the acknowledgment returned to provider callbacks.
func EmptyResponse() string {
	doc, err := twiml.Voice(nil)
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	}
	return doc
}
