// Package gemini adapts Google's Gemini API for text generation and speech synthesis.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"answering-machine/internal/apperr"
	"answering-machine/internal/audio"
	"answering-machine/internal/observability"

	"google.golang.org/genai"
)

// MaxPromptLength caps prompt and speech input size in characters.
const MaxPromptLength = 4096

// ValidatePrompt rejects empty or oversized input before it reaches the provider.
func ValidatePrompt(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("gemini: request cannot be empty: %w", apperr.ErrInvalidArgument)
	}
	if n := utf8.RuneCountInString(s); n > MaxPromptLength {
		return fmt.Errorf("gemini: request exceeds maximum length of %d characters (got %d): %w", MaxPromptLength, n, apperr.ErrInvalidArgument)
	}
	return nil
}

// contentGenerator is the part of the SDK this adapter uses. *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

type Config struct {
	APIKey    string
	TextModel string
	TTSModel  string
	Voice     string

	// Timeout bounds each generation request.
	Timeout time.Duration
}

type Client struct {
	models  contentGenerator
	cfg     Config
	pcmRate int
}

// NewClient builds a Gemini API client. An empty API key is reported as ErrNotConfigured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY: %w", apperr.ErrNotConfigured)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newClient(c.Models, cfg), nil
}

func newClient(models contentGenerator, cfg Config) *Client {
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.0-flash"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "Zephyr"
	}
	return &Client{models: models, cfg: cfg, pcmRate: audio.GeminiTTS.SampleRate}
}

// GenerateText returns the model's reply to prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return "", err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.cfg.TextModel, genai.Text(prompt), nil)
	if err = c.finish("generate_text", start, err); err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: generate text: empty response: %w", apperr.ErrProviderUnavailable)
	}
	return text, nil
}

// StreamText sends the reply to prompt through emit chunk by chunk, skipping empty chunks.
// An error from emit stops the stream and is returned as is.
func (c *Client) StreamText(ctx context.Context, prompt string, emit func(chunk string) error) error {
	if err := ValidatePrompt(prompt); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	for resp, err := range c.models.GenerateContentStream(ctx, c.cfg.TextModel, genai.Text(prompt), nil) {
		if err != nil {
			return c.finish("stream_text", start, err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if err := emit(chunk); err != nil {
			observability.ObserveProvider("gemini", "stream_text", start, "aborted")
			return err
		}
	}
	return c.finish("stream_text", start, nil)
}

// GenerateSpeech synthesizes text with the configured voice and returns a WAV file.
func (c *Client) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	if err := ValidatePrompt(text); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
		},
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.cfg.TTSModel, genai.Text(text), cfg)
	if err = c.finish("generate_speech", start, err); err != nil {
		return nil, err
	}

	blob := firstInlineData(resp)
	if blob == nil || len(blob.Data) == 0 {
		return nil, fmt.Errorf("gemini: generate speech: no audio in response: %w", apperr.ErrProviderUnavailable)
	}
	if strings.HasPrefix(blob.MIMEType, "audio/wav") || strings.HasPrefix(blob.MIMEType, "audio/x-wav") {
		return blob.Data, nil
	}

	format := audio.GeminiTTS
	if rate := sampleRate(blob.MIMEType); rate > 0 {
		format.SampleRate = rate
	}
	wav, err := audio.WAV(blob.Data, format)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate speech: %v: %w", err, apperr.ErrProviderUnavailable)
	}
	return wav, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) finish(op string, start time.Time, err error) error {
	if err == nil {
		observability.ObserveProvider("gemini", op, start, "")
		return nil
	}
	err = classifyError(op, err)
	observability.ObserveProvider("gemini", op, start, apperr.Kind(err))
	return err
}

// classifyError maps SDK errors onto the apperr taxonomy.
func classifyError(op string, err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	if code >= 400 && code < 500 && code != 429 {
		return fmt.Errorf("gemini: %s: %v: %w", op, err, apperr.ErrProviderRejected)
	}
	return fmt.Errorf("gemini: %s: %v: %w", op, err, apperr.ErrProviderUnavailable)
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil {
				return part.InlineData
			}
		}
	}
	return nil
}

// sampleRate reads the rate parameter of a mime type such as "audio/L16;codec=pcm;rate=24000".
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}
