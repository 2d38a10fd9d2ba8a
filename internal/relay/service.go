// Package relay chains prompt generation, speech synthesis, upload and an optional call.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"answering-machine/internal/apperr"
	"answering-machine/internal/storage"
	"answering-machine/internal/telephony"
	"answering-machine/pkg/logger"
)

// TextGenerator answers a prompt. *gemini.Client satisfies it.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// TextStreamer is implemented by text generators that can deliver a reply incrementally.
type TextStreamer interface {
	StreamText(ctx context.Context, prompt string, emit func(chunk string) error) error
}

// SpeechGenerator turns text into a WAV file. *gemini.Client satisfies it.
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// Uploader stores a blob and returns a signed URL. *storage.GCSStore satisfies it.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, contentType, ext string) (storage.UploadResult, error)
}

// Caller places a playback call. *calls.Service satisfies it.
type Caller interface {
	InitiateCall(ctx context.Context, destination, audioURL string) (telephony.CallResult, error)
}

// Slots bounds concurrent pipeline runs. A nil Slots means unbounded.
type Slots interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Service struct {
	text    TextGenerator
	speech  SpeechGenerator
	uploads Uploader
	caller  Caller
	slots   Slots
}

// NewService wires the collaborators. Any of them may be nil; operations needing a
// missing collaborator fail with ErrNotConfigured.
func NewService(text TextGenerator, speech SpeechGenerator, uploads Uploader, caller Caller, slots Slots) *Service {
	return &Service{text: text, speech: speech, uploads: uploads, caller: caller, slots: slots}
}

// Generate forwards prompt to the text model.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	if s.text == nil {
		return "", fmt.Errorf("relay: text generation: %w", apperr.ErrNotConfigured)
	}
	return s.text.GenerateText(ctx, prompt)
}

// Stream forwards prompt to the text model and hands each chunk of the reply to emit.
func (s *Service) Stream(ctx context.Context, prompt string, emit func(chunk string) error) error {
	st, ok := s.text.(TextStreamer)
	if !ok {
		return fmt.Errorf("relay: streaming text generation: %w", apperr.ErrNotConfigured)
	}
	return st.StreamText(ctx, prompt, emit)
}

// Speak synthesizes text and uploads the audio as a .wav object.
func (s *Service) Speak(ctx context.Context, text string) (storage.UploadResult, error) {
	if s.speech == nil {
		return storage.UploadResult{}, fmt.Errorf("relay: speech generation: %w", apperr.ErrNotConfigured)
	}
	if s.uploads == nil {
		return storage.UploadResult{}, fmt.Errorf("relay: storage: %w", apperr.ErrNotConfigured)
	}
	wav, err := s.speech.GenerateSpeech(ctx, text)
	if err != nil {
		return storage.UploadResult{}, err
	}
	return s.uploads.Upload(ctx, bytes.NewReader(wav), "audio/wav", ".wav")
}

// Upload stores a client-supplied file.
func (s *Service) Upload(ctx context.Context, r io.Reader, contentType, ext string) (storage.UploadResult, error) {
	if s.uploads == nil {
		return storage.UploadResult{}, fmt.Errorf("relay: storage: %w", apperr.ErrNotConfigured)
	}
	return s.uploads.Upload(ctx, r, contentType, ext)
}

type Request struct {
	Prompt            string `json:"prompt"`
	DestinationNumber string `json:"destination_number,omitempty"`
}

// Result carries every stage that completed. Call is set only when a destination was given.
type Result struct {
	Prompt    string                `json:"prompt"`
	Response  string                `json:"response,omitempty"`
	AudioURL  string                `json:"audio_url,omitempty"`
	FileName  string                `json:"file_name,omitempty"`
	Call      *telephony.CallResult `json:"call,omitempty"`
	Error     string                `json:"error,omitempty"`
	Succeeded bool                  `json:"success"`
}

// Run executes prompt -> text -> speech -> upload and, when DestinationNumber is set,
// places a call that plays the uploaded audio. The first failing stage stops the run;
// its error is returned alongside the partial Result.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	log := logger.From(ctx)
	res := Result{Prompt: req.Prompt}
	dest := strings.TrimSpace(req.DestinationNumber)

	if dest != "" && s.caller == nil {
		return fail(res, fmt.Errorf("relay: telephony: %w", apperr.ErrNotConfigured))
	}

	if s.slots != nil {
		release, err := s.slots.Acquire(ctx)
		if err != nil {
			return fail(res, err)
		}
		defer release()
	}

	text, err := s.Generate(ctx, req.Prompt)
	if err != nil {
		return fail(res, err)
	}
	res.Response = text

	up, err := s.Speak(ctx, text)
	if err != nil {
		return fail(res, err)
	}
	res.AudioURL = up.SignedURL
	res.FileName = up.ObjectName
	log.Info("relay audio stored", "file_name", up.ObjectName)

	if dest == "" {
		res.Succeeded = true
		return res, nil
	}

	call, err := s.caller.InitiateCall(ctx, dest, up.SignedURL)
	res.Call = &call
	if err != nil {
		return fail(res, err)
	}
	res.Succeeded = true
	return res, nil
}

func fail(res Result, err error) (Result, error) {
	res.Succeeded = false
	res.Error = err.Error()
	return res, err
}
