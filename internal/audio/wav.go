// Package audio wraps raw PCM from speech synthesis in a playable container.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"answering-machine/internal/apperr"
)

// Format describes linear PCM samples.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// GeminiTTS is the format returned by Gemini speech models: 24kHz, mono, 16-bit little-endian.
var GeminiTTS = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

const wavHeaderSize = 44

func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

func (f Format) validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("audio: invalid format %+v: %w", f, apperr.ErrInvalidArgument)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("audio: unsupported bits per sample %d: %w", f.BitsPerSample, apperr.ErrInvalidArgument)
	}
	return nil
}

// WAV returns pcm prefixed with a canonical RIFF/WAVE header.
// pcm must hold whole sample frames.
func WAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: empty pcm: %w", apperr.ErrInvalidArgument)
	}
	if len(pcm)%f.blockAlign() != 0 {
		return nil, fmt.Errorf("audio: %d bytes is not a whole number of %d-byte frames: %w", len(pcm), f.blockAlign(), apperr.ErrInvalidArgument)
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, le, uint32(16))
	_ = binary.Write(buf, le, uint16(1)) // PCM
	_ = binary.Write(buf, le, uint16(f.Channels))
	_ = binary.Write(buf, le, uint32(f.SampleRate))
	_ = binary.Write(buf, le, uint32(f.SampleRate*f.blockAlign()))
	_ = binary.Write(buf, le, uint16(f.blockAlign()))
	_ = binary.Write(buf, le, uint16(f.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, le, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// Duration reports the playback length of pcm in seconds.
func Duration(pcm []byte, f Format) float64 {
	if f.validate() != nil {
		return 0
	}
	return float64(len(pcm)) / float64(f.SampleRate*f.blockAlign())
}
