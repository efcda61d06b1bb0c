// Package audio turns recorded audio containers into the raw PCM a decoder
// consumes.
//
// Recordings are expected to be 16-bit PCM WAV files. [Extract] parses the
// RIFF container and returns the data chunk; payloads that do not parse fall
// back to skipping a canonical 44-byte header and are assumed to be in
// [FallbackFormat]. [Normalize] downmixes and resamples the result into the
// format a decoder declares.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/youpy/go-wav"
)

// HeaderSize is the size of a canonical RIFF/WAVE header (RIFF, fmt and data
// chunk headers with no extension chunks).
const HeaderSize = 44

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// FallbackFormat is assumed for payloads without a parseable WAV header.
var FallbackFormat = Format{SampleRate: 16000, Channels: 1}

// ErrUnsupportedFormat is returned for WAV files that are not 16-bit integer
// PCM.
var ErrUnsupportedFormat = errors.New("audio: unsupported wav encoding")

// PCM is 16-bit little-endian interleaved audio with its format.
type PCM struct {
	Data []byte
	Format
}

// Extract returns the PCM payload of a recorded audio container.
func Extract(raw []byte) (PCM, error) {
	r := wav.NewReader(bytes.NewReader(raw))
	f, err := r.Format()
	if err != nil {
		return fallback(raw, err)
	}
	if f.AudioFormat != wav.AudioFormatPCM || f.BitsPerSample != 16 {
		return PCM{}, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedFormat, f.AudioFormat, f.BitsPerSample)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fallback(raw, err)
	}
	return PCM{
		Data:   data,
		Format: Format{SampleRate: int(f.SampleRate), Channels: int(f.NumChannels)},
	}, nil
}

func fallback(raw []byte, cause error) (PCM, error) {
	if len(raw) < HeaderSize {
		return PCM{}, fmt.Errorf("audio: payload of %d bytes is shorter than a wav header: %w", len(raw), cause)
	}
	slog.Debug("audio: no parseable wav header, skipping fixed header", "bytes", len(raw), "err", cause)
	data := raw[HeaderSize:]
	return PCM{Data: data[:len(data)/2*2], Format: FallbackFormat}, nil
}

// Normalize converts p to mono at sampleRate.
func Normalize(p PCM, sampleRate int) ([]byte, error) {
	mono, err := Downmix(p.Data, p.Channels)
	if err != nil {
		return nil, err
	}
	out, err := ResampleMono(mono, p.SampleRate, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("audio: normalize %s to %dHz: %w", p.Format, sampleRate, err)
	}
	return out, nil
}
