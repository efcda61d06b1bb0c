// Package decoder defines the keyword-spotting decoder capability the tuner
// scores thresholds with.
//
// A [Factory] builds one [Decoder] per (keyword, threshold) trial from a
// [Config]. The decoder receives 16 kHz mono 16-bit little-endian PCM and
// reports every keyword occurrence whose acoustic probability clears the
// configured threshold. Implementations live in subpackages: whisper (HTTP
// server and native bindings) and mock (for tests).
package decoder

import (
	"context"
	"math"
	"strings"
	"time"
)

// SampleRate is the PCM sample rate every decoder consumes.
const SampleRate = 16000

// Config configures a decoder for one trial.
type Config struct {
	// Keyword is the uppercase keyword to spot.
	Keyword string

	// Threshold is the integer decade exponent of the detection probability
	// cutoff. See [Probability].
	Threshold int

	// DictionaryPath points at the pronunciation dictionary produced by the
	// vocab compiler for Keyword.
	DictionaryPath string
}

// Word is one recognised token.
type Word struct {
	Text        string
	Start       time.Duration
	End         time.Duration
	Probability float64
}

// Decoder spots keywords in audio. Implementations need not be safe for
// concurrent use.
type Decoder interface {
	// Decode returns the recognised keyword tokens in pcm, in time order.
	Decode(ctx context.Context, pcm []byte) ([]Word, error)

	// Close releases resources held by the decoder.
	Close() error
}

// Factory creates decoders.
type Factory interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// NewDecoder builds a decoder for cfg. Missing model or dictionary files
	// are reported here.
	NewDecoder(ctx context.Context, cfg Config) (Decoder, error)
}

// Probability converts an integer threshold exponent to the probability
// cutoff 10^threshold, e.g. -20 → 1e-20.
func Probability(threshold int) float64 {
	return math.Pow(10, float64(threshold))
}

// Count returns how many words equal keyword, ignoring case and surrounding
// punctuation.
func Count(words []Word, keyword string) int {
	n := 0
	for _, w := range words {
		if strings.EqualFold(Normalize(w.Text), keyword) {
			n++
		}
	}
	return n
}

// Normalize trims whitespace and leading/trailing punctuation from a token.
func Normalize(s string) string {
	return strings.TrimFunc(strings.TrimSpace(s), func(r rune) bool {
		return strings.ContainsRune(".,!?;:\"'()[]-", r)
	})
}
