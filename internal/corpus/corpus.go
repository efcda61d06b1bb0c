// Package corpus provides access to the labeled audio recordings the tuner
// scores thresholds against.
//
// A recording is described by a [Sample]: the audio file name plus its
// human-verified transcript and the raw machine transcript captured at
// recording time. An [Accessor] selects positive samples (the verified
// transcript contains the keyword) and false-alarm candidates (the raw
// transcript contains it but the verified one does not). An [AudioStore] opens
// the audio payload behind a sample's file name.
package corpus

import (
	"context"
	"io"
	"slices"
	"strings"
)

// Sample is one reviewed recording. It is read-only.
type Sample struct {
	// Filename identifies the audio payload in the [AudioStore].
	Filename string

	// VerifiedTranscript is the human-reviewed transcript (ground truth).
	VerifiedTranscript string

	// Transcript is the raw machine transcript recorded with the audio.
	Transcript string
}

// Accessor fetches evaluation samples for a keyword.
type Accessor interface {
	// FetchSamples returns at most limitPositive distinct samples whose
	// verified transcript contains keyword followed by at most limitNegative
	// distinct samples whose raw transcript contains keyword while the
	// verified transcript does not. Matching is case-insensitive and results
	// are ordered by file name within each group.
	FetchSamples(ctx context.Context, keyword string, limitPositive, limitNegative int) ([]Sample, error)
}

// AudioStore opens recorded audio by file name.
type AudioStore interface {
	// Open returns the raw audio container bytes for filename. The caller
	// must close the returned reader. Missing files yield an error wrapping
	// os.ErrNotExist.
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
}

// Memory is an in-process [Accessor] over a fixed sample list.
type Memory struct {
	samples []Sample
}

// Compile-time interface check.
var _ Accessor = (*Memory)(nil)

// NewMemory returns an [Accessor] serving samples.
func NewMemory(samples []Sample) *Memory {
	return &Memory{samples: slices.Clone(samples)}
}

// FetchSamples implements [Accessor].
func (m *Memory) FetchSamples(_ context.Context, keyword string, limitPositive, limitNegative int) ([]Sample, error) {
	kw := strings.ToUpper(keyword)
	sorted := slices.Clone(m.samples)
	slices.SortStableFunc(sorted, func(a, b Sample) int { return strings.Compare(a.Filename, b.Filename) })

	var pos, neg []Sample
	seen := make(map[Sample]bool, len(sorted))
	for _, s := range sorted {
		if seen[s] {
			continue
		}
		seen[s] = true
		verified := strings.Contains(strings.ToUpper(s.VerifiedTranscript), kw)
		raw := strings.Contains(strings.ToUpper(s.Transcript), kw)
		switch {
		case verified && len(pos) < limitPositive:
			pos = append(pos, s)
		case !verified && raw && len(neg) < limitNegative:
			neg = append(neg, s)
		}
	}
	return append(pos, neg...), nil
}
