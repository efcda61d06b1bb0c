// Package phonetic spots dictionary keywords in a transcribed word sequence
// using Double Metaphone codes combined with Jaro-Winkler similarity.
//
// For a keyword of n tokens every window of n consecutive transcribed words is
// a candidate. A window matches when, token by token, the Double Metaphone
// codes overlap with the dictionary codes and the Jaro-Winkler similarity
// reaches the phonetic threshold, or when the similarity alone reaches the
// higher fuzzy threshold. The probability of a match is the product of the
// window's word probabilities; matches below the minimum probability are
// dropped. Matched windows do not overlap.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/vocab"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Spotter].
type Option func(*Spotter)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a token whose
// phonetic codes overlap the dictionary. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Spotter) {
		s.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a token without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Spotter) {
		s.fuzzyThreshold = threshold
	}
}

// Spotter finds one dictionary entry in transcripts. It is read-only after
// construction and safe for concurrent use.
type Spotter struct {
	entry             vocab.Entry
	minProbability    float64
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Spotter] for entry that reports matches whose probability is
// at least minProbability.
func New(entry vocab.Entry, minProbability float64, opts ...Option) *Spotter {
	s := &Spotter{
		entry:             entry,
		minProbability:    minProbability,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Spot returns one [decoder.Word] per keyword occurrence in words. The
// returned Text is the dictionary spelling of the keyword.
func (s *Spotter) Spot(words []decoder.Word) []decoder.Word {
	n := len(s.entry.Tokens)
	if n == 0 {
		return nil
	}

	var hits []decoder.Word
	for i := 0; i+n <= len(words); {
		window := words[i : i+n]
		if !s.matches(window) {
			i++
			continue
		}
		prob := 1.0
		for _, w := range window {
			prob *= w.Probability
		}
		if prob >= s.minProbability {
			hits = append(hits, decoder.Word{
				Text:        s.entry.Word,
				Start:       window[0].Start,
				End:         window[n-1].End,
				Probability: prob,
			})
		}
		i += n
	}
	return hits
}

func (s *Spotter) matches(window []decoder.Word) bool {
	for i, w := range window {
		tok := strings.ToLower(decoder.Normalize(w.Text))
		if tok == "" {
			return false
		}
		want := strings.ToLower(s.entry.Tokens[i])
		score := matchr.JaroWinkler(tok, want, false)

		p, a := matchr.DoubleMetaphone(tok)
		overlap := codeIn(p, s.entry.Primary[i], s.entry.Alternate[i]) ||
			codeIn(a, s.entry.Primary[i], s.entry.Alternate[i])

		switch {
		case overlap && score >= s.phoneticThreshold:
		case score >= s.fuzzyThreshold:
		default:
			return false
		}
	}
	return true
}

// codeIn reports whether code is non-empty and equals one of the dictionary
// codes.
func codeIn(code string, dict ...string) bool {
	if code == "" {
		return false
	}
	for _, d := range dict {
		if code == d {
			return true
		}
	}
	return false
}
