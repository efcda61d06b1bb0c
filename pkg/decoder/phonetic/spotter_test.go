package phonetic_test

import (
	"testing"
	"time"

	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/decoder/phonetic"
	"github.com/MrWong99/kwstune/pkg/vocab"
)

func words(pairs ...any) []decoder.Word {
	var out []decoder.Word
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, decoder.Word{
			Text:        pairs[i].(string),
			Start:       time.Duration(i) * 100 * time.Millisecond,
			End:         time.Duration(i+1) * 100 * time.Millisecond,
			Probability: pairs[i+1].(float64),
		})
	}
	return out
}

func TestSpotter_ExactMatch(t *testing.T) {
	t.Parallel()
	s := phonetic.New(vocab.NewEntry("NAOMI"), 0.5)

	hits := s.Spot(words("hey", 0.9, "Naomi,", 0.8, "lights", 0.9))
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want one", hits)
	}
	if hits[0].Text != "NAOMI" || hits[0].Probability != 0.8 {
		t.Errorf("hit = %+v, want NAOMI with probability 0.8", hits[0])
	}
	if decoder.Count(hits, "naomi") != 1 {
		t.Error("Count did not recognise the spotted keyword")
	}
}

func TestSpotter_PhoneticVariant(t *testing.T) {
	t.Parallel()
	s := phonetic.New(vocab.NewEntry("NAOMI"), 0)

	hits := s.Spot(words("naomie", 0.7))
	if len(hits) != 1 {
		t.Fatalf("phonetic variant not spotted: %+v", hits)
	}
}

func TestSpotter_NoMatch(t *testing.T) {
	t.Parallel()
	s := phonetic.New(vocab.NewEntry("NAOMI"), 0)

	if hits := s.Spot(words("good", 0.9, "morning", 0.9)); len(hits) != 0 {
		t.Errorf("hits = %+v, want none", hits)
	}
}

func TestSpotter_ProbabilityCutoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		threshold int
		want      int
	}{
		{name: "permissive", threshold: -10, want: 2},
		{name: "strict", threshold: -1, want: 1},
		{name: "impossible", threshold: 1, want: 0},
	}
	in := words("naomi", 0.5, "and", 0.9, "naomi", 0.001)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := phonetic.New(vocab.NewEntry("NAOMI"), decoder.Probability(tt.threshold))
			if got := len(s.Spot(in)); got != tt.want {
				t.Errorf("threshold %d spotted %d, want %d", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestSpotter_MultiWordKeyword(t *testing.T) {
	t.Parallel()
	s := phonetic.New(vocab.NewEntry("HEY COMPUTER"), 0.1)

	hits := s.Spot(words("ok", 0.9, "hey", 0.9, "computer", 0.5, "hey", 0.9))
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want one", hits)
	}
	if hits[0].Text != "HEY COMPUTER" {
		t.Errorf("Text = %q", hits[0].Text)
	}
	if hits[0].Probability != 0.9*0.5 {
		t.Errorf("Probability = %v, want product of word probabilities", hits[0].Probability)
	}
	if hits[0].Start != 200*time.Millisecond || hits[0].End != 500*time.Millisecond {
		t.Errorf("span = %v..%v", hits[0].Start, hits[0].End)
	}
}

func TestSpotter_Thresholds(t *testing.T) {
	t.Parallel()
	strict := phonetic.New(vocab.NewEntry("NAOMI"), 0,
		phonetic.WithPhoneticThreshold(1.0),
		phonetic.WithFuzzyThreshold(1.0),
	)
	if hits := strict.Spot(words("naomie", 0.9)); len(hits) != 0 {
		t.Errorf("strict spotter accepted a variant: %+v", hits)
	}
	if hits := strict.Spot(words("NAOMI", 0.9)); len(hits) != 1 {
		t.Errorf("strict spotter rejected an exact match: %+v", hits)
	}
}
