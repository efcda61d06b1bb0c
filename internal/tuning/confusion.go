package tuning

import (
	"strings"

	"github.com/MrWong99/kwstune/internal/ledger"
)

// ConfusionCounts accumulates detection outcomes for one (keyword, threshold)
// trial. Counts are never merged across trials.
type ConfusionCounts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	TotalInstances int
	TotalDetected  int
}

// Add reconciles one sample: truth occurrences in the verified transcript
// against detected occurrences reported by the decoder. The comparison is
// count based, not position aware.
func (c *ConfusionCounts) Add(truth, detected int) {
	if detected < truth {
		c.FalseNegatives += truth - detected
		c.TruePositives += detected
	} else {
		c.FalsePositives += detected - truth
		c.TruePositives += truth
	}
	c.TotalInstances += truth
	c.TotalDetected += detected
}

// Precision is tp/(tp+fp), or 0 without detections.
func (c ConfusionCounts) Precision() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
}

// Recall is tp/(tp+fn), or 0 without ground truth.
func (c ConfusionCounts) Recall() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall, or 0 when both are 0.
func (c ConfusionCounts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Trial converts the counts into a ledger row.
func (c ConfusionCounts) Trial(keyword string, threshold int) ledger.Trial {
	return ledger.Trial{
		Keyword:   keyword,
		Threshold: threshold,
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Occurrences counts non-overlapping case-insensitive occurrences of keyword
// in transcript.
func Occurrences(transcript, keyword string) int {
	if keyword == "" {
		return 0
	}
	return strings.Count(strings.ToUpper(transcript), strings.ToUpper(keyword))
}
