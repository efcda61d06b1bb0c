package tuning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/observe"
)

// DefaultMaxSamples caps the per-trial sample budget. A plateau found with a
// budget at or above the cap ends the search instead of refining it.
const DefaultMaxSamples = 100

// Transition names reported in metrics and step outcomes.
const (
	TransitionAdvance = "advance"
	TransitionRefine  = "refine"
	TransitionDone    = "done"
)

// ScoredTrial is one trial recorded during a step together with the counts
// it was derived from.
type ScoredTrial struct {
	ledger.Trial
	Counts ConfusionCounts
}

// Outcome is the result of one controller step.
type Outcome struct {
	// Trials holds one entry per keyword, primary keyword first.
	Trials []ScoredTrial

	// Transition is one of the Transition* constants, or "" when the input
	// state was already terminal.
	Transition string

	// Next is the successor state.
	Next SearchState
}

// Controller drives the adaptive threshold search one step at a time. It
// keeps no state between steps besides the ledger.
type Controller struct {
	keywords   []string
	eval       Evaluator
	ledger     ledger.Ledger
	window     SearchWindow
	maxSamples int
	metrics    *observe.Metrics
}

// ControllerOption is a functional option for [NewController].
type ControllerOption func(*Controller)

// WithWindow overrides [DefaultWindow] for fresh searches. The cursor never
// steps past w.End, so the last trial of a scan lands exactly on End even when
// End-Start is not a multiple of StepSize.
func WithWindow(w SearchWindow) ControllerOption {
	return func(c *Controller) { c.window = w }
}

// WithMaxSamples overrides [DefaultMaxSamples].
func WithMaxSamples(n int) ControllerOption {
	return func(c *Controller) { c.maxSamples = n }
}

// WithControllerMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithControllerMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a controller for keywords. The first keyword is the
// primary one whose F1 decides whether the peak has been passed. Keywords
// are upper-cased and must be non-empty.
func NewController(keywords []string, eval Evaluator, l ledger.Ledger, opts ...ControllerOption) (*Controller, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: no keywords configured", ErrConfiguration)
	}
	if eval == nil || l == nil {
		return nil, fmt.Errorf("%w: evaluator and ledger are required", ErrConfiguration)
	}
	c := &Controller{
		eval:       eval,
		ledger:     l,
		window:     DefaultWindow,
		maxSamples: DefaultMaxSamples,
	}
	for _, kw := range keywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw == "" {
			return nil, fmt.Errorf("%w: empty keyword", ErrConfiguration)
		}
		c.keywords = append(c.keywords, kw)
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.window.Validate(); err != nil {
		return nil, fmt.Errorf("%w: default window: %w", ErrConfiguration, err)
	}
	if c.maxSamples <= 0 {
		return nil, fmt.Errorf("%w: max samples %d must be positive", ErrConfiguration, c.maxSamples)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Keywords returns the normalised keyword list, primary first.
func (c *Controller) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// Begin clears the ledger and returns the initial state of a fresh search.
func (c *Controller) Begin(ctx context.Context) (SearchState, error) {
	if err := c.ledger.Reset(ctx); err != nil {
		return SearchState{}, fmt.Errorf("tuning: reset ledger: %w", err)
	}
	w := c.window
	w.Cursor = w.Start
	return Scanning(w), nil
}

// Step evaluates the cursor threshold for every keyword and computes the
// successor state. A Done state is returned unchanged without evaluating.
func (c *Controller) Step(ctx context.Context, s SearchState) (out Outcome, err error) {
	if s.IsDone() {
		return Outcome{Next: s}, nil
	}
	if err := s.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	w := s.Window

	start := time.Now()
	ctx, span := observe.StartStepSpan(ctx, w.Cursor, w.Samples)
	defer func() {
		if err == nil {
			c.metrics.RecordStep(ctx, out.Transition, time.Since(start))
		}
		observe.EndStepSpan(span, out.Transition, err)
	}()

	for _, kw := range c.keywords {
		counts, err := c.eval.Evaluate(ctx, kw, w.Cursor, w.Samples)
		if err != nil {
			return Outcome{}, err
		}
		trial := counts.Trial(kw, w.Cursor)
		if err := c.ledger.Record(ctx, trial); err != nil {
			return Outcome{}, fmt.Errorf("tuning: record trial: %w", err)
		}
		c.metrics.RecordTrial(ctx, kw, w.Cursor, trial.F1)
		out.Trials = append(out.Trials, ScoredTrial{Trial: trial, Counts: counts})
	}

	peak, ok, err := c.ledger.MaxF1(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("tuning: query peak: %w", err)
	}
	if !ok {
		return Outcome{}, fmt.Errorf("tuning: ledger is empty after recording trials")
	}
	peakAt, err := c.minAchieving(ctx, peak)
	if err != nil {
		return Outcome{}, err
	}
	current := out.Trials[0].F1

	if current >= peak {
		if w.Cursor < w.End {
			w.Cursor = min(w.Cursor+w.StepSize, w.End)
			out.Transition, out.Next = TransitionAdvance, Scanning(w)
			return out, nil
		}
		out.Transition, out.Next = TransitionDone, Done(peakAt)
		return out, nil
	}

	// The peak lies strictly before the cursor.
	peakCount, err := c.ledger.CountAt(ctx, peak)
	if err != nil {
		return Outcome{}, fmt.Errorf("tuning: count peak: %w", err)
	}
	// Done reports the threshold holding the peak, not the refinement lower bound.
	if peakCount == 1 || w.Samples >= c.maxSamples {
		out.Transition, out.Next = TransitionDone, Done(peakAt)
		return out, nil
	}

	lower, _, err := c.ledger.MinThresholdBelow(ctx, peakAt)
	if err != nil {
		return Outcome{}, fmt.Errorf("tuning: query refinement bound: %w", err)
	}
	if err := c.ledger.Reset(ctx); err != nil {
		return Outcome{}, fmt.Errorf("tuning: reset ledger: %w", err)
	}
	out.Transition = TransitionRefine
	out.Next = Scanning(SearchWindow{
		Start:    lower,
		End:      w.Cursor,
		StepSize: w.StepSize,
		Samples:  w.Samples * 2,
		Cursor:   lower,
	})
	return out, nil
}

func (c *Controller) minAchieving(ctx context.Context, f1 float64) (int, error) {
	th, ok, err := c.ledger.MinThresholdAchieving(ctx, f1)
	if err != nil {
		return 0, fmt.Errorf("tuning: query peak threshold: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("tuning: no trial with F1 %v", f1)
	}
	return th, nil
}

// Run steps from s until the search is done or ctx is cancelled. fn, when
// non-nil, observes every outcome. It returns the best threshold.
func (c *Controller) Run(ctx context.Context, s SearchState, fn func(Outcome)) (int, error) {
	for !s.IsDone() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out, err := c.Step(ctx, s)
		if err != nil {
			return 0, err
		}
		if fn != nil {
			fn(out)
		}
		s = out.Next
	}
	return s.Best, nil
}
