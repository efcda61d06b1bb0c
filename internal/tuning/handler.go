package tuning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/kwstune/internal/observe"
	"github.com/MrWong99/kwstune/internal/profile"
)

// ProfileWriter persists the best threshold. *profile.Store satisfies it.
type ProfileWriter interface {
	Set(path []string, value any) error
	Save() error
}

// HistoryRecorder records finished runs. *history.FileStore satisfies it.
type HistoryRecorder interface {
	Append(keywords []string, best int, description string) error
}

// Result is what one [Handler.Handle] call hands back to the caller.
type Result struct {
	// Report holds human-readable lines describing the step.
	Report []string

	// Trials are the trials recorded during the step.
	Trials []ScoredTrial

	// NextToken resumes the search. Empty means stop invoking.
	NextToken string

	// Description is passed through unchanged.
	Description string

	// Best is set when the search finished during this call.
	Best *int

	// Err is the failure that aborted the step, if any.
	Err error
}

// Handler is the step invocation surface: one call performs one controller
// step and returns the token to resume from. Calls are serialised.
type Handler struct {
	mu sync.Mutex

	ctrl         *Controller
	profile      ProfileWriter
	thresholdKey []string
	history      HistoryRecorder
	stepTimeout  time.Duration
}

// HandlerOption is a functional option for [NewHandler].
type HandlerOption func(*Handler)

// WithProfile stores the best threshold under key in p when a search ends.
// An empty key means [profile.DefaultThresholdKey].
func WithProfile(p ProfileWriter, key []string) HandlerOption {
	return func(h *Handler) {
		h.profile = p
		h.thresholdKey = key
	}
}

// WithHistory appends a record to r when a search ends.
func WithHistory(r HistoryRecorder) HandlerOption {
	return func(h *Handler) { h.history = r }
}

// WithStepTimeout bounds the duration of one step. Zero disables it.
func WithStepTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.stepTimeout = d }
}

// NewHandler wraps ctrl.
func NewHandler(ctrl *Controller, opts ...HandlerOption) *Handler {
	h := &Handler{ctrl: ctrl}
	for _, o := range opts {
		o(h)
	}
	if len(h.thresholdKey) == 0 {
		h.thresholdKey = profile.DefaultThresholdKey
	}
	return h
}

// Reconfigure replaces the window of the next fresh search, the refinement
// cap and the step timeout. A running step finishes with the old values.
func (h *Handler) Reconfigure(w SearchWindow, maxSamples int, stepTimeout time.Duration) error {
	w.Cursor = w.Start
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: default window: %w", ErrConfiguration, err)
	}
	if maxSamples <= 0 {
		return fmt.Errorf("%w: max samples %d must be positive", ErrConfiguration, maxSamples)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl.window = w
	h.ctrl.maxSamples = maxSamples
	h.stepTimeout = stepTimeout
	return nil
}

// Handle performs one step. An empty token starts a fresh search. Any
// failure aborts the step, is logged, is reported as a line and forces an
// empty NextToken; ledger rows of earlier steps are kept.
func (h *Handler) Handle(ctx context.Context, token, description string) Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.stepTimeout)
		defer cancel()
	}
	log := observe.Logger(ctx)
	res := Result{Description: description}

	fail := func(err error) Result {
		log.Error("tuning: step failed", "err", err, "token", token)
		res.Report = append(res.Report, "Error: "+err.Error())
		res.NextToken = ""
		res.Err = err
		return res
	}

	var state SearchState
	if token == "" {
		s, err := h.ctrl.Begin(ctx)
		if err != nil {
			return fail(err)
		}
		state = s
		res.Report = append(res.Report, fmt.Sprintf("Starting search for %v over [%d, %d], step %d, %d samples",
			h.ctrl.Keywords(), s.Window.Start, s.Window.End, s.Window.StepSize, s.Window.Samples))
	} else {
		s, err := DecodeState(token)
		if err != nil {
			return fail(err)
		}
		state = s
	}

	if state.IsDone() {
		best := state.Best
		res.Best = &best
		res.Report = append(res.Report, fmt.Sprintf("Search already finished. Best threshold: %d", best))
		return res
	}

	out, err := h.ctrl.Step(ctx, state)
	if err != nil {
		return fail(err)
	}
	res.Trials = out.Trials
	for _, t := range out.Trials {
		res.Report = append(res.Report, FormatTrial(t))
	}
	log.Info("tuning: step complete", "cursor", state.Window.Cursor, "transition", out.Transition, "next", out.Next.String())

	if !out.Next.IsDone() {
		if out.Transition == TransitionRefine {
			w := out.Next.Window
			res.Report = append(res.Report, fmt.Sprintf("Plateau detected, refining [%d, %d] with %d samples", w.Start, w.End, w.Samples))
		}
		next, err := EncodeState(out.Next)
		if err != nil {
			return fail(err)
		}
		res.NextToken = next
		return res
	}

	best := out.Next.Best
	if err := h.persist(ctx, best, description); err != nil {
		return fail(err)
	}
	res.Best = &best
	res.Report = append(res.Report, fmt.Sprintf("Best threshold: %d", best))
	log.Info("tuning: search finished", "best", best)
	return res
}

func (h *Handler) persist(ctx context.Context, best int, description string) error {
	if h.profile != nil {
		if err := h.profile.Set(h.thresholdKey, best); err != nil {
			return fmt.Errorf("%w: store threshold: %w", ErrConfiguration, err)
		}
		if err := h.profile.Save(); err != nil {
			return fmt.Errorf("%w: save profile: %w", ErrConfiguration, err)
		}
	}
	if h.history != nil {
		if err := h.history.Append(h.ctrl.Keywords(), best, description); err != nil {
			// The threshold is already saved; a lost history line is not fatal.
			observe.Logger(ctx).Warn("tuning: failed to append history", "err", err)
		}
	}
	return nil
}

// FormatTrial renders one trial as a report line.
func FormatTrial(t ScoredTrial) string {
	return fmt.Sprintf("%s threshold=%d detected=%d/%d tp=%d fp=%d fn=%d precision=%.3f recall=%.3f f1=%.3f",
		t.Keyword, t.Threshold,
		t.Counts.TotalDetected, t.Counts.TotalInstances,
		t.Counts.TruePositives, t.Counts.FalsePositives, t.Counts.FalseNegatives,
		t.Precision, t.Recall, t.F1)
}
