package tuning

import "fmt"

// Phase tags the variant held by a [SearchState].
type Phase uint8

const (
	// PhaseScanning means the search is walking a window.
	PhaseScanning Phase = iota + 1
	// PhaseDone means the search has picked its best threshold.
	PhaseDone
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseScanning:
		return "scanning"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// SearchWindow is the integer threshold range scanned in one refinement
// round.
type SearchWindow struct {
	Start    int
	End      int
	StepSize int
	// Samples is the total per-trial sample budget, split evenly between
	// positive and false-alarm samples.
	Samples int
	Cursor  int
}

// DefaultWindow is the window a fresh search starts with.
var DefaultWindow = SearchWindow{Start: -10, End: 10, StepSize: 1, Samples: 20, Cursor: -10}

// Validate checks the window invariants.
func (w SearchWindow) Validate() error {
	switch {
	case w.StepSize <= 0:
		return fmt.Errorf("step size %d must be positive", w.StepSize)
	case w.Start > w.End:
		return fmt.Errorf("start %d is after end %d", w.Start, w.End)
	case w.Samples <= 0:
		return fmt.Errorf("samples %d must be positive", w.Samples)
	case w.Cursor < w.Start || w.Cursor > w.End:
		return fmt.Errorf("cursor %d outside [%d, %d]", w.Cursor, w.Start, w.End)
	}
	return nil
}

// String renders the window as step:start:end:stepsize:samples:cursor.
func (w SearchWindow) String() string {
	return fmt.Sprintf("step:%d:%d:%d:%d:%d", w.Start, w.End, w.StepSize, w.Samples, w.Cursor)
}

// SearchState is the whole cross-invocation state of a search: either
// Scanning a window or Done with a best threshold. Use [Scanning] and [Done]
// to build one.
type SearchState struct {
	Phase  Phase
	Window SearchWindow
	Best   int
}

// Scanning returns a state that scans w.
func Scanning(w SearchWindow) SearchState {
	return SearchState{Phase: PhaseScanning, Window: w}
}

// Done returns the terminal state for best.
func Done(best int) SearchState {
	return SearchState{Phase: PhaseDone, Best: best}
}

// IsDone reports whether s is terminal.
func (s SearchState) IsDone() bool { return s.Phase == PhaseDone }

// Validate checks that s is a well-formed variant.
func (s SearchState) Validate() error {
	switch s.Phase {
	case PhaseScanning:
		return s.Window.Validate()
	case PhaseDone:
		if s.Window != (SearchWindow{}) {
			return fmt.Errorf("done state carries a window")
		}
		return nil
	default:
		return fmt.Errorf("unknown phase %d", uint8(s.Phase))
	}
}

func (s SearchState) String() string {
	if s.IsDone() {
		return fmt.Sprintf("done:%d", s.Best)
	}
	return s.Window.String()
}
