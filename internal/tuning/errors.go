package tuning

import "errors"

// Failure kinds surfaced by a step. Callers match them with [errors.Is]; the
// wrapped cause carries the detail.
var (
	// ErrEvaluation reports a decoder, dictionary or audio payload failure.
	ErrEvaluation = errors.New("evaluation failed")

	// ErrCorpusAccess reports an unreachable corpus or a failed corpus query.
	ErrCorpusAccess = errors.New("corpus access failed")

	// ErrConfiguration reports missing or invalid tuner configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidToken reports a step token that does not decode to a valid
	// search state.
	ErrInvalidToken = errors.New("invalid step token")
)
