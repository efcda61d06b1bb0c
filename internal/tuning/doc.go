// Package tuning searches for the detection threshold that maximizes the F1
// score of a keyword-spotting decoder over a labeled corpus.
//
// The search is driven one bounded step at a time. An [Evaluator] scores one
// (keyword, threshold) pair by decoding every positive and false-alarm sample.
// A [Controller] walks a [SearchWindow] over the threshold axis and records
// each score in the ledger. When the score stops improving before the window
// ends, the controller narrows the window onto the plateau and doubles the
// sample budget, until a single peak remains or the budget cap is reached. A
// [Handler] wraps the controller behind an opaque step token (see
// [EncodeState]) so callers can run the search across separate invocations.
package tuning
