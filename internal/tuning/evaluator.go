package tuning

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MrWong99/kwstune/internal/corpus"
	"github.com/MrWong99/kwstune/internal/observe"
	"github.com/MrWong99/kwstune/pkg/audio"
	"github.com/MrWong99/kwstune/pkg/decoder"
)

// Evaluator scores one keyword at one threshold. samples is the total budget;
// implementations draw at most samples/2 positive and samples/2 false-alarm
// samples.
type Evaluator interface {
	Evaluate(ctx context.Context, keyword string, threshold, samples int) (ConfusionCounts, error)
}

// DictionaryCompiler produces the pronunciation dictionary a decoder needs
// for a keyword set. *vocab.Compiler satisfies it.
type DictionaryCompiler interface {
	Compile(ctx context.Context, keywords []string) (string, error)
}

// Compile-time interface check.
var _ Evaluator = (*CorpusEvaluator)(nil)

// CorpusEvaluator runs a decoder over corpus audio and reconciles the
// detections against the verified transcripts.
type CorpusEvaluator struct {
	corpus   corpus.Accessor
	audio    corpus.AudioStore
	decoders decoder.Factory
	dict     DictionaryCompiler
	metrics  *observe.Metrics
}

// EvaluatorOption is a functional option for [NewEvaluator].
type EvaluatorOption func(*CorpusEvaluator)

// WithEvaluatorMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithEvaluatorMetrics(m *observe.Metrics) EvaluatorOption {
	return func(e *CorpusEvaluator) { e.metrics = m }
}

// NewEvaluator wires an evaluator. All dependencies are required.
func NewEvaluator(acc corpus.Accessor, store corpus.AudioStore, f decoder.Factory, dict DictionaryCompiler, opts ...EvaluatorOption) (*CorpusEvaluator, error) {
	switch {
	case acc == nil:
		return nil, fmt.Errorf("%w: corpus accessor is required", ErrConfiguration)
	case store == nil:
		return nil, fmt.Errorf("%w: audio store is required", ErrConfiguration)
	case f == nil:
		return nil, fmt.Errorf("%w: decoder factory is required", ErrConfiguration)
	case dict == nil:
		return nil, fmt.Errorf("%w: dictionary compiler is required", ErrConfiguration)
	}
	e := &CorpusEvaluator{corpus: acc, audio: store, decoders: f, dict: dict}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// Evaluate implements [Evaluator]. A fresh decoder is built for the trial and
// closed before returning.
func (e *CorpusEvaluator) Evaluate(ctx context.Context, keyword string, threshold, samples int) (counts ConfusionCounts, err error) {
	ctx, span := observe.StartTrialSpan(ctx, keyword, threshold, samples)
	defer func() { observe.EndSpan(span, err) }()
	log := observe.TrialLogger(ctx, keyword, threshold)

	dictPath, err := e.dict.Compile(ctx, []string{keyword})
	if err != nil {
		return ConfusionCounts{}, fmt.Errorf("%w: compile dictionary: %w", ErrEvaluation, err)
	}

	half := samples / 2
	set, err := e.corpus.FetchSamples(ctx, keyword, half, half)
	if err != nil {
		return ConfusionCounts{}, fmt.Errorf("%w: fetch samples for %q: %w", ErrCorpusAccess, keyword, err)
	}

	dec, err := e.decoders.NewDecoder(ctx, decoder.Config{
		Keyword:        keyword,
		Threshold:      threshold,
		DictionaryPath: dictPath,
	})
	if err != nil {
		return ConfusionCounts{}, fmt.Errorf("%w: create %s decoder: %w", ErrEvaluation, e.decoders.Name(), err)
	}
	defer func() {
		if cerr := dec.Close(); cerr != nil {
			log.Warn("tuning: failed to close decoder", "err", cerr)
		}
	}()

	for _, s := range set {
		if err := ctx.Err(); err != nil {
			return ConfusionCounts{}, err
		}
		pcm, err := e.load(ctx, s.Filename)
		if err != nil {
			return ConfusionCounts{}, fmt.Errorf("%w: sample %s: %w", ErrEvaluation, s.Filename, err)
		}

		start := time.Now()
		words, err := dec.Decode(ctx, pcm)
		e.metrics.RecordDecode(ctx, e.decoders.Name(), keyword, time.Since(start), err)
		if err != nil {
			return ConfusionCounts{}, fmt.Errorf("%w: decode %s: %w", ErrEvaluation, s.Filename, err)
		}

		truth := Occurrences(s.VerifiedTranscript, keyword)
		detected := decoder.Count(words, keyword)
		counts.Add(truth, detected)
		log.Debug("tuning: sample scored", "file", s.Filename, "truth", truth, "detected", detected)
	}
	return counts, nil
}

// load reads a sample's payload and converts it to decoder PCM.
func (e *CorpusEvaluator) load(ctx context.Context, filename string) ([]byte, error) {
	rc, err := e.audio.Open(ctx, filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	p, err := audio.Extract(raw)
	if err != nil {
		return nil, err
	}
	return audio.Normalize(p, decoder.SampleRate)
}
