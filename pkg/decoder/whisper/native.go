// This file contains the NativeFactory implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/decoder/phonetic"
)

// Compile-time interface check.
var _ decoder.Factory = (*NativeFactory)(nil)

// NativeFactory creates decoders that run whisper.cpp in-process. The model
// is loaded once and shared; every Decode call creates its own inference
// context from it.
type NativeFactory struct {
	model       whisperlib.Model
	language    string
	threads     uint
	spotterOpts []phonetic.Option

	// whisper contexts are heavy; one inference at a time keeps memory flat.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a [NativeFactory].
type NativeOption func(*NativeFactory)

// WithNativeLanguage sets the language code for transcription. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(f *NativeFactory) { f.language = lang }
}

// WithNativeThreads sets the number of inference threads. Zero keeps the
// bindings' default.
func WithNativeThreads(n uint) NativeOption {
	return func(f *NativeFactory) { f.threads = n }
}

// WithNativeSpotterOptions forwards options to the phonetic spotter.
func WithNativeSpotterOptions(opts ...phonetic.Option) NativeOption {
	return func(f *NativeFactory) { f.spotterOpts = append(f.spotterOpts, opts...) }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the factory is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeFactory, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	f := &NativeFactory{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Name implements [decoder.Factory].
func (f *NativeFactory) Name() string { return "whisper-native" }

// Close releases the whisper model.
func (f *NativeFactory) Close() error {
	if f.model != nil {
		return f.model.Close()
	}
	return nil
}

// NewDecoder implements [decoder.Factory].
func (f *NativeFactory) NewDecoder(ctx context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	spot, err := loadSpotter(cfg, f.spotterOpts...)
	if err != nil {
		return nil, err
	}
	return &nativeDecoder{f: f, spotter: spot}, nil
}

type nativeDecoder struct {
	f       *NativeFactory
	spotter *phonetic.Spotter
}

func (d *nativeDecoder) Decode(ctx context.Context, pcm []byte) ([]decoder.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	words, err := d.f.infer(pcm)
	if err != nil {
		return nil, err
	}
	return d.spotter.Spot(words), nil
}

func (d *nativeDecoder) Close() error { return nil }

// infer runs whisper.cpp over pcm and returns the recognised words with token
// probabilities.
func (f *NativeFactory) infer(pcm []byte) ([]decoder.Word, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wctx, err := f.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(f.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", f.language, "err", err)
	}
	if f.threads > 0 {
		wctx.SetThreads(f.threads)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(pcmToFloat32(pcm), nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var tokens []token
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		for _, tk := range segment.Tokens {
			tokens = append(tokens, token{
				text:  tk.Text,
				p:     float64(tk.P),
				start: tk.Start,
				end:   tk.End,
			})
		}
	}
	return groupWords(tokens), nil
}
