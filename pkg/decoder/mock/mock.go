// Package mock provides test doubles for the decoder package interfaces.
//
// Factory hands out Decoders whose output is scripted by DecodeFunc (or the
// static Words slice) and records every call, so tests can assert which
// keyword/threshold pairs were tried and how much audio each decoder saw.
//
// Example:
//
//	f := &mock.Factory{
//	    DecodeFunc: func(cfg decoder.Config, pcm []byte) ([]decoder.Word, error) {
//	        return []decoder.Word{{Text: cfg.Keyword, Probability: 1}}, nil
//	    },
//	}
//	dec, _ := f.NewDecoder(ctx, decoder.Config{Keyword: "NAOMI"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kwstune/pkg/decoder"
)

// DecodeCall records a single invocation of Decoder.Decode.
type DecodeCall struct {
	// Cfg is the Config the decoder was built with.
	Cfg decoder.Config
	// PCM is a copy of the audio passed to Decode.
	PCM []byte
}

// Factory is a mock implementation of decoder.Factory.
type Factory struct {
	mu sync.Mutex

	// FactoryName is returned by Name. Defaults to "mock".
	FactoryName string

	// NewDecoderErr, if non-nil, is returned as the error from NewDecoder.
	NewDecoderErr error

	// DecodeFunc, if set, produces the result of every Decode call.
	DecodeFunc func(cfg decoder.Config, pcm []byte) ([]decoder.Word, error)

	// Words is returned by Decode when DecodeFunc is nil.
	Words []decoder.Word

	// DecodeErr is returned by Decode when DecodeFunc is nil.
	DecodeErr error

	// NewDecoderCalls records every Config passed to NewDecoder.
	NewDecoderCalls []decoder.Config

	// DecodeCalls records every Decode call across all decoders.
	DecodeCalls []DecodeCall

	// Closed counts decoders that were closed.
	Closed int
}

// Ensure Factory implements decoder.Factory at compile time.
var _ decoder.Factory = (*Factory)(nil)

// Name implements decoder.Factory.
func (f *Factory) Name() string {
	if f.FactoryName == "" {
		return "mock"
	}
	return f.FactoryName
}

// NewDecoder records the call and returns a Decoder bound to cfg.
func (f *Factory) NewDecoder(_ context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewDecoderCalls = append(f.NewDecoderCalls, cfg)
	if f.NewDecoderErr != nil {
		return nil, f.NewDecoderErr
	}
	return &Decoder{f: f, cfg: cfg}, nil
}

// Calls returns a snapshot of the recorded NewDecoder configs. Thread-safe.
func (f *Factory) Calls() []decoder.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]decoder.Config, len(f.NewDecoderCalls))
	copy(out, f.NewDecoderCalls)
	return out
}

// Decodes returns the number of Decode calls so far. Thread-safe.
func (f *Factory) Decodes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DecodeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewDecoderCalls = nil
	f.DecodeCalls = nil
	f.Closed = 0
}

// Decoder is a mock implementation of decoder.Decoder created by Factory.
type Decoder struct {
	f   *Factory
	cfg decoder.Config
}

// Ensure Decoder implements decoder.Decoder at compile time.
var _ decoder.Decoder = (*Decoder)(nil)

// Decode records the call and returns the scripted result.
func (d *Decoder) Decode(_ context.Context, pcm []byte) ([]decoder.Word, error) {
	d.f.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	d.f.DecodeCalls = append(d.f.DecodeCalls, DecodeCall{Cfg: d.cfg, PCM: cp})
	fn, words, err := d.f.DecodeFunc, d.f.Words, d.f.DecodeErr
	d.f.mu.Unlock()

	if fn != nil {
		return fn(d.cfg, pcm)
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}

// Close implements decoder.Decoder.
func (d *Decoder) Close() error {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	d.f.Closed++
	return nil
}
