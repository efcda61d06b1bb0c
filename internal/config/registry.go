package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/kwstune/internal/corpus"
	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/pkg/decoder"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Backends that own connections or files implement io.Closer; callers close
// them when done.
type (
	DecoderFactory func(ctx context.Context, entry BackendEntry) (decoder.Factory, error)
	CorpusFactory  func(ctx context.Context, entry BackendEntry) (corpus.Accessor, error)
	AudioFactory   func(ctx context.Context, cfg AudioConfig) (corpus.AudioStore, error)
	LedgerFactory  func(ctx context.Context, entry BackendEntry) (ledger.Ledger, error)
)

// Registry maps backend names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	decoder map[string]DecoderFactory
	corpus  map[string]CorpusFactory
	audio   map[string]AudioFactory
	ledger  map[string]LedgerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		decoder: make(map[string]DecoderFactory),
		corpus:  make(map[string]CorpusFactory),
		audio:   make(map[string]AudioFactory),
		ledger:  make(map[string]LedgerFactory),
	}
}

// RegisterDecoder registers a decoder factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDecoder(name string, factory DecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoder[name] = factory
}

// RegisterCorpus registers a corpus accessor factory under name.
func (r *Registry) RegisterCorpus(name string, factory CorpusFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corpus[name] = factory
}

// RegisterAudio registers an audio store factory under name.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterLedger registers a ledger factory under name.
func (r *Registry) RegisterLedger(name string, factory LedgerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger[name] = factory
}

// CreateDecoder instantiates the decoder factory registered under entry.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateDecoder(ctx context.Context, entry BackendEntry) (decoder.Factory, error) {
	r.mu.RLock()
	factory, ok := r.decoder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decoder/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateCorpus instantiates the corpus accessor registered under entry.Name.
func (r *Registry) CreateCorpus(ctx context.Context, entry BackendEntry) (corpus.Accessor, error) {
	r.mu.RLock()
	factory, ok := r.corpus[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: corpus/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateAudio instantiates the audio store registered under cfg.Name.
func (r *Registry) CreateAudio(ctx context.Context, cfg AudioConfig) (corpus.AudioStore, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrBackendNotRegistered, cfg.Name)
	}
	return factory(ctx, cfg)
}

// CreateLedger instantiates the ledger registered under entry.Name.
func (r *Registry) CreateLedger(ctx context.Context, entry BackendEntry) (ledger.Ledger, error) {
	r.mu.RLock()
	factory, ok := r.ledger[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ledger/%q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}
