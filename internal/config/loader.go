package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists known backend names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = map[string][]string{
	"decoder": {"whisper", "whisper-native"},
	"corpus":  {"memory", "postgres"},
	"audio":   {"dir", "s3"},
	"ledger":  {"memory", "postgres", "badger"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr = ":8080"
	DefaultStart      = -10
	DefaultEnd        = 10
	DefaultStepSize   = 1
	DefaultSamples    = 20
	DefaultMaxSamples = 100
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults. The search window is
// defaulted as a whole when it is entirely unset.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	s := &cfg.Search
	if s.Start == 0 && s.End == 0 {
		s.Start, s.End = DefaultStart, DefaultEnd
	}
	if s.StepSize == 0 {
		s.StepSize = DefaultStepSize
	}
	if s.Samples == 0 {
		s.Samples = DefaultSamples
	}
	if s.MaxSamples == 0 {
		s.MaxSamples = DefaultMaxSamples
	}
	if cfg.Corpus.Name == "" {
		cfg.Corpus.Name = "postgres"
	}
	if cfg.Audio.Name == "" {
		cfg.Audio.Name = "dir"
	}
	if cfg.Ledger.Name == "" {
		cfg.Ledger.Name = "memory"
	}
	if cfg.Decoder.Name == "" {
		cfg.Decoder.Name = "whisper"
	}
	if len(cfg.Profile.ThresholdKey) == 0 {
		cfg.Profile.ThresholdKey = []string{"whisper_kws", "threshold"}
	}
	if len(cfg.Profile.KeywordKey) == 0 {
		cfg.Profile.KeywordKey = []string{"keyword"}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateBackendName("decoder", cfg.Decoder.Name)
	validateBackendName("corpus", cfg.Corpus.Name)
	validateBackendName("audio", cfg.Audio.Name)
	validateBackendName("ledger", cfg.Ledger.Name)

	// Keywords
	seen := make(map[string]int, len(cfg.Keywords))
	for i, kw := range cfg.Keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("keywords[%d] is empty", i))
			continue
		}
		if prev, ok := seen[kw]; ok {
			errs = append(errs, fmt.Errorf("keywords[%d] %q is a duplicate of keywords[%d]", i, kw, prev))
		}
		seen[kw] = i
	}
	if len(cfg.Keywords) == 0 && cfg.Profile.Path == "" {
		errs = append(errs, errors.New("keywords is empty and no profile.path is set to read them from"))
	}

	// Search window
	s := cfg.Search
	if s.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("search.step_size %d must be positive", s.StepSize))
	}
	if s.Start > s.End {
		errs = append(errs, fmt.Errorf("search.start %d is after search.end %d", s.Start, s.End))
	}
	if s.Samples < 2 {
		errs = append(errs, fmt.Errorf("search.samples %d must be at least 2", s.Samples))
	}
	if s.MaxSamples <= 0 {
		errs = append(errs, fmt.Errorf("search.max_samples %d must be positive", s.MaxSamples))
	}
	if s.StepTimeout < 0 {
		errs = append(errs, fmt.Errorf("search.step_timeout %s must not be negative", s.StepTimeout))
	}

	// Backend requirements
	switch cfg.Decoder.Name {
	case "whisper":
		if cfg.Decoder.BaseURL == "" {
			errs = append(errs, errors.New("decoder.base_url is required for the whisper decoder"))
		}
	case "whisper-native":
		if cfg.Decoder.Model == "" {
			errs = append(errs, errors.New("decoder.model is required for the whisper-native decoder"))
		}
	}
	if cfg.Corpus.Name == "postgres" && cfg.Corpus.PostgresDSN == "" {
		errs = append(errs, errors.New("corpus.postgres_dsn is required for the postgres corpus"))
	}
	switch cfg.Audio.Name {
	case "dir":
		if cfg.Audio.Dir == "" {
			errs = append(errs, errors.New("audio.dir is required for the dir audio store"))
		}
	case "s3":
		if cfg.Audio.Bucket == "" {
			errs = append(errs, errors.New("audio.bucket is required for the s3 audio store"))
		}
	}
	switch cfg.Ledger.Name {
	case "postgres":
		if cfg.Ledger.PostgresDSN == "" {
			errs = append(errs, errors.New("ledger.postgres_dsn is required for the postgres ledger"))
		}
	case "badger":
		if cfg.Ledger.Dir == "" {
			errs = append(errs, errors.New("ledger.dir is required for the badger ledger"))
		}
	}
	if cfg.Vocabulary.Dir == "" {
		errs = append(errs, errors.New("vocabulary.dir is required"))
	}
	if cfg.Profile.Path == "" {
		slog.Warn("profile.path is empty; the best threshold will not be persisted")
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name, may be a typo or a third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
