package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/kwstune/internal/config"
	"github.com/MrWong99/kwstune/internal/corpus"
	corpuspg "github.com/MrWong99/kwstune/internal/corpus/postgres"
	"github.com/MrWong99/kwstune/internal/health"
	"github.com/MrWong99/kwstune/internal/history"
	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/ledger/badgerstore"
	ledgerpg "github.com/MrWong99/kwstune/internal/ledger/postgres"
	"github.com/MrWong99/kwstune/internal/observe"
	"github.com/MrWong99/kwstune/internal/profile"
	"github.com/MrWong99/kwstune/internal/tuning"
	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/decoder/phonetic"
	"github.com/MrWong99/kwstune/pkg/decoder/whisper"
	"github.com/MrWong99/kwstune/pkg/vocab"
)

// defaultKeyword is searched when neither the config nor the profile names
// one.
const defaultKeyword = "NAOMI"

// runtime holds everything a command needs to run steps, plus the resources
// to release afterwards.
type runtime struct {
	ctrl     *tuning.Controller
	handler  *tuning.Handler
	ledger   ledger.Ledger
	checkers []health.Checker

	pools   map[string]*pgxpool.Pool
	closers []func() error
}

// Close releases resources in reverse acquisition order.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// pool returns a shared connection pool for dsn.
func (rt *runtime) pool(ctx context.Context, name, dsn string) (*pgxpool.Pool, error) {
	if p, ok := rt.pools[dsn]; ok {
		rt.checkers = append(rt.checkers, health.Ping(name, p))
		return p, nil
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: connect postgres: %w", name, err)
	}
	rt.pools[dsn] = p
	rt.closers = append(rt.closers, func() error { p.Close(); return nil })
	rt.checkers = append(rt.checkers, health.Ping(name, p))
	return p, nil
}

// registerBackends wires the built-in backend factories into reg. Factories
// record their cleanup and readiness checks on rt.
func registerBackends(reg *config.Registry, rt *runtime) {
	// ── Decoders ─────────────────────────────────────────────────────────────

	reg.RegisterDecoder("whisper", func(_ context.Context, e config.BackendEntry) (decoder.Factory, error) {
		opts := []whisper.Option{whisper.WithSpotterOptions(spotterOptions(e)...)}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterDecoder("whisper-native", func(_ context.Context, e config.BackendEntry) (decoder.Factory, error) {
		opts := []whisper.NativeOption{whisper.WithNativeSpotterOptions(spotterOptions(e)...)}
		if lang := e.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := e.OptionInt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		f, err := whisper.NewNative(e.Model, opts...)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, f.Close)
		return f, nil
	})

	// ── Corpus ───────────────────────────────────────────────────────────────

	reg.RegisterCorpus("postgres", func(ctx context.Context, e config.BackendEntry) (corpus.Accessor, error) {
		p, err := rt.pool(ctx, "corpus", e.PostgresDSN)
		if err != nil {
			return nil, err
		}
		var opts []corpuspg.Option
		if e.Table != "" {
			opts = append(opts, corpuspg.WithTable(e.Table))
		}
		acc := corpuspg.New(p, opts...)
		if optBool(e, "migrate") {
			if err := acc.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return acc, nil
	})

	reg.RegisterCorpus("memory", func(_ context.Context, e config.BackendEntry) (corpus.Accessor, error) {
		path := e.OptionString("manifest")
		if path == "" {
			slog.Warn("memory corpus has no manifest; every trial will score zero")
			return corpus.NewMemory(nil), nil
		}
		samples, err := corpus.LoadManifest(path)
		if err != nil {
			return nil, err
		}
		return corpus.NewMemory(samples), nil
	})

	// ── Audio ────────────────────────────────────────────────────────────────

	reg.RegisterAudio("dir", func(_ context.Context, a config.AudioConfig) (corpus.AudioStore, error) {
		return corpus.NewDirStore(a.Dir), nil
	})

	reg.RegisterAudio("s3", func(_ context.Context, a config.AudioConfig) (corpus.AudioStore, error) {
		store := corpus.NewS3Store(newS3Client(a), a.Bucket, a.Prefix)
		rt.checkers = append(rt.checkers, health.Ping("audio", store))
		return store, nil
	})

	// ── Ledger ───────────────────────────────────────────────────────────────

	reg.RegisterLedger("memory", func(context.Context, config.BackendEntry) (ledger.Ledger, error) {
		return ledger.NewMemory(), nil
	})

	reg.RegisterLedger("postgres", func(ctx context.Context, e config.BackendEntry) (ledger.Ledger, error) {
		p, err := rt.pool(ctx, "ledger", e.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s := ledgerpg.New(p)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	})

	reg.RegisterLedger("badger", func(_ context.Context, e config.BackendEntry) (ledger.Ledger, error) {
		s, err := badgerstore.Open(badgerstore.Options{Dir: e.Dir})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, s.Close)
		return s, nil
	})
}

// buildRuntime creates the backends named in cfg and wires the step handler.
// The caller must Close the returned runtime.
func buildRuntime(ctx context.Context, cfg *config.Config, m *observe.Metrics) (_ *runtime, err error) {
	rt := &runtime{pools: map[string]*pgxpool.Pool{}}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	reg := config.NewRegistry()
	registerBackends(reg, rt)

	dec, err := reg.CreateDecoder(ctx, cfg.Decoder)
	if err != nil {
		return nil, fmt.Errorf("create decoder %q: %w", cfg.Decoder.Name, err)
	}
	acc, err := reg.CreateCorpus(ctx, cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("create corpus %q: %w", cfg.Corpus.Name, err)
	}
	audio, err := reg.CreateAudio(ctx, cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio store %q: %w", cfg.Audio.Name, err)
	}
	rt.ledger, err = reg.CreateLedger(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("create ledger %q: %w", cfg.Ledger.Name, err)
	}
	slog.Info("backends created",
		"decoder", cfg.Decoder.Name,
		"corpus", cfg.Corpus.Name,
		"audio", cfg.Audio.Name,
		"ledger", cfg.Ledger.Name,
	)

	var prof *profile.Store
	if cfg.Profile.Path != "" {
		if prof, err = profile.Open(cfg.Profile.Path); err != nil {
			return nil, err
		}
	}
	keywords := resolveKeywords(cfg, prof)

	eval, err := tuning.NewEvaluator(acc, audio, dec, vocab.NewCompiler(cfg.Vocabulary.Dir),
		tuning.WithEvaluatorMetrics(m))
	if err != nil {
		return nil, err
	}
	window := tuning.SearchWindow{
		Start:    cfg.Search.Start,
		End:      cfg.Search.End,
		StepSize: cfg.Search.StepSize,
		Samples:  cfg.Search.Samples,
		Cursor:   cfg.Search.Start,
	}
	rt.ctrl, err = tuning.NewController(keywords, eval, rt.ledger,
		tuning.WithWindow(window),
		tuning.WithMaxSamples(cfg.Search.MaxSamples),
		tuning.WithControllerMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	opts := []tuning.HandlerOption{tuning.WithStepTimeout(cfg.Search.StepTimeout)}
	if prof != nil {
		opts = append(opts, tuning.WithProfile(prof, cfg.Profile.ThresholdKey))
	}
	if cfg.History.Path != "" {
		opts = append(opts, tuning.WithHistory(history.NewFileStore(cfg.History.Path)))
	}
	rt.handler = tuning.NewHandler(rt.ctrl, opts...)
	return rt, nil
}

// resolveKeywords picks the configured keywords, then the profile's, then
// [defaultKeyword].
func resolveKeywords(cfg *config.Config, prof *profile.Store) []string {
	if len(cfg.Keywords) > 0 {
		return cfg.Keywords
	}
	if prof != nil {
		if kws := prof.Keywords(cfg.Profile.KeywordKey); len(kws) > 0 {
			return kws
		}
	}
	slog.Warn("no keywords configured, falling back to default", "keyword", defaultKeyword)
	return []string{defaultKeyword}
}

// newS3Client builds an S3 client from the audio config. Credentials come
// from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func newS3Client(a config.AudioConfig) *s3.Client {
	region := a.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: a.UsePathStyle,
		Credentials:  aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if a.Endpoint != "" {
		opts.BaseEndpoint = aws.String(a.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials(context.Context) (aws.Credentials, error) {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("s3: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

// spotterOptions reads phonetic_threshold and fuzzy_threshold from e.Options.
func spotterOptions(e config.BackendEntry) []phonetic.Option {
	var opts []phonetic.Option
	if v, ok := optFloat(e, "phonetic_threshold"); ok {
		opts = append(opts, phonetic.WithPhoneticThreshold(v))
	}
	if v, ok := optFloat(e, "fuzzy_threshold"); ok {
		opts = append(opts, phonetic.WithFuzzyThreshold(v))
	}
	return opts
}

func optFloat(e config.BackendEntry, key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optBool(e config.BackendEntry, key string) bool {
	v, _ := e.Options[key].(bool)
	return v
}
