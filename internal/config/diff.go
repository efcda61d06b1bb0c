package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SearchChanged is true when the default window or step timeout changed.
	// It applies to the next fresh search.
	SearchChanged bool

	// RestartRequired is true when a backend, keyword or path changed.
	// Those are wired once at startup.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Search != new.Search {
		d.SearchChanged = true
	}

	switch {
	case old.Server.ListenAddr != new.Server.ListenAddr,
		!slices.Equal(old.Keywords, new.Keywords),
		!backendEqual(old.Decoder, new.Decoder),
		!backendEqual(old.Corpus, new.Corpus),
		!backendEqual(old.Ledger, new.Ledger),
		old.Audio != new.Audio,
		old.Vocabulary != new.Vocabulary,
		old.Profile.Path != new.Profile.Path,
		!slices.Equal(old.Profile.ThresholdKey, new.Profile.ThresholdKey),
		!slices.Equal(old.Profile.KeywordKey, new.Profile.KeywordKey),
		old.History != new.History:
		d.RestartRequired = true
	}
	return d
}

// backendEqual compares two entries including their Options maps.
func backendEqual(a, b BackendEntry) bool {
	if a.Name != b.Name || a.BaseURL != b.BaseURL || a.Model != b.Model ||
		a.PostgresDSN != b.PostgresDSN || a.Table != b.Table || a.Dir != b.Dir {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !optionEqual(v, w) {
			return false
		}
	}
	return true
}

func optionEqual(a, b any) bool {
	switch av := a.(type) {
	case string, int, bool, float64:
		return a == b
	case []any:
		bv, ok := b.([]any)
		return ok && slices.EqualFunc(av, bv, optionEqual)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if w, ok := bv[k]; !ok || !optionEqual(v, w) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
