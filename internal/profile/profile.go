// Package profile persists the detector profile as a YAML document of nested
// maps. The tuner writes its best threshold into it; detectors read it back.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultThresholdKey is where the tuned threshold is stored.
var DefaultThresholdKey = []string{"whisper_kws", "threshold"}

// Store is a YAML-backed profile. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	root map[string]any
}

// Open loads the profile at path. A missing file yields an empty profile that
// is created on the first [Store.Save].
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("profile: path must not be empty")
	}
	s := &Store{path: path, root: map[string]any{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.root); err != nil {
		return nil, fmt.Errorf("profile: decode %q: %w", path, err)
	}
	if s.root == nil {
		s.root = map[string]any{}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns the value stored under the nested key path.
func (s *Store) Get(path []string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur any = s.root
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value under the nested key path, creating intermediate maps.
func (s *Store) Set(path []string, value any) error {
	if len(path) == 0 {
		return errors.New("profile: empty key path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.root
	for i, k := range path[:len(path)-1] {
		next, ok := m[k]
		if !ok {
			child := map[string]any{}
			m[k] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("profile: %s is not a mapping", strings.Join(path[:i+1], "."))
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}

// Keywords reads the keyword list stored under key. A single string is
// accepted as a one-element list.
func (s *Store) Keywords(key []string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if str, ok := e.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// Save writes the profile atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	data, err := yaml.Marshal(s.root)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("profile: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.yaml")
	if err != nil {
		return fmt.Errorf("profile: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("profile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("profile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("profile: replace %q: %w", s.path, err)
	}
	return nil
}
