package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/kwstune/internal/profile"
	"github.com/MrWong99/kwstune/internal/tuning"
)

// newWhisperServer answers every inference request with a single "Naomi"
// word at probability 0.5.
func newWhisperServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": " Naomi",
			"segments": []map[string]any{{
				"text":  " Naomi",
				"words": []map[string]any{{"word": " Naomi", "start": 0.0, "end": 0.4, "probability": 0.5}},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	pcm := make([]byte, 320)
	hdr := make([]byte, 44)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+len(pcm)))
	copy(hdr[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], 1)
	binary.LittleEndian.PutUint16(hdr[22:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], 16000)
	binary.LittleEndian.PutUint32(hdr[28:], 32000)
	binary.LittleEndian.PutUint16(hdr[32:], 2)
	binary.LittleEndian.PutUint16(hdr[34:], 16)
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(pcm)))
	if err := os.WriteFile(path, append(hdr, pcm...), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	config  string
	profile string
}

// newFixture writes a complete configuration: a memory corpus with one
// positive and one false-alarm recording, a badger ledger and a profile.
func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	audioDir := filepath.Join(dir, "audiolog")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeWAV(t, filepath.Join(audioDir, "a.wav"))
	writeWAV(t, filepath.Join(audioDir, "b.wav"))

	manifest := filepath.Join(dir, "samples.yaml")
	if err := os.WriteFile(manifest, []byte(`
- filename: a.wav
  verified: naomi lights on
  transcript: naomi lights on
- filename: b.wav
  verified: no me
  transcript: naomi
`), 0o644); err != nil {
		t.Fatal(err)
	}

	f := fixture{
		config:  filepath.Join(dir, "kwstune.yaml"),
		profile: filepath.Join(dir, "profile.yml"),
	}
	cfg := fmt.Sprintf(`
server:
  log_level: error
keywords: [NAOMI]
search:
  start: -2
  end: 0
  step_size: 1
  samples: 4
  max_samples: 8
decoder:
  name: whisper
  base_url: %s
vocabulary:
  dir: %s
corpus:
  name: memory
  options:
    manifest: %s
audio:
  dir: %s
ledger:
  name: badger
  dir: %s
profile:
  path: %s
history:
  path: %s
`, newWhisperServer(t).URL, filepath.Join(dir, "vocab"), manifest, audioDir,
		filepath.Join(dir, "ledger"), f.profile, filepath.Join(dir, "history.jsonl"))
	if err := os.WriteFile(f.config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_FindsBestThresholdAndPersists(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "--config", f.config, "run", "--description", "kitchen mic")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Best threshold: -2") || !strings.Contains(out, "search finished") {
		t.Errorf("output missing result:\n%s", out)
	}
	if !strings.Contains(out, "Plateau detected") {
		t.Errorf("expected a refinement round:\n%s", out)
	}

	prof, err := profile.Open(f.profile)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := prof.Get(profile.DefaultThresholdKey); !ok || v != -2 {
		t.Errorf("profile threshold = %v (%v), want -2", v, ok)
	}

	out, err = execute(t, "--config", f.config, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "NAOMI") || !strings.Contains(out, "kitchen mic") {
		t.Errorf("history output:\n%s", out)
	}

	// The badger ledger keeps the final refinement round.
	out, err = execute(t, "--config", f.config, "ledger")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	for _, want := range []string{"-2", "-1", "0.667"} {
		if !strings.Contains(out, want) {
			t.Errorf("ledger output missing %q:\n%s", want, out)
		}
	}
}

func TestStep_PrintsNextToken(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "--config", f.config, "step")
	if err != nil {
		t.Fatalf("step: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Starting search for [NAOMI]") {
		t.Errorf("output:\n%s", out)
	}
	var token string
	for _, line := range strings.Split(out, "\n") {
		if _, tok, ok := strings.Cut(line, "next token: "); ok {
			token = strings.TrimSpace(tok)
		}
	}
	if token == "" {
		t.Fatalf("no next token in output:\n%s", out)
	}

	out, err = execute(t, "--config", f.config, "step", "--token", token)
	if err != nil {
		t.Fatalf("second step: %v\n%s", err, out)
	}
	if !strings.Contains(out, "NAOMI") || !strings.Contains(out, "-1") {
		t.Errorf("second step output:\n%s", out)
	}
}

func TestStep_InvalidToken(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "--config", f.config, "step", "--token", "!!!")
	if !errors.Is(err, tuning.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if !strings.Contains(out, "Error:") || strings.Contains(out, "next token") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRoot_ConfigErrors(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "history")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing config err = %v", err)
	}

	f := newFixture(t)
	if _, err := execute(t, "--config", f.config, "--log-level", "loud", "history"); err == nil {
		t.Error("expected error for invalid --log-level")
	}
}

func TestHistory_NotConfigured(t *testing.T) {
	f := newFixture(t)
	data, err := os.ReadFile(f.config)
	if err != nil {
		t.Fatal(err)
	}
	trimmed := string(data[:bytes.Index(data, []byte("history:"))])
	if err := os.WriteFile(f.config, []byte(trimmed), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", f.config, "history"); err == nil {
		t.Error("expected error without history.path")
	}
}
