// Package whisper provides keyword-spotting decoders backed by whisper.cpp.
//
// [Factory] talks to a running whisper-server (POST /inference) and requests
// verbose JSON output with per-token probabilities. [NativeFactory] links the
// whisper.cpp Go bindings and runs inference in-process. Both transcribe a
// sample, merge sub-word tokens into words and hand the words to a phonetic
// spotter built from the trial's pronunciation dictionary, which keeps only
// keyword matches whose probability clears 10^threshold.
//
// Usage:
//
//	f, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	dec, err := f.NewDecoder(ctx, decoder.Config{Keyword: "NAOMI", Threshold: -20, DictionaryPath: path})
//	hits, err := dec.Decode(ctx, pcm)
//	dec.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/kwstune/pkg/decoder"
	"github.com/MrWong99/kwstune/pkg/decoder/phonetic"
)

const defaultLanguage = "en"

// Compile-time interface check.
var _ decoder.Factory = (*Factory)(nil)

// Option is a functional option for configuring a [Factory].
type Option func(*Factory)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(f *Factory) {
		f.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(f *Factory) {
		f.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) {
		f.httpClient = c
	}
}

// WithSpotterOptions forwards options to the phonetic spotter.
func WithSpotterOptions(opts ...phonetic.Option) Option {
	return func(f *Factory) {
		f.spotterOpts = append(f.spotterOpts, opts...)
	}
}

// Factory creates decoders that call a whisper.cpp HTTP server.
type Factory struct {
	serverURL   string
	model       string
	language    string
	httpClient  *http.Client
	spotterOpts []phonetic.Option
}

// New creates a [Factory] for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Factory, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	f := &Factory{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Name implements [decoder.Factory].
func (f *Factory) Name() string { return "whisper" }

// NewDecoder implements [decoder.Factory].
func (f *Factory) NewDecoder(ctx context.Context, cfg decoder.Config) (decoder.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	spot, err := loadSpotter(cfg, f.spotterOpts...)
	if err != nil {
		return nil, err
	}
	return &httpDecoder{f: f, spotter: spot}, nil
}

type httpDecoder struct {
	f       *Factory
	spotter *phonetic.Spotter
}

func (d *httpDecoder) Decode(ctx context.Context, pcm []byte) ([]decoder.Word, error) {
	words, err := d.f.transcribe(ctx, pcm)
	if err != nil {
		return nil, err
	}
	return d.spotter.Spot(words), nil
}

func (d *httpDecoder) Close() error { return nil }

// verboseResponse is the subset of whisper-server's verbose_json output the
// decoder reads.
type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// transcribe posts pcm to /inference and returns the recognised words.
func (f *Factory) transcribe(ctx context.Context, pcm []byte) ([]decoder.Word, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, decoder.SampleRate)); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0",
		"language":        f.language,
		"model":           f.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	var tokens []token
	for _, seg := range result.Segments {
		if len(seg.Words) > 0 {
			for _, w := range seg.Words {
				tokens = append(tokens, token{
					text:  w.Word,
					p:     w.Probability,
					start: seconds(w.Start),
					end:   seconds(w.End),
				})
			}
			continue
		}
		// Servers without word output only report a segment-level log
		// probability; every word of the segment inherits it.
		p := math.Exp(seg.AvgLogprob)
		for _, w := range strings.Fields(seg.Text) {
			tokens = append(tokens, token{text: " " + w, p: p, start: seconds(seg.Start), end: seconds(seg.End)})
		}
	}
	return groupWords(tokens), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
