package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/kwstune/internal/health"
	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/server"
	"github.com/MrWong99/kwstune/internal/tuning"
)

// stubStepper returns a canned result and records its inputs.
type stubStepper struct {
	mu     sync.Mutex
	result tuning.Result
	calls  []string
}

func (s *stubStepper) Handle(_ context.Context, token, description string) tuning.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, token+"|"+description)
	res := s.result
	res.Description = description
	return res
}

type failingLister struct{}

func (failingLister) Trials(context.Context) ([]ledger.Trial, error) {
	return nil, errors.New("ledger offline")
}

func postStep(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/step", strings.NewReader(body)))
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, out
}

func TestStep_Success(t *testing.T) {
	t.Parallel()
	best := 0
	st := &stubStepper{result: tuning.Result{
		Report: []string{"Best threshold: 0"},
		Trials: []tuning.ScoredTrial{{
			Trial:  ledger.Trial{Keyword: "NAOMI", Threshold: 0, Precision: 0.9, Recall: 0.9, F1: 0.9},
			Counts: tuning.ConfusionCounts{TruePositives: 9, FalsePositives: 1, FalseNegatives: 1, TotalInstances: 10, TotalDetected: 10},
		}},
		Best: &best,
	}}
	srv := server.New(st, ledger.NewMemory())

	rec, out := postStep(t, srv.Handler(), `{"token":"abc","description":"nightly"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if out["next_token"] != "" || out["description"] != "nightly" || out["best"] != float64(0) {
		t.Errorf("response = %v", out)
	}
	trials := out["trials"].([]any)
	first := trials[0].(map[string]any)
	if first["keyword"] != "NAOMI" || first["true_positives"] != float64(9) || first["instances"] != float64(10) {
		t.Errorf("trial = %v", first)
	}
	if len(st.calls) != 1 || st.calls[0] != "abc|nightly" {
		t.Errorf("calls = %v", st.calls)
	}
}

func TestStep_ErrorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", fmt.Errorf("%w: bad base64", tuning.ErrInvalidToken), http.StatusBadRequest},
		{"corpus", fmt.Errorf("%w: connection refused", tuning.ErrCorpusAccess), http.StatusBadGateway},
		{"evaluation", fmt.Errorf("%w: decoder crashed", tuning.ErrEvaluation), http.StatusBadGateway},
		{"timeout", fmt.Errorf("step: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"configuration", fmt.Errorf("%w: save profile", tuning.ErrConfiguration), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &stubStepper{result: tuning.Result{Report: []string{"Error: " + tt.err.Error()}, Err: tt.err}}
			rec, out := postStep(t, server.New(st, ledger.NewMemory()).Handler(), `{"token":"x"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if out["error"] != tt.err.Error() || out["next_token"] != "" {
				t.Errorf("response = %v", out)
			}
		})
	}
}

func TestStep_BadBody(t *testing.T) {
	t.Parallel()
	st := &stubStepper{}
	h := server.New(st, ledger.NewMemory()).Handler()
	for _, body := range []string{`not json`, `{"tokn":"x"}`} {
		rec, _ := postStep(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if len(st.calls) != 0 {
		t.Errorf("stepper called for a bad body: %v", st.calls)
	}
}

func TestStep_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	server.New(&stubStepper{}, ledger.NewMemory()).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/step", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestLedger_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := ledger.NewMemory()
	h := server.New(&stubStepper{}, l).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty ledger: %d %q", rec.Code, rec.Body.String())
	}

	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -10, F1: 0.2})
	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -9, F1: 0.5})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger", nil))
	var rows []ledger.Trial
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Threshold != -9 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLedger_Error(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	server.New(&stubStepper{}, failingLister{}).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	hh := health.New(health.Checker{Name: "ledger", Check: func(context.Context) error { return errors.New("down") }})
	h := server.New(&stubStepper{}, ledger.NewMemory(), server.WithHealth(hh)).Handler()

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) server.WatchEvent {
	t.Helper()
	var ev server.WatchEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestLedgerWatch_StreamsTrialsAndResets(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := ledger.NewMemory()
	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -10, F1: 0.2})

	srv := httptest.NewServer(server.New(&stubStepper{}, l, server.WithWatchInterval(20*time.Millisecond)).Handler())
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ledger/watch", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if ev := readEvent(t, ctx, conn); ev.Type != server.EventTrial || ev.Trial.Threshold != -10 {
		t.Fatalf("first event = %+v", ev)
	}

	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -9, F1: 0.4})
	if ev := readEvent(t, ctx, conn); ev.Type != server.EventTrial || ev.Trial.Threshold != -9 {
		t.Fatalf("second event = %+v", ev)
	}

	_ = l.Reset(ctx)
	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -10, F1: 0.6})
	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -9, F1: 0.6})
	_ = l.Record(ctx, ledger.Trial{Keyword: "NAOMI", Threshold: -8, F1: 0.6})

	if ev := readEvent(t, ctx, conn); ev.Type != server.EventReset {
		t.Fatalf("expected reset, got %+v", ev)
	}
	for _, want := range []int{-10, -9, -8} {
		ev := readEvent(t, ctx, conn)
		if ev.Type != server.EventTrial || ev.Trial.Threshold != want {
			t.Fatalf("event = %+v, want trial at %d", ev, want)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestLedgerWatch_RejectsPlainHTTP(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	server.New(&stubStepper{}, ledger.NewMemory()).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger/watch", bytes.NewReader(nil)))
	if rec.Code == http.StatusOK || rec.Code == http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want an upgrade error", rec.Code)
	}
}
