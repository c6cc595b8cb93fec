package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cloudomics/omicsdash"
	"github.com/cloudomics/omicsdash/sim"
)

// fakeEngine is a scriptable job system for handler tests.
type fakeEngine struct {
	mu      sync.Mutex
	poll    omicsdash.RunPoll
	pollErr error
	stats   *omicsdash.VariantStats
	submits int
}

func (f *fakeEngine) Submit(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return "run-1", nil
}

func (f *fakeEngine) Poll(ctx context.Context) (*omicsdash.RunPoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	poll := f.poll
	return &poll, nil
}

func (f *fakeEngine) Terminate(ctx context.Context, reason string) error { return nil }

func (f *fakeEngine) FetchStats(ctx context.Context) (*omicsdash.VariantStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stats == nil {
		return nil, omicsdash.ErrStatsNotReady
	}
	stats := *f.stats
	return &stats, nil
}

func (f *fakeEngine) set(fn func(*fakeEngine)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestApp(eng omicsdash.RunEngine) *app {
	return &app{
		cfg:          defaultConfig(),
		simMode:      true,
		tracker:      omicsdash.NewTracker(eng, 100),
		engine:       eng,
		sim:          sim.New(),
		hist:         omicsdash.NewResourceHistory(historyWindow),
		samplePubSub: newSamplePubSub(),
	}
}

func getJSON(t *testing.T, ts *httptest.Server, path string, wantStatus int, out any) {
	t.Helper()
	res, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %v failed: %v", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != wantStatus {
		t.Fatalf("GET %v: got status %v, want %v", path, res.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("GET %v: decode failed: %v", path, err)
		}
	}
}

func postJSON(t *testing.T, ts *httptest.Server, path string, wantStatus int, out any) {
	t.Helper()
	res, err := ts.Client().Post(ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %v failed: %v", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != wantStatus {
		t.Fatalf("POST %v: got status %v, want %v", path, res.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("POST %v: decode failed: %v", path, err)
		}
	}
}

func TestConfigEndpoint(t *testing.T) {
	a := newTestApp(&fakeEngine{})
	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	var cfg struct {
		Region       string `json:"region"`
		TotalSamples int    `json:"totalSamples"`
		Simulation   bool   `json:"simulation"`
	}
	getJSON(t, ts, "/api/config", http.StatusOK, &cfg)
	if cfg.Region != "us-east-1" {
		t.Errorf("region: got %v", cfg.Region)
	}
	if cfg.TotalSamples != 100 {
		t.Errorf("totalSamples: got %v", cfg.TotalSamples)
	}
	if !cfg.Simulation {
		t.Error("simulation flag not reported")
	}
}

func TestStatusReportsUnavailableJobSystem(t *testing.T) {
	eng := &fakeEngine{pollErr: errors.New("dial tcp: connection refused")}
	a := newTestApp(eng)
	a.tick(context.Background())

	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	var errRes errorResponse
	getJSON(t, ts, "/api/status", http.StatusServiceUnavailable, &errRes)
	if errRes.Error == "" {
		t.Error("unavailable response has no error message")
	}

	// The next successful poll clears the condition.
	eng.set(func(f *fakeEngine) { f.pollErr = nil })
	a.tick(context.Background())
	getJSON(t, ts, "/api/status", http.StatusOK, nil)
}

func TestStartFlow(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	a := newTestApp(eng)
	a.tick(ctx) // empty poll settles the session into ready

	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	var ack ackResponse
	postJSON(t, ts, "/api/start", http.StatusOK, &ack)
	if !ack.Success || ack.RunID != "run-1" {
		t.Fatalf("start ack: got %+v", ack)
	}
	if ack.Status != omicsdash.StatusRunning {
		t.Errorf("status after start: got %v, want %v", ack.Status, omicsdash.StatusRunning)
	}

	// Repeated start is acknowledged without a second submission.
	postJSON(t, ts, "/api/start", http.StatusOK, &ack)
	if ack.Status != omicsdash.StatusRunning {
		t.Errorf("repeated start status: got %v", ack.Status)
	}
	eng.set(func(f *fakeEngine) {
		if f.submits != 1 {
			t.Errorf("submit count: got %v, want 1", f.submits)
		}
	})

	eng.set(func(f *fakeEngine) { f.poll = omicsdash.RunPoll{Running: 10, Succeeded: 30, Pending: 60} })
	a.tick(ctx)

	var st statusResponse
	getJSON(t, ts, "/api/status", http.StatusOK, &st)
	if st.Status != omicsdash.StatusRunning {
		t.Errorf("status: got %v", st.Status)
	}
	if st.CompletedSamples != 30 || st.TotalSamples != 100 {
		t.Errorf("progress: got %v/%v, want 30/100", st.CompletedSamples, st.TotalSamples)
	}
	if st.CostAccrued < 0 {
		t.Errorf("negative cost: %v", st.CostAccrued)
	}

	var sample omicsdash.ResourceSample
	getJSON(t, ts, "/api/resources", http.StatusOK, &sample)
	if sample.SampleTime.IsZero() {
		t.Error("resource sample has no timestamp")
	}
}

func TestStartConflictBeforeReady(t *testing.T) {
	a := newTestApp(&fakeEngine{})
	// No tick: the session is still initializing.
	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	var errRes errorResponse
	postJSON(t, ts, "/api/start", http.StatusConflict, &errRes)
	if errRes.Error == "" {
		t.Error("conflict response has no error message")
	}
}

func TestStatsEmptyUntilCompleted(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	a := newTestApp(eng)
	a.tick(ctx)

	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	res, err := ts.Client().Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats failed: %v", err)
	}
	var buf [16]byte
	n, _ := res.Body.Read(buf[:])
	res.Body.Close()
	if got := strings.TrimSpace(string(buf[:n])); got != "{}" {
		t.Fatalf("stats before completion: got %q, want {}", got)
	}

	postJSON(t, ts, "/api/start", http.StatusOK, nil)
	eng.set(func(f *fakeEngine) {
		f.poll = omicsdash.RunPoll{Succeeded: 100, MergeSucceeded: true}
		f.stats = &omicsdash.VariantStats{
			TotalVariants: 243826, Transitions: 167538,
			Transversions: 76288, TiTvRatio: 2.196,
		}
	})
	a.tick(ctx)

	var stats omicsdash.VariantStats
	getJSON(t, ts, "/api/stats", http.StatusOK, &stats)
	if stats.TotalVariants != 243826 {
		t.Errorf("stats after completion: got %+v", stats)
	}
}

func TestStatsRetryWhenNotYetPublished(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	a := newTestApp(eng)
	a.tick(ctx)

	ts := httptest.NewServer(a.routes())
	defer ts.Close()
	postJSON(t, ts, "/api/start", http.StatusOK, nil)

	// The merge finished but the stats object has not landed: the status is
	// completed and stats stay empty until a later tick finds them.
	eng.set(func(f *fakeEngine) { f.poll = omicsdash.RunPoll{Succeeded: 100, MergeSucceeded: true} })
	a.tick(ctx)

	var st statusResponse
	getJSON(t, ts, "/api/status", http.StatusOK, &st)
	if st.Status != omicsdash.StatusCompleted {
		t.Fatalf("status: got %v, want %v", st.Status, omicsdash.StatusCompleted)
	}
	if _, ok := a.tracker.Stats(); ok {
		t.Fatal("stats should not be set before the object is published")
	}

	eng.set(func(f *fakeEngine) {
		f.stats = &omicsdash.VariantStats{TotalVariants: 243826, Transitions: 167538, Transversions: 76288, TiTvRatio: 2.196}
	})
	a.tick(ctx)
	if _, ok := a.tracker.Stats(); !ok {
		t.Fatal("stats missing after publication")
	}
}

func TestResetClearsSession(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	a := newTestApp(eng)
	a.tick(ctx)

	ts := httptest.NewServer(a.routes())
	defer ts.Close()
	postJSON(t, ts, "/api/start", http.StatusOK, nil)
	eng.set(func(f *fakeEngine) { f.poll = omicsdash.RunPoll{Running: 10, Succeeded: 30, Pending: 60} })
	a.tick(ctx)

	var ack ackResponse
	postJSON(t, ts, "/api/reset", http.StatusOK, &ack)
	if !ack.Success || ack.Status != omicsdash.StatusReady {
		t.Fatalf("reset ack: got %+v", ack)
	}

	eng.set(func(f *fakeEngine) { f.poll = omicsdash.RunPoll{} })
	a.tick(ctx)

	var st statusResponse
	getJSON(t, ts, "/api/status", http.StatusOK, &st)
	if st.Status != omicsdash.StatusReady {
		t.Errorf("status after reset: got %v", st.Status)
	}
	if st.CompletedSamples != 0 {
		t.Errorf("completed after reset: got %v", st.CompletedSamples)
	}
	if st.CostAccrued != 0 {
		t.Errorf("cost after reset: got %v", st.CostAccrued)
	}
}

func TestWebSocketStreamsSamples(t *testing.T) {
	a := newTestApp(&fakeEngine{})
	ts := httptest.NewServer(a.routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, ts.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer c.CloseNow() // nolint: errcheck

	want := omicsdash.ResourceSample{TimeMinutes: 2, CPUCount: 90, CPUUtilization: 75}
	// The subscription races the dial; keep publishing until delivery.
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				a.Publish(want)
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	var got omicsdash.ResourceSample
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("ws read failed: %v", err)
	}
	if got.CPUCount != want.CPUCount || got.TimeMinutes != want.TimeMinutes {
		t.Errorf("ws sample: got %+v, want %+v", got, want)
	}
}
