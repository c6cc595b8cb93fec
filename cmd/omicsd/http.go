package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cloudomics/omicsdash"
	"github.com/cloudomics/omicsdash/cost"
)

type closeCh chan struct{}

// samplePubSub fans resource samples out to websocket listeners.
type samplePubSub struct {
	sync.RWMutex
	listeners map[chan<- omicsdash.ResourceSample]closeCh
}

func newSamplePubSub() *samplePubSub {
	return &samplePubSub{
		listeners: make(map[chan<- omicsdash.ResourceSample]closeCh),
	}
}

func (ps *samplePubSub) AddListener(ch chan<- omicsdash.ResourceSample) {
	ps.Lock()
	defer ps.Unlock()
	ps.listeners[ch] = make(closeCh)
}

func (ps *samplePubSub) RemoveListener(ch chan<- omicsdash.ResourceSample) {
	ps.Lock()
	defer ps.Unlock()

	quit, ok := ps.listeners[ch]
	if !ok {
		// Already unsubscribed?
		return
	}
	close(quit)
	delete(ps.listeners, ch)
	close(ch)
}

func (ps *samplePubSub) Publish(s omicsdash.ResourceSample) {
	ps.RLock()
	defer ps.RUnlock()
	for ch, quit := range ps.listeners {
		go func(ch chan<- omicsdash.ResourceSample, quit closeCh) {
			// Wait for either the message to be received or the channel
			// to have been unsubscribed (through closing quit).
			select {
			case <-quit:
			case ch <- s:
			}
		}(ch, quit)
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", a.configHandler)
	mux.HandleFunc("GET /api/status", a.statusHandler)
	mux.HandleFunc("GET /api/resources", a.resourcesHandler)
	mux.HandleFunc("GET /api/stats", a.statsHandler)
	mux.HandleFunc("POST /api/start", a.startHandler)
	mux.HandleFunc("POST /api/reset", a.resetHandler)
	mux.HandleFunc("GET /ws", a.wsHandler)
	return a.logRequests(mux)
}

func (a *app) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("request", "method", r.Method, "url", r.URL, "remoteAddr", r.RemoteAddr)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		handler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *app) configHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Region       string `json:"region"`
		Bucket       string `json:"bucket"`
		StackName    string `json:"stackName"`
		TotalSamples int    `json:"totalSamples"`
		Simulation   bool   `json:"simulation"`
	}{
		Region:       a.cfg.Region,
		Bucket:       a.cfg.Bucket,
		StackName:    a.cfg.StackName,
		TotalSamples: a.cfg.TotalSamples,
		Simulation:   a.simMode,
	})
}

type statusResponse struct {
	Status           omicsdash.RunStatus `json:"status"`
	Message          string              `json:"message"`
	CompletedSamples int                 `json:"completedSamples"`
	TotalSamples     int                 `json:"totalSamples"`
	CostAccrued      float64             `json:"costAccrued"`
}

func (a *app) statusHandler(w http.ResponseWriter, r *http.Request) {
	if a.jobSystemUnavailable() {
		// Never fabricate state: surface unavailability so the client can
		// decide to fall back to its own simulation.
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "job system unreachable"})
		return
	}
	state := a.tracker.State()
	progress := a.tracker.Progress()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           state.Status,
		Message:          state.Message,
		CompletedSamples: progress.Completed,
		TotalSamples:     progress.Total,
		CostAccrued:      a.costEstimate().Total,
	})
}

func (a *app) resourcesHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	sample, ok := a.hist.Latest()
	a.mu.RUnlock()
	if !ok {
		// Nothing collected yet; report the origin of the curve rather
		// than erroring.
		sample = omicsdash.ResourceSample{SampleTime: time.Now()}
	}
	writeJSON(w, http.StatusOK, sample)
}

func (a *app) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, ok := a.tracker.Stats()
	if !ok {
		// Valid "not yet available" result, not an error.
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type ackResponse struct {
	Success bool                `json:"success"`
	RunID   string              `json:"runId,omitempty"`
	Status  omicsdash.RunStatus `json:"status"`
	Message string              `json:"message"`
}

func (a *app) startHandler(w http.ResponseWriter, r *http.Request) {
	state, err := a.tracker.Start(r.Context())
	if errors.Is(err, omicsdash.ErrNotReady) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("cannot start run while %v", state.Status),
		})
		return
	}
	if err != nil {
		slog.Error("failed to start run", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{
		Success: true,
		RunID:   a.tracker.RunID(),
		Status:  state.Status,
		Message: state.Message,
	})
}

func (a *app) resetHandler(w http.ResponseWriter, r *http.Request) {
	a.tracker.Reset(r.Context())
	a.mu.Lock()
	a.hist = omicsdash.NewResourceHistory(historyWindow)
	a.mu.Unlock()
	state := a.tracker.State()
	writeJSON(w, http.StatusOK, ackResponse{
		Success: true,
		Status:  state.Status,
		Message: state.Message,
	})
}

func (a *app) wsHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept ws connection", "err", err)
		return
	}
	defer c.CloseNow() // nolint: errcheck

	ctx, cancel := context.WithTimeout(r.Context(), time.Minute*30)
	defer cancel()

	ctx = c.CloseRead(ctx)

	ch := make(chan omicsdash.ResourceSample)
	a.AddListener(ch)
	defer a.RemoveListener(ch)

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case s := <-ch:
			if err := wsjson.Write(ctx, c, s); err != nil {
				slog.Error("failed to send sample to ws", "err", err)
				return
			}
		}
	}
}

func (a *app) jobSystemUnavailable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unavailable
}

func (a *app) costEstimate() cost.Estimate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cost.ForUsage(a.tracker.Elapsed(), a.hist.CPUHours(), a.hist.GPUHours())
}

// tick polls the job system once, folds the result into the tracker and
// advances the resource history. A poll failure marks the job system
// unavailable until a subsequent poll succeeds.
func (a *app) tick(ctx context.Context) {
	poll, err := a.engine.Poll(ctx)
	if err != nil {
		slog.Error("failed to poll job system", "err", err)
		a.mu.Lock()
		a.unavailable = true
		a.mu.Unlock()
		return
	}
	a.mu.Lock()
	a.unavailable = false
	a.mu.Unlock()

	a.tracker.Apply(*poll)

	state := a.tracker.State()
	runID := a.tracker.RunID()

	if state.Status == omicsdash.StatusRunning {
		sample := a.sim.Sample(a.tracker.Elapsed())
		a.mu.Lock()
		a.hist.Add(sample)
		a.mu.Unlock()
		a.Publish(sample)
		if a.rec != nil {
			if err := a.rec.RecordResourceSample(runID, sample); err != nil {
				slog.Error("failed to record resource sample", "err", err)
			}
		}
	}

	if a.rec != nil && runID != "" {
		startedAt := time.Now().Add(-a.tracker.Elapsed())
		if err := a.rec.RecordRun(runID, state, a.tracker.Progress(), startedAt); err != nil {
			slog.Error("failed to record run", "err", err)
		}
	}

	if state.Status == omicsdash.StatusCompleted {
		if _, ok := a.tracker.Stats(); !ok {
			a.fetchStats(ctx, runID)
		}
	}
}

func (a *app) fetchStats(ctx context.Context, runID string) {
	stats, err := a.engine.FetchStats(ctx)
	switch {
	case errors.Is(err, omicsdash.ErrStatsNotReady):
		// The merge finished but the stats object has not landed yet;
		// distinct from failure, retry on the next tick.
		slog.Debug("stats not published yet")
	case err != nil:
		slog.Warn("failed to fetch stats", "err", err)
	default:
		a.tracker.SetStats(*stats)
		slog.Info("fetched variant stats", "totalVariants", stats.TotalVariants)
		if a.rec != nil && runID != "" {
			if err := a.rec.RecordStats(runID, *stats); err != nil {
				slog.Error("failed to record stats", "err", err)
			}
		}
	}
}

func (a *app) startServer(ctx context.Context) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%v", *httpPort))
	if err != nil {
		slog.Error("failed to open http server", "err", err)
		os.Exit(1)
	}

	go func() {
		fmt.Printf("omicsd listening on http://%v/\n", ln.Addr())
		err := http.Serve(ln, a.routes())
		slog.Debug("server exit", "err", err)
	}()

	// Move the session out of INITIALIZING before the first client call.
	a.tick(ctx)

	ticker := time.NewTicker(*pollRate)
	defer ticker.Stop()
	stopReq := make(chan os.Signal, 1)
	signal.Notify(stopReq, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		select {
		case <-stopReq:
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}
