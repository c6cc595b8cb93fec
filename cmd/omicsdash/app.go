package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cloudomics/omicsdash"
	"github.com/cloudomics/omicsdash/cost"
	"github.com/cloudomics/omicsdash/sim"
)

type view int

const (
	viewProgress view = iota
	viewCost
	viewResults
)

const (
	// trendWindow bounds the sparkline history.
	trendWindow = 120
	// peakCPUs normalizes the sparkline against the plateau of the curve.
	peakCPUs = 160
	// fetchTimeout keeps facade calls well inside the 1-second tick.
	fetchTimeout = 900 * time.Millisecond
)

// snapshot is the single unified state all three views render from, so the
// rendering layer never cares whether the data is live or simulated.
type snapshot struct {
	state    omicsdash.RunState
	progress omicsdash.SampleProgress
	cost     cost.Estimate
	latest   omicsdash.ResourceSample
	stats    *omicsdash.VariantStats
}

type model struct {
	client *client
	mode   mode
	banner string
	view   view

	snap    snapshot
	trend   []float64
	progbar progress.Model

	total int

	// local fallback session, constructed on entering simulation mode
	simEngine  *sim.Engine
	simTracker *omicsdash.Tracker
	simulator  *sim.Simulator
	hist       *omicsdash.ResourceHistory

	width, height int
}

type tickMsg struct{}
type snapshotMsg snapshot
type configMsg apiConfig
type startAckMsg apiAck
type fetchErrMsg struct{ err error }

func newModel(c *client, startSimulated bool) model {
	m := model{
		client:    c,
		mode:      modeLive,
		total:     100,
		progbar:   progress.New(progress.WithDefaultGradient()),
		simulator: sim.New(),
		hist:      omicsdash.NewResourceHistory(trendWindow),
		snap: snapshot{
			state: omicsdash.RunState{Status: omicsdash.StatusInitializing, Message: "Connecting to facade..."},
		},
	}
	if startSimulated {
		m = m.enterSimulation("Simulation mode: no facade configured")
	}
	return m
}

// enterSimulation performs the one-way switch to the local fallback session.
// If the live run was in flight when the facade was lost, the local run is
// started immediately so the demo keeps moving.
func (m model) enterSimulation(banner string) model {
	wasRunning := m.snap.state.Status == omicsdash.StatusRunning

	m.mode = modeSimulated
	m.banner = banner
	m.simEngine = sim.NewEngine(m.total)
	m.simTracker = omicsdash.NewTracker(m.simEngine, m.total)

	ctx := context.Background()
	if poll, err := m.simEngine.Poll(ctx); err == nil {
		m.simTracker.Apply(*poll)
	}
	if wasRunning {
		m.simTracker.Start(ctx) // nolint: errcheck
	}
	return m.advanceSim()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd {
	if m.mode == modeSimulated {
		return tick()
	}
	return tea.Batch(m.fetchConfig(), m.fetch(), tick())
}

func (m model) fetchConfig() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		cfg, err := m.client.Config(ctx)
		if err != nil {
			return fetchErrMsg{err}
		}
		return configMsg(*cfg)
	}
}

// fetch reads the facade's four read operations into one snapshot.
func (m model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		st, err := m.client.Status(ctx)
		if err != nil {
			return fetchErrMsg{err}
		}
		res, err := m.client.Resources(ctx)
		if err != nil {
			return fetchErrMsg{err}
		}
		snap := snapshot{
			state:    omicsdash.RunState{Status: st.Status, Message: st.Message},
			progress: omicsdash.SampleProgress{Completed: st.CompletedSamples, Total: st.TotalSamples},
			latest:   *res,
		}
		snap.cost.Total = st.CostAccrued
		if st.Status == omicsdash.StatusCompleted {
			stats, err := m.client.Stats(ctx)
			if err != nil {
				return fetchErrMsg{err}
			}
			snap.stats = stats
		}
		return snapshotMsg(snap)
	}
}

func (m model) startCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		ack, err := m.client.Start(ctx)
		if err != nil {
			return fetchErrMsg{err}
		}
		return startAckMsg(*ack)
	}
}

func (m model) resetCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		ack, err := m.client.Reset(ctx)
		if err != nil {
			return fetchErrMsg{err}
		}
		return startAckMsg(*ack)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if w := m.contentWidth() - 20; w > 10 {
			m.progbar.Width = w
		}
		return m, nil

	case configMsg:
		if msg.TotalSamples > 0 {
			m.total = msg.TotalSamples
		}
		if msg.Simulation {
			// The facade itself runs simulated; never attempt live mode.
			m = m.enterSimulation("Facade is in simulation mode")
		}
		return m, nil

	case tickMsg:
		if m.mode == modeLive {
			return m, tea.Batch(m.fetch(), tick())
		}
		m = m.advanceSim()
		return m, tick()

	case snapshotMsg:
		if m.mode == modeSimulated {
			// A late response from before the fallback; authoritative data
			// is gone for this session, drop it.
			return m, nil
		}
		snap := snapshot(msg)
		if snap.latest.CPUCount > 0 || snap.state.Status == omicsdash.StatusRunning {
			m.hist.Add(snap.latest)
			m.trend = appendTrend(m.trend, snap.latest.CPUCount)
		}
		// Fill in the cost breakdown from the observed curve; the facade's
		// accrued total stays authoritative.
		elapsed := time.Duration(snap.latest.TimeMinutes * float64(time.Minute))
		est := cost.ForUsage(elapsed, m.hist.CPUHours(), m.hist.GPUHours())
		est.Total = snap.cost.Total
		snap.cost = est
		m.snap = snap
		return m, nil

	case startAckMsg:
		if msg.Message != "" {
			m.snap.state = omicsdash.RunState{Status: msg.Status, Message: msg.Message}
		}
		return m, nil

	case fetchErrMsg:
		var ae *apiError
		if errors.As(msg.err, &ae) && ae.status != http.StatusServiceUnavailable {
			// The facade is reachable and rejected the request (e.g. start
			// while not startable); report it without leaving live mode.
			m.banner = ae.Error()
			return m, nil
		}
		if nextMode(m.mode, msg.err) == modeSimulated && m.mode == modeLive {
			m = m.enterSimulation("Facade unreachable: simulated data for the rest of this session")
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.view = (m.view + 1) % 3
			return m, nil
		case "1":
			m.view = viewProgress
			return m, nil
		case "2":
			m.view = viewCost
			return m, nil
		case "3":
			m.view = viewResults
			return m, nil
		case "s":
			if m.mode == modeLive {
				return m, m.startCmd()
			}
			if _, err := m.simTracker.Start(context.Background()); err == nil {
				m = m.advanceSim()
			}
			return m, nil
		case "r":
			if m.mode == modeLive {
				return m, m.resetCmd()
			}
			m.simTracker.Reset(context.Background())
			m.hist = omicsdash.NewResourceHistory(trendWindow)
			m.trend = nil
			m = m.advanceSim()
			return m, nil
		}
	}
	return m, nil
}

// advanceSim moves the local fallback session forward one step from locally
// tracked elapsed time and rebuilds the snapshot.
func (m model) advanceSim() model {
	ctx := context.Background()
	if poll, err := m.simEngine.Poll(ctx); err == nil {
		m.simTracker.Apply(*poll)
	}

	state := m.simTracker.State()
	elapsed := m.simTracker.Elapsed()
	snap := snapshot{
		state:    state,
		progress: m.simTracker.Progress(),
		cost:     cost.ForUsage(elapsed, sim.CPUTimeHours(elapsed), sim.GPUTimeHours(elapsed)),
	}

	if state.Status == omicsdash.StatusRunning {
		sample := m.simulator.Sample(elapsed)
		m.hist.Add(sample)
		m.trend = appendTrend(m.trend, sample.CPUCount)
		snap.latest = sample
	} else if latest, ok := m.hist.Latest(); ok {
		snap.latest = latest
	}

	if state.Status == omicsdash.StatusCompleted {
		if s, ok := m.simTracker.Stats(); ok {
			snap.stats = &s
		} else if fetched, err := m.simEngine.FetchStats(ctx); err == nil {
			m.simTracker.SetStats(*fetched)
			snap.stats = fetched
		}
	}

	m.snap = snap
	return m
}

func appendTrend(trend []float64, cpuCount int) []float64 {
	trend = append(trend, float64(cpuCount)/peakCPUs)
	if len(trend) > trendWindow {
		trend = trend[len(trend)-trendWindow:]
	}
	return trend
}
