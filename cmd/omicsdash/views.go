package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cloudomics/omicsdash"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57")).Padding(0, 1)
	badgeLive   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("40")).Padding(0, 1)
	badgeSim    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	moneyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	trendStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	statusColors = map[omicsdash.RunStatus]lipgloss.Style{
		omicsdash.StatusInitializing: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		omicsdash.StatusReady:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		omicsdash.StatusRunning:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		omicsdash.StatusCompleted:    lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true),
		omicsdash.StatusFailed:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	switch m.view {
	case viewCost:
		b.WriteString(m.costView())
	case viewResults:
		b.WriteString(m.resultsView())
	default:
		b.WriteString(m.progressView())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab/1-3 views · s start · r reset · q quit"))
	return b.String()
}

func (m model) headerView() string {
	badge := badgeLive.Render("LIVE")
	if m.mode == modeSimulated {
		badge = badgeSim.Render("SIMULATED")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("OMICS DEMO"), " ", badge)
	if m.banner != "" {
		header += "\n" + bannerStyle.Render(m.banner)
	}
	return header
}

func (m model) progressView() string {
	barWidth := m.contentWidth() - 20
	if barWidth < 10 {
		barWidth = 10
	}

	st := m.snap.state
	statusLine := statusColors[st.Status].Render(string(st.Status))
	if st.Message != "" {
		statusLine += valueStyle.Render("  " + st.Message)
	}

	var frac float64
	if m.snap.progress.Total > 0 {
		frac = float64(m.snap.progress.Completed) / float64(m.snap.progress.Total)
	}
	progressLine := fmt.Sprintf("%s %3d/%d samples",
		m.progbar.ViewAs(frac), m.snap.progress.Completed, m.snap.progress.Total)

	s := m.snap.latest
	rows := []string{
		labelStyle.Render("Status") + statusLine,
		labelStyle.Render("Samples") + progressLine,
		"",
		labelStyle.Render("vCPUs") + valueStyle.Render(fmt.Sprintf("%d", s.CPUCount)),
		labelStyle.Render("CPU trend") + trendStyle.Render(spark(m.trend, barWidth)),
		labelStyle.Render("CPU util") + fmt.Sprintf("%s %5.1f%%", bar(s.CPUUtilization/100, barWidth), s.CPUUtilization),
		labelStyle.Render("Memory util") + fmt.Sprintf("%s %5.1f%%", bar(s.MemoryUtilization/100, barWidth), s.MemoryUtilization),
		labelStyle.Render("GPU util") + fmt.Sprintf("%s %5.1f%%", bar(s.GPUUtilization/100, barWidth), s.GPUUtilization),
		"",
		labelStyle.Render("Elapsed") + valueStyle.Render(fmt.Sprintf("%.1f min", s.TimeMinutes)),
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func (m model) costView() string {
	c := m.snap.cost
	rows := []string{
		labelStyle.Render("Compute") + moneyStyle.Render(fmt.Sprintf("$%8.4f", c.Compute)),
		labelStyle.Render("Storage") + moneyStyle.Render(fmt.Sprintf("$%8.4f", c.Storage)),
		labelStyle.Render("Transfer") + moneyStyle.Render(fmt.Sprintf("$%8.4f", c.Transfer)),
		strings.Repeat("─", 24),
		labelStyle.Render("Total") + moneyStyle.Render(fmt.Sprintf("$%8.4f", c.Total)),
		"",
		helpStyle.Render("On-demand spot pricing, accrued for this run."),
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func (m model) resultsView() string {
	if m.snap.stats == nil {
		waiting := "Variant statistics are published after the merge step completes."
		if m.snap.state.Status == omicsdash.StatusCompleted {
			waiting = "Run complete, retrieving variant statistics..."
		}
		return boxStyle.Render(helpStyle.Render(waiting))
	}
	st := m.snap.stats
	rows := []string{
		labelStyle.Render("Variants") + valueStyle.Render(fmt.Sprintf("%d", st.TotalVariants)),
		labelStyle.Render("Transitions") + valueStyle.Render(fmt.Sprintf("%d", st.Transitions)),
		labelStyle.Render("Transversions") + valueStyle.Render(fmt.Sprintf("%d", st.Transversions)),
		labelStyle.Render("Ts/Tv ratio") + valueStyle.Render(fmt.Sprintf("%.3f", st.TiTvRatio)),
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func (m model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	if m.width > 100 {
		return 100
	}
	return m.width
}
