package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	apiBase  string
	simMode  bool
	debugLog string
)

func init() {
	flag.StringVar(&apiBase, "api", "http://localhost:8080", "Base URL of the orchestration facade.")
	flag.BoolVar(&simMode, "sim", false, "Skip the facade entirely and run a local simulated session.")
	flag.StringVar(&debugLog, "debug-log", "", "Write debug logs to this file. The terminal belongs to the dashboard.")
}

func main() {
	flag.Parse()

	logOut := io.Writer(io.Discard)
	if debugLog != "" {
		f, err := os.OpenFile(debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to open debug log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})))

	m := newModel(newClient(apiBase), simMode)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard error:", err)
		os.Exit(1)
	}
}
