package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cloudomics/omicsdash"
	"github.com/cloudomics/omicsdash/awsbatch"
	"github.com/cloudomics/omicsdash/recorder"
	"github.com/cloudomics/omicsdash/sim"
)

// historyWindow bounds the resource sample window: at one sample per poll
// this comfortably covers a full run.
const historyWindow = 512

var configPath = flag.String("config", "omicsd.yaml", "Path to the deployment config file.")
var simMode = flag.Bool("sim", false, "Run against a simulated job system instead of AWS Batch.")
var pollRate = flag.Duration("poll", 5*time.Second, "Job system polling rate.")
var httpPort = flag.Int("port", 8080, "HTTP listen port.")
var record = flag.Bool("record", false, "Record the session to an sqlite db.")
var debug = flag.Bool("debug", false, "Enable debug logging.")
var recordFilename string

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}
	flag.StringVar(&recordFilename, "record-db", homeDir+"/.local/share/omicsdash/sessions.db", "Location of record DB (if enabled).")
}

type app struct {
	cfg     *config
	simMode bool
	tracker *omicsdash.Tracker
	engine  omicsdash.RunEngine
	rec     *recorder.Recorder
	sim     *sim.Simulator

	mu          sync.RWMutex
	hist        *omicsdash.ResourceHistory
	unavailable bool

	*samplePubSub
}

func main() {
	flag.Parse()
	logOpts := slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		logOpts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &logOpts)))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var engine omicsdash.RunEngine
	if *simMode {
		engine = sim.NewEngine(cfg.TotalSamples)
		slog.Info("using simulated job system", "totalSamples", cfg.TotalSamples)
	} else {
		engine, err = awsbatch.New(ctx, awsbatch.Config{
			Region:        cfg.Region,
			StackName:     cfg.StackName,
			Bucket:        cfg.Bucket,
			JobQueue:      cfg.JobQueue,
			JobDefinition: cfg.JobDefinition,
			StatsKey:      cfg.StatsKey,
		})
		if err != nil {
			slog.Error("failed to set up batch engine", "err", err)
			os.Exit(1)
		}
	}

	a := &app{
		cfg:          cfg,
		simMode:      *simMode,
		tracker:      omicsdash.NewTracker(engine, cfg.TotalSamples),
		engine:       engine,
		sim:          sim.New(),
		hist:         omicsdash.NewResourceHistory(historyWindow),
		samplePubSub: newSamplePubSub(),
	}

	if *record {
		a.rec, err = recorder.New(recordFilename)
		if err != nil {
			slog.Error("failed to open record db", "filename", recordFilename, "err", err)
			os.Exit(1)
		}
		defer a.rec.Close()
	}

	a.startServer(ctx)
}
