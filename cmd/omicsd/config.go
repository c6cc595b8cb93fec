package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type config struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	StackName     string `yaml:"stackName"`
	JobQueue      string `yaml:"jobQueue"`
	JobDefinition string `yaml:"jobDefinition"`
	StatsKey      string `yaml:"statsKey"`
	TotalSamples  int    `yaml:"totalSamples"`
}

func defaultConfig() *config {
	return &config{
		Region:       "us-east-1",
		StackName:    "omics-demo",
		TotalSamples: 100,
	}
}

// loadConfig reads the YAML deployment config. A missing file falls back to
// defaults (the simulation path needs no deployment); a file that exists but
// does not parse or validate is a fatal configuration error.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config %v: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", path, err)
	}
	if cfg.TotalSamples <= 0 {
		return nil, fmt.Errorf("config %v: totalSamples must be positive, got %d", path, cfg.TotalSamples)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("config %v: region must not be empty", path)
	}
	return cfg, nil
}
