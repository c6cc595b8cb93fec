package main

import (
	"os"
	"path"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := path.Join(t.TempDir(), "omicsd.yaml")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return p
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(path.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Region != "us-east-1" || cfg.StackName != "omics-demo" || cfg.TotalSamples != 100 {
		t.Errorf("defaults: got %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
region: us-west-2
bucket: my-bucket
stackName: my-stack
jobQueue: my-queue
totalSamples: 50
`)
	cfg, err := loadConfig(p)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Region != "us-west-2" || cfg.Bucket != "my-bucket" || cfg.TotalSamples != 50 {
		t.Errorf("config: got %+v", cfg)
	}
	// Fields absent from the file keep their defaults.
	if cfg.StackName != "my-stack" {
		t.Errorf("stackName: got %v", cfg.StackName)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	p := writeConfig(t, "region: us-east-1\nbuckett: typo\n")
	if _, err := loadConfig(p); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{name: "zero samples", contents: "totalSamples: 0\n"},
		{name: "negative samples", contents: "totalSamples: -5\n"},
		{name: "empty region", contents: "region: \"\"\n"},
		{name: "not yaml", contents: "{{{\n"},
	} {
		p := writeConfig(t, tc.contents)
		if _, err := loadConfig(p); err == nil {
			t.Errorf("%v: expected error but got none", tc.name)
		}
	}
}
