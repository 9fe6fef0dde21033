package daemon

import (
	"path/filepath"
	"testing"

	"firestige.xyz/sniffer/internal/config"
)

func TestBuildSinks(t *testing.T) {
	cfg := config.ReportConfig{
		Sinks: []string{"console", " File "},
		Path:  filepath.Join(t.TempDir(), "report.txt"),
	}
	sinks, err := buildSinks(cfg)
	if err != nil {
		t.Fatalf("buildSinks: %v", err)
	}
	defer closeSinks(sinks)
	if len(sinks) != 2 {
		t.Fatalf("got %d sinks, want 2", len(sinks))
	}
}

func TestBuildSinks_Unknown(t *testing.T) {
	cfg := config.ReportConfig{
		Sinks: []string{"console", "carrier-pigeon"},
	}
	if _, err := buildSinks(cfg); err == nil {
		t.Error("expected error for unknown sink")
	}
}

func TestBuildSinks_FileWithoutPath(t *testing.T) {
	cfg := config.ReportConfig{Sinks: []string{"file"}}
	if _, err := buildSinks(cfg); err == nil {
		t.Error("expected error for file sink without path")
	}
}
