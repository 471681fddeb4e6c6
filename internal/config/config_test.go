package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "labRAT" {
		t.Errorf("expected Name=labRAT, got %s", cfg.Name)
	}
	if cfg.Python.RequiredVersion != "3.10" {
		t.Errorf("expected RequiredVersion=3.10, got %s", cfg.Python.RequiredVersion)
	}
	if cfg.Stimuli.ExpectedTestCount != 2400 {
		t.Errorf("expected ExpectedTestCount=2400, got %d", cfg.Stimuli.ExpectedTestCount)
	}
	if !cfg.Experiment.PauseOnExit {
		t.Error("expected PauseOnExit=true by default")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "labrat.yaml")

	cfg := DefaultConfig()
	cfg.Experiment.Home = "/srv/experiment"
	cfg.Python.RequiredVersion = "3.11"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Experiment.Home != "/srv/experiment" {
		t.Errorf("expected Home=/srv/experiment, got %s", loaded.Experiment.Home)
	}
	if loaded.Python.RequiredVersion != "3.11" {
		t.Errorf("expected RequiredVersion=3.11, got %s", loaded.Python.RequiredVersion)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error, got: %v", err)
	}
	if cfg.Python.RequiredVersion != "3.10" {
		t.Errorf("expected default RequiredVersion=3.10, got %s", cfg.Python.RequiredVersion)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LABRAT_HOME", "/data/lab")
	t.Setenv("LABRAT_PYTHON", "/opt/py310/bin/python")
	t.Setenv("LABRAT_EXPECTED_TEST_COUNT", "1200")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Experiment.Home != "/data/lab" {
		t.Errorf("expected Home=/data/lab, got %s", cfg.Experiment.Home)
	}
	if cfg.Python.Binary != "/opt/py310/bin/python" {
		t.Errorf("expected Binary override, got %s", cfg.Python.Binary)
	}
	if cfg.Stimuli.ExpectedTestCount != 1200 {
		t.Errorf("expected ExpectedTestCount=1200, got %d", cfg.Stimuli.ExpectedTestCount)
	}
}

func TestConfig_EnvOverrideIgnoresBadCount(t *testing.T) {
	t.Setenv("LABRAT_EXPECTED_TEST_COUNT", "not-a-number")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Stimuli.ExpectedTestCount != 2400 {
		t.Errorf("bad env count should be ignored, got %d", cfg.Stimuli.ExpectedTestCount)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}

	cfg.Python.RequiredVersion = "3"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for version without minor")
	}

	cfg.Python.RequiredVersion = "3.ten"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for non-numeric version")
	}

	cfg = DefaultConfig()
	cfg.Stimuli.ExpectedTestCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero expected count")
	}

	cfg = DefaultConfig()
	cfg.Python.Binary = ""
	cfg.Python.Candidates = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error with no interpreter configured")
	}
}

func TestConfig_PathHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Experiment.Home = t.TempDir()

	if got := cfg.TestStimuliDir(); got != filepath.Join(cfg.Experiment.Home, "stimuli", "test") {
		t.Errorf("TestStimuliDir=%q", got)
	}
	if got := cfg.ResultsDir(); got != filepath.Join(cfg.Experiment.Home, "results") {
		t.Errorf("ResultsDir=%q", got)
	}
	if got := cfg.LedgerPath(); got != filepath.Join(cfg.Experiment.Home, ".labrat", "labrat.db") {
		t.Errorf("LedgerPath=%q", got)
	}

	cfg.Ledger.DatabasePath = "/var/lib/labrat.db"
	if got := cfg.LedgerPath(); got != "/var/lib/labrat.db" {
		t.Errorf("absolute LedgerPath=%q", got)
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.GetInstallTimeout(); got != 15*time.Minute {
		t.Errorf("GetInstallTimeout=%v, want 15m", got)
	}
	if got := cfg.GetLaunchTimeout(); got != 0 {
		t.Errorf("GetLaunchTimeout=%v, want 0 (unlimited)", got)
	}
	if got := cfg.GetWatchDebounce(); got != 500*time.Millisecond {
		t.Errorf("GetWatchDebounce=%v, want 500ms", got)
	}

	cfg.Experiment.LaunchTimeout = "2h"
	if got := cfg.GetLaunchTimeout(); got != 2*time.Hour {
		t.Errorf("GetLaunchTimeout=%v, want 2h", got)
	}

	cfg.Watch.Debounce = "garbage"
	if got := cfg.GetWatchDebounce(); got != 500*time.Millisecond {
		t.Errorf("GetWatchDebounce fallback=%v, want 500ms", got)
	}
}

func TestConfig_SaveCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir", "labrat.yaml")

	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved config missing: %v", err)
	}
}
