package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all labRAT configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Experiment process settings
	Experiment ExperimentConfig `yaml:"experiment"`

	// Python interpreter settings
	Python PythonConfig `yaml:"python"`

	// Stimulus directory layout
	Stimuli StimuliConfig `yaml:"stimuli"`

	// Launch ledger storage
	Ledger LedgerConfig `yaml:"ledger"`

	// Progress watcher settings
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ExperimentConfig configures the experiment entry point and launch behavior.
type ExperimentConfig struct {
	// Home is the experiment root directory containing the entry point,
	// the requirements manifest, and the stimuli/results layout.
	Home string `yaml:"home"`

	// EntryPoint is the experiment script, relative to Home.
	EntryPoint string `yaml:"entry_point"`

	// Requirements is the pip requirements manifest, relative to Home.
	Requirements string `yaml:"requirements"`

	// InstallTimeout bounds the dependency install step.
	InstallTimeout string `yaml:"install_timeout"`

	// LaunchTimeout bounds the experiment process. Empty means unlimited:
	// a labeling session runs for as long as the labeler needs.
	LaunchTimeout string `yaml:"launch_timeout"`

	// PauseOnExit keeps the terminal open until a keypress, so a
	// double-click invocation never vanishes before the operator reads it.
	PauseOnExit bool `yaml:"pause_on_exit"`
}

// PythonConfig configures interpreter discovery and the version gate.
type PythonConfig struct {
	// Binary forces a specific interpreter path. Empty means discover.
	Binary string `yaml:"binary"`

	// Candidates are tried in order when Binary is empty.
	Candidates []string `yaml:"candidates"`

	// RequiredVersion is the major.minor version the gate accepts.
	RequiredVersion string `yaml:"required_version"`

	// DownloadURL is shown to the operator on a version mismatch.
	DownloadURL string `yaml:"download_url"`
}

// StimuliConfig configures the stimulus directory layout, relative to Home.
type StimuliConfig struct {
	TestDir     string `yaml:"test_dir"`
	PracticeDir string `yaml:"practice_dir"`
	PicsDir     string `yaml:"pics_dir"`

	// ExpectedTestCount is the number of audio files the test set must
	// contain after the operator has placed the downloaded stimuli.
	ExpectedTestCount int `yaml:"expected_test_count"`
}

// LedgerConfig configures the SQLite launch ledger.
type LedgerConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig configures the live progress watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
	File  bool   `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "labRAT",
		Version: "1.0.0",

		Experiment: ExperimentConfig{
			Home:           ".",
			EntryPoint:     "dualtask_labeling_experiment.py",
			Requirements:   "requirements.txt",
			InstallTimeout: "15m",
			LaunchTimeout:  "",
			PauseOnExit:    true,
		},

		Python: PythonConfig{
			Candidates:      []string{"python", "python3"},
			RequiredVersion: "3.10",
			DownloadURL:     "https://www.python.org/downloads/release/python-31011/",
		},

		Stimuli: StimuliConfig{
			TestDir:           "stimuli/test",
			PracticeDir:       "stimuli/practice",
			PicsDir:           "pics",
			ExpectedTestCount: 2400,
		},

		Ledger: LedgerConfig{
			DatabasePath: ".labrat/labrat.db",
		},

		Watch: WatchConfig{
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".labrat/logs",
			File:  false,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "labrat.yaml"
	}
	return filepath.Join(cwd, "labrat.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if home := os.Getenv("LABRAT_HOME"); home != "" {
		c.Experiment.Home = home
	}
	if bin := os.Getenv("LABRAT_PYTHON"); bin != "" {
		c.Python.Binary = bin
	}
	if ver := os.Getenv("LABRAT_REQUIRED_PYTHON"); ver != "" {
		c.Python.RequiredVersion = ver
	}
	if path := os.Getenv("LABRAT_DB"); path != "" {
		c.Ledger.DatabasePath = path
	}
	if dir := os.Getenv("LABRAT_LOG_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
	if count := os.Getenv("LABRAT_EXPECTED_TEST_COUNT"); count != "" {
		if n, err := strconv.Atoi(count); err == nil && n > 0 {
			c.Stimuli.ExpectedTestCount = n
		}
	}
}

// HomeAbs returns the experiment home as an absolute path.
func (c *Config) HomeAbs() string {
	abs, err := filepath.Abs(c.Experiment.Home)
	if err != nil {
		return c.Experiment.Home
	}
	return abs
}

// EntryPointPath returns the absolute path of the experiment script.
func (c *Config) EntryPointPath() string {
	return filepath.Join(c.HomeAbs(), c.Experiment.EntryPoint)
}

// RequirementsPath returns the absolute path of the requirements manifest.
func (c *Config) RequirementsPath() string {
	return filepath.Join(c.HomeAbs(), c.Experiment.Requirements)
}

// TestStimuliDir returns the absolute path of the test stimulus set.
func (c *Config) TestStimuliDir() string {
	return filepath.Join(c.HomeAbs(), c.Stimuli.TestDir)
}

// PracticeStimuliDir returns the absolute path of the practice stimulus set.
func (c *Config) PracticeStimuliDir() string {
	return filepath.Join(c.HomeAbs(), c.Stimuli.PracticeDir)
}

// PicsDir returns the absolute path of the pictogram directory.
func (c *Config) PicsDir() string {
	return filepath.Join(c.HomeAbs(), c.Stimuli.PicsDir)
}

// ResultsDir returns the absolute path of the results tree.
func (c *Config) ResultsDir() string {
	return filepath.Join(c.HomeAbs(), "results")
}

// RandomizationDir returns the absolute path of the randomization list tree.
func (c *Config) RandomizationDir() string {
	return filepath.Join(c.HomeAbs(), "randomization_lists")
}

// DataDir returns the labRAT state directory under the experiment home.
func (c *Config) DataDir() string {
	return filepath.Join(c.HomeAbs(), ".labrat")
}

// LedgerPath returns the launch ledger database path, anchored at Home
// when configured relative.
func (c *Config) LedgerPath() string {
	if filepath.IsAbs(c.Ledger.DatabasePath) {
		return c.Ledger.DatabasePath
	}
	return filepath.Join(c.HomeAbs(), c.Ledger.DatabasePath)
}

// LogDir returns the log directory, anchored at Home when configured relative.
func (c *Config) LogDir() string {
	if filepath.IsAbs(c.Logging.Dir) {
		return c.Logging.Dir
	}
	return filepath.Join(c.HomeAbs(), c.Logging.Dir)
}

// GetInstallTimeout returns the dependency install timeout as a duration.
func (c *Config) GetInstallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Experiment.InstallTimeout)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetLaunchTimeout returns the experiment timeout as a duration.
// Zero means no deadline: the session runs until the labeler is done.
func (c *Config) GetLaunchTimeout() time.Duration {
	if c.Experiment.LaunchTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Experiment.LaunchTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetWatchDebounce returns the watcher debounce window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Experiment.EntryPoint == "" {
		return fmt.Errorf("experiment entry point not configured")
	}
	if c.Experiment.Requirements == "" {
		return fmt.Errorf("requirements manifest not configured")
	}
	if err := validateVersion(c.Python.RequiredVersion); err != nil {
		return err
	}
	if c.Python.Binary == "" && len(c.Python.Candidates) == 0 {
		return fmt.Errorf("no python interpreter configured (set python.binary or python.candidates)")
	}
	if c.Stimuli.ExpectedTestCount <= 0 {
		return fmt.Errorf("expected_test_count must be positive, got %d", c.Stimuli.ExpectedTestCount)
	}
	return nil
}

// validateVersion checks that a required version is a major.minor pair.
func validateVersion(v string) error {
	parts := strings.Split(v, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid required python version %q (want major.minor, e.g. 3.10)", v)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid required python version %q (want major.minor, e.g. 3.10)", v)
		}
	}
	return nil
}
