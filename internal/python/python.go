// Package python locates the interpreter that runs the labeling experiment
// and interrogates its version. The launcher gates on the reported version
// before anything is installed or launched, so the probe has to be reliable
// across interpreter vintages and platforms.
package python

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"labrat/internal/config"
	"labrat/internal/logging"
	"labrat/internal/runner"
)

// probeTimeout bounds the --version and pip probes. A healthy interpreter
// answers in milliseconds; anything slower is stuck.
const probeTimeout = 15 * time.Second

var (
	// ErrInterpreterNotFound means no usable Python binary was located.
	ErrInterpreterNotFound = errors.New("no python interpreter found")

	// ErrVersionMismatch means the located interpreter does not match the
	// required major.minor version.
	ErrVersionMismatch = errors.New("python version mismatch")
)

// =============================================================================
// VERSION PARSING
// =============================================================================

// versionPattern matches `python --version` output such as "Python 3.10.11".
var versionPattern = regexp.MustCompile(`Python\s+(\d+)\.(\d+)(?:\.(\d+))?`)

// Version is a parsed interpreter version.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
	Raw   string `json:"raw"` // e.g. "Python 3.10.11"
}

// ParseVersion extracts a Version from `python --version` output.
func ParseVersion(output string) (Version, error) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return Version{}, fmt.Errorf("unrecognized version output: %q", strings.TrimSpace(output))
	}

	v := Version{Raw: strings.TrimSpace(m[0])}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// String returns the dotted form, e.g. "3.10.11".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MajorMinor returns the feature-release form, e.g. "3.10".
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MatchesMinor reports whether the version matches required exactly at the
// major.minor level. The comparison is numeric: "3.1" does not match 3.10.
func (v Version) MatchesMinor(required string) bool {
	major, minor, err := splitRequired(required)
	if err != nil {
		return false
	}
	return v.Major == major && v.Minor == minor
}

func splitRequired(required string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(required), ".")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("required version %q must be major.minor", required)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("required version %q must be major.minor", required)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("required version %q must be major.minor", required)
	}
	return major, minor, nil
}

// =============================================================================
// INTERPRETER DISCOVERY
// =============================================================================

// Interpreter is a located and probed Python binary.
type Interpreter struct {
	// Path is the resolved path to the binary.
	Path string `json:"path"`

	// Version is the version the interpreter reported.
	Version Version `json:"version"`
}

// Find locates the interpreter binary. An explicit Binary in the config wins;
// otherwise the candidates are tried in order on PATH.
func Find(cfg config.PythonConfig) (string, error) {
	if cfg.Binary != "" {
		path, err := exec.LookPath(cfg.Binary)
		if err != nil {
			return "", fmt.Errorf("%w: configured binary %q: %v", ErrInterpreterNotFound, cfg.Binary, err)
		}
		logging.Python("Using configured interpreter: %s", path)
		return path, nil
	}

	candidates := cfg.Candidates
	if len(candidates) == 0 {
		candidates = []string{"python", "python3"}
	}

	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			logging.PythonDebug("Candidate %q not on PATH", candidate)
			continue
		}
		logging.Python("Found interpreter %q at %s", candidate, path)
		return path, nil
	}

	return "", fmt.Errorf("%w: tried %s", ErrInterpreterNotFound, strings.Join(candidates, ", "))
}

// Probe runs `<path> --version` and parses the reported version.
// Interpreters up to 3.3 printed the version banner to stderr, so both
// streams are checked.
func Probe(ctx context.Context, r runner.Runner, path string) (*Interpreter, error) {
	res, err := r.Execute(ctx, runner.Command{
		Binary:    path,
		Arguments: []string{"--version"},
		Timeout:   probeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("version probe failed: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("version probe failed: %s", res.Error)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("version probe exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output()))
	}

	out := res.Stdout
	if !versionPattern.MatchString(out) {
		out = res.Stderr
	}

	version, err := ParseVersion(out)
	if err != nil {
		return nil, fmt.Errorf("version probe: %w", err)
	}

	logging.Python("Interpreter %s reports %s", path, version.Raw)
	return &Interpreter{Path: path, Version: version}, nil
}

// Inspect finds the interpreter and probes its version in one step.
func Inspect(ctx context.Context, r runner.Runner, cfg config.PythonConfig) (*Interpreter, error) {
	path, err := Find(cfg)
	if err != nil {
		return nil, err
	}
	return Probe(ctx, r, path)
}

// Meets checks the interpreter against the required major.minor version.
// On mismatch the returned error wraps ErrVersionMismatch and names both
// versions.
func (i *Interpreter) Meets(required string) error {
	if i.Version.MatchesMinor(required) {
		return nil
	}
	return fmt.Errorf("%w: found %s, need %s", ErrVersionMismatch, i.Version.Raw, required)
}

// =============================================================================
// PIP PROBE
// =============================================================================

// HasPip reports whether the interpreter can run its bundled pip module.
// Used by preflight only; the install step itself just invokes pip and lets
// its output speak.
func HasPip(ctx context.Context, r runner.Runner, path string) bool {
	res, err := r.Execute(ctx, runner.Command{
		Binary:    path,
		Arguments: []string{"-m", "pip", "--version"},
		Timeout:   probeTimeout,
	})
	if err != nil || res.IsError() {
		return false
	}
	return res.ExitCode == 0
}
