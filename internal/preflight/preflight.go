// Package preflight verifies the experiment home before a labeler sits
// down: the directory layout, the entry point and requirements manifest,
// the stimulus inventory, and the Python toolchain.
//
// Preflight is an operator tool. The launch sequence itself gates only on
// the interpreter version; every other problem found here would otherwise
// surface as whatever the experiment process naturally reports.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"labrat/internal/config"
	"labrat/internal/logging"
	"labrat/internal/python"
	"labrat/internal/runner"
	"labrat/internal/stimuli"
)

// Status of a single check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report collects all check outcomes.
type Report struct {
	Checks []CheckResult `json:"checks"`
}

func (r *Report) add(name string, status Status, detail string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Status: status, Detail: detail})
	logging.Audit().PreflightCheck(name, status != StatusFail, detail)
	switch status {
	case StatusFail:
		logging.PreflightWarn("Check failed: %s (%s)", name, detail)
	case StatusWarn:
		logging.PreflightWarn("Check warned: %s (%s)", name, detail)
	default:
		logging.PreflightDebug("Check passed: %s (%s)", name, detail)
	}
}

// Failed reports whether any check failed outright.
func (r *Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Counts returns the number of passed, warned and failed checks.
func (r *Report) Counts() (passed, warned, failed int) {
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			passed++
		case StatusWarn:
			warned++
		case StatusFail:
			failed++
		}
	}
	return
}

// Options adjust a preflight run.
type Options struct {
	// Deep opens every recording and verifies its RIFF/WAVE header.
	Deep bool

	// Runner executes the interpreter probes. Nil means a direct runner.
	Runner runner.Runner
}

// Run executes all preflight checks against the configured experiment home.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Report, error) {
	r := opts.Runner
	if r == nil {
		r = runner.NewDirectRunner()
	}

	report := &Report{}
	logging.Preflight("Preflight starting for %s", cfg.HomeAbs())

	checkFile(report, "experiment entry point", cfg.EntryPointPath())
	checkFile(report, "requirements manifest", cfg.RequirementsPath())

	testOK := checkDir(report, "test stimuli directory", cfg.TestStimuliDir())
	practiceOK := checkDir(report, "practice stimuli directory", cfg.PracticeStimuliDir())
	checkDir(report, "pictogram directory", cfg.PicsDir())

	// The experiment creates these itself; preflight just does it earlier
	// so a fresh home is ready on first launch.
	ensureDir(report, "results directory", cfg.ResultsDir())
	ensureDir(report, "randomization lists directory", cfg.RandomizationDir())

	if testOK {
		checkCount(report, "test stimulus count", cfg.TestStimuliDir(), cfg.Stimuli.ExpectedTestCount)
	}
	if practiceOK {
		checkPracticePresent(report, cfg.PracticeStimuliDir())
	}

	interp := checkInterpreter(ctx, report, r, cfg.Python)
	checkPip(ctx, report, r, interp)

	if opts.Deep {
		if testOK {
			checkIntegrity(ctx, report, "test stimulus integrity", cfg.TestStimuliDir())
		}
		if practiceOK {
			checkIntegrity(ctx, report, "practice stimulus integrity", cfg.PracticeStimuliDir())
		}
	}

	passed, warned, failed := report.Counts()
	logging.Preflight("Preflight finished: %d passed, %d warned, %d failed", passed, warned, failed)
	return report, nil
}

func checkFile(report *Report, name, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		report.add(name, StatusFail, fmt.Sprintf("missing: %s", path))
	case info.IsDir():
		report.add(name, StatusFail, fmt.Sprintf("%s is a directory, expected a file", path))
	default:
		report.add(name, StatusPass, path)
	}
}

func checkDir(report *Report, name, path string) bool {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		report.add(name, StatusFail, fmt.Sprintf("missing: %s", path))
		return false
	case !info.IsDir():
		report.add(name, StatusFail, fmt.Sprintf("%s is not a directory", path))
		return false
	default:
		report.add(name, StatusPass, path)
		return true
	}
}

func ensureDir(report *Report, name, path string) {
	if _, err := os.Stat(path); err == nil {
		report.add(name, StatusPass, path)
		return
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		report.add(name, StatusFail, fmt.Sprintf("cannot create %s: %v", path, err))
		return
	}
	report.add(name, StatusPass, fmt.Sprintf("created %s", path))
}

func checkCount(report *Report, name, dir string, expected int) {
	n, err := stimuli.Count(dir)
	if err != nil {
		report.add(name, StatusFail, err.Error())
		return
	}
	switch {
	case n == expected:
		report.add(name, StatusPass, fmt.Sprintf("%d recordings", n))
	case n == 0:
		report.add(name, StatusFail, fmt.Sprintf("no recordings found, expected %d — place the downloaded stimuli first", expected))
	default:
		report.add(name, StatusWarn, fmt.Sprintf("found %d recordings, expected %d", n, expected))
	}
}

func checkPracticePresent(report *Report, dir string) {
	n, err := stimuli.Count(dir)
	if err != nil {
		report.add("practice stimuli present", StatusFail, err.Error())
		return
	}
	if n == 0 {
		report.add("practice stimuli present", StatusWarn, "practice set is empty")
		return
	}
	report.add("practice stimuli present", StatusPass, fmt.Sprintf("%d recordings", n))
}

func checkInterpreter(ctx context.Context, report *Report, r runner.Runner, cfg config.PythonConfig) *python.Interpreter {
	interp, err := python.Inspect(ctx, r, cfg)
	if err != nil {
		if errors.Is(err, python.ErrInterpreterNotFound) {
			report.add("python interpreter", StatusFail, err.Error())
		} else {
			report.add("python interpreter", StatusFail, fmt.Sprintf("probe failed: %v", err))
		}
		return nil
	}

	if err := interp.Meets(cfg.RequiredVersion); err != nil {
		report.add("python interpreter", StatusFail,
			fmt.Sprintf("%s at %s, required %s", interp.Version.Raw, interp.Path, cfg.RequiredVersion))
		return interp
	}

	report.add("python interpreter", StatusPass, fmt.Sprintf("%s at %s", interp.Version.Raw, interp.Path))
	return interp
}

func checkPip(ctx context.Context, report *Report, r runner.Runner, interp *python.Interpreter) {
	if interp == nil {
		report.add("pip module", StatusWarn, "skipped: no interpreter")
		return
	}
	if python.HasPip(ctx, r, interp.Path) {
		report.add("pip module", StatusPass, "pip responds")
		return
	}
	report.add("pip module", StatusWarn, "pip did not respond; the install step will surface details")
}

func checkIntegrity(ctx context.Context, report *Report, name, dir string) {
	scan, err := stimuli.DeepScan(ctx, dir)
	if err != nil {
		report.add(name, StatusFail, fmt.Sprintf("scan failed: %v", err))
		return
	}
	if scan.OK() {
		report.add(name, StatusPass, fmt.Sprintf("%d recordings verified", scan.Total))
		return
	}

	names := make([]string, 0, len(scan.Bad))
	for i, bad := range scan.Bad {
		if i == 5 {
			names = append(names, fmt.Sprintf("and %d more", len(scan.Bad)-5))
			break
		}
		names = append(names, bad.Name)
	}
	report.add(name, StatusFail, fmt.Sprintf("%d of %d recordings failed verification: %s",
		len(scan.Bad), scan.Total, strings.Join(names, ", ")))
}
