// Package launcher runs the session launch sequence: verify the Python
// version, install the declared dependencies, start the experiment.
//
// The sequence is linear and single-pass. The version gate is the only check
// that can stop it; a failing install or a crashing experiment surfaces
// through the subprocess's own output, and the experiment's exit status is
// recorded but never interpreted. The terminal pauses for a keypress on the
// mismatch path and on the completion path, because lab machines start the
// launcher by double-click and the console window would otherwise close
// before anyone can read it.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"labrat/internal/config"
	"labrat/internal/logging"
	"labrat/internal/python"
	"labrat/internal/runner"
	"labrat/internal/store"
)

// Options configure a Launcher. Zero-value fields fall back to the real
// environment: a direct runner, os.Stdin and os.Stdout, no ledger.
type Options struct {
	Runner runner.Runner
	Ledger *store.Ledger
	Stdin  io.Reader
	Stdout io.Writer
}

// Launcher drives one launch sequence.
type Launcher struct {
	cfg    *config.Config
	runner runner.Runner
	ledger *store.Ledger
	stdin  io.Reader
	stdout io.Writer
}

// New creates a Launcher for the given configuration.
func New(cfg *config.Config, opts Options) *Launcher {
	l := &Launcher{
		cfg:    cfg,
		runner: opts.Runner,
		ledger: opts.Ledger,
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
	}
	if l.runner == nil {
		rc := runner.DefaultRunnerConfig()
		rc.DefaultWorkingDir = cfg.HomeAbs()
		l.runner = runner.NewDirectRunnerWithConfig(rc)
	}
	if l.stdin == nil {
		l.stdin = os.Stdin
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	return l
}

// Run executes the launch sequence once. The returned error is non-nil only
// when the sequence halted before the experiment could start: a version
// mismatch or an unusable interpreter. A failing install or a non-zero
// experiment exit never produces an error.
func (l *Launcher) Run(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryLauncher, "Launch sequence")
	defer timer.StopWithInfo()

	home := l.cfg.HomeAbs()

	launchID := ""
	if l.ledger != nil {
		if launch, err := l.ledger.BeginLaunch(home, ""); err == nil {
			launchID = launch.ID
		} else {
			logging.LauncherWarn("Launch not recorded in ledger: %v", err)
		}
	}
	audit := logging.AuditWithLaunch(launchID)
	audit.LaunchStart(home)
	logging.Launcher("Launch sequence started: home=%s", home)

	interp, err := l.checkVersion(ctx, audit, launchID)
	if err != nil {
		outcome := store.OutcomeFailed
		if errors.Is(err, python.ErrVersionMismatch) {
			outcome = store.OutcomeHalted
		}
		audit.LaunchAbort(err.Error())
		l.finish(launchID, outcome, err.Error())
		l.pause()
		return err
	}

	l.installDependencies(ctx, audit, launchID, interp)

	if l.launchExperiment(ctx, audit, launchID, interp) {
		l.finish(launchID, store.OutcomeCompleted, "")
	} else {
		l.finish(launchID, store.OutcomeFailed, "experiment process could not be started")
	}

	fmt.Fprintln(l.stdout)
	fmt.Fprintln(l.stdout, "Session closed.")
	l.pause()
	return nil
}

// checkVersion locates the interpreter and applies the version gate. On a
// mismatch the operator message names the required version and where to
// download it, and the sequence stops before anything is installed or run.
func (l *Launcher) checkVersion(ctx context.Context, audit *logging.AuditLogger, launchID string) (*python.Interpreter, error) {
	required := l.cfg.Python.RequiredVersion

	fmt.Fprintf(l.stdout, "Checking Python version (need %s)...\n", required)

	interp, err := python.Inspect(ctx, l.runner, l.cfg.Python)
	if err != nil {
		audit.VersionCheck("", required, false)
		l.recordVersion(launchID, "", "", false)
		fmt.Fprintf(l.stdout, "Could not determine the Python version: %v\n", err)
		fmt.Fprintf(l.stdout, "Install Python %s from:\n  %s\n", required, l.cfg.Python.DownloadURL)
		return nil, err
	}

	if err := interp.Meets(required); err != nil {
		audit.VersionCheck(interp.Version.Raw, required, false)
		l.recordVersion(launchID, interp.Path, interp.Version.Raw, false)
		logging.LauncherWarn("Version gate failed: found %s, need %s", interp.Version.Raw, required)
		fmt.Fprintln(l.stdout)
		fmt.Fprintf(l.stdout, "This experiment requires Python %s.\n", required)
		fmt.Fprintf(l.stdout, "Found %s at %s.\n", interp.Version.Raw, interp.Path)
		fmt.Fprintf(l.stdout, "Download Python %s from:\n  %s\n", required, l.cfg.Python.DownloadURL)
		return nil, err
	}

	audit.VersionCheck(interp.Version.Raw, required, true)
	l.recordVersion(launchID, interp.Path, interp.Version.Raw, true)
	fmt.Fprintf(l.stdout, "Found %s at %s.\n", interp.Version.Raw, interp.Path)
	return interp, nil
}

// installDependencies runs pip against the requirements manifest. The step
// runs on every launch; pip itself makes re-runs a no-op. Whatever pip
// prints is the operator's feedback, and a failure here does not stop the
// sequence.
func (l *Launcher) installDependencies(ctx context.Context, audit *logging.AuditLogger, launchID string, interp *python.Interpreter) {
	manifest := l.cfg.Experiment.Requirements

	fmt.Fprintln(l.stdout)
	fmt.Fprintf(l.stdout, "Installing dependencies (pip install -r %s)...\n", manifest)

	res, err := l.runner.Execute(ctx, runner.Command{
		Binary:           interp.Path,
		Arguments:        []string{"-m", "pip", "install", "-r", manifest},
		WorkingDirectory: l.cfg.HomeAbs(),
		Timeout:          l.cfg.GetInstallTimeout(),
		Stream:           true,
		LaunchID:         launchID,
	})
	if err != nil {
		fmt.Fprintf(l.stdout, "Dependency install could not run: %v\n", err)
		logging.LauncherError("Install step failed to execute: %v", err)
		audit.Install(manifest, 0, -1)
		l.recordInstall(launchID, -1, 0)
		return
	}
	if res.IsError() {
		fmt.Fprintf(l.stdout, "Dependency install could not run: %s\n", res.Error)
		logging.LauncherError("Install step infrastructure failure: %s", res.Error)
		audit.Install(manifest, res.Duration.Milliseconds(), res.ExitCode)
		l.recordInstall(launchID, res.ExitCode, res.Duration)
		return
	}

	audit.Install(manifest, res.Duration.Milliseconds(), res.ExitCode)
	l.recordInstall(launchID, res.ExitCode, res.Duration)
	if res.ExitCode != 0 {
		fmt.Fprintf(l.stdout, "pip exited with code %d; continuing.\n", res.ExitCode)
		logging.LauncherWarn("pip install exited %d", res.ExitCode)
	}
}

// launchExperiment starts the experiment entry point with no arguments and
// waits for it to finish. The exit status goes into the ledger and audit
// trail; nothing branches on it. Returns false only when the process could
// not be started at all.
func (l *Launcher) launchExperiment(ctx context.Context, audit *logging.AuditLogger, launchID string, interp *python.Interpreter) bool {
	entry := l.cfg.Experiment.EntryPoint

	fmt.Fprintln(l.stdout)
	fmt.Fprintf(l.stdout, "Starting the experiment (%s)...\n", entry)
	fmt.Fprintln(l.stdout, strings.Repeat("─", 50))

	res, err := l.runner.Execute(ctx, runner.Command{
		Binary:           interp.Path,
		Arguments:        []string{entry},
		WorkingDirectory: l.cfg.HomeAbs(),
		Timeout:          l.cfg.GetLaunchTimeout(),
		Stream:           true,
		LaunchID:         launchID,
	})
	if err != nil {
		fmt.Fprintf(l.stdout, "The experiment could not be started: %v\n", err)
		logging.LauncherError("Experiment failed to start: %v", err)
		return false
	}
	if res.IsError() {
		fmt.Fprintf(l.stdout, "The experiment could not be started: %s\n", res.Error)
		logging.LauncherError("Experiment failed to start: %s", res.Error)
		l.recordExperiment(launchID, res.ExitCode, res.Duration)
		return false
	}

	fmt.Fprintln(l.stdout, strings.Repeat("─", 50))
	audit.ExperimentDone(entry, res.Duration.Milliseconds(), res.ExitCode)
	l.recordExperiment(launchID, res.ExitCode, res.Duration)
	logging.Launcher("Experiment process finished after %s (exit recorded, not interpreted)", res.Duration)
	return true
}

// pause keeps the window open until the operator presses Enter.
func (l *Launcher) pause() {
	if !l.cfg.Experiment.PauseOnExit {
		return
	}
	fmt.Fprint(l.stdout, "\nPress Enter to close this window...")
	reader := bufio.NewReader(l.stdin)
	_, _ = reader.ReadString('\n')
}

// =============================================================================
// LEDGER BOOKKEEPING
// =============================================================================

func (l *Launcher) recordVersion(launchID, path, version string, ok bool) {
	if l.ledger == nil || launchID == "" {
		return
	}
	if err := l.ledger.RecordVersionCheck(launchID, path, version, ok); err != nil {
		logging.LauncherWarn("Ledger write failed: %v", err)
	}
}

func (l *Launcher) recordInstall(launchID string, exitCode int, d time.Duration) {
	if l.ledger == nil || launchID == "" {
		return
	}
	if err := l.ledger.RecordInstall(launchID, exitCode, d); err != nil {
		logging.LauncherWarn("Ledger write failed: %v", err)
	}
}

func (l *Launcher) recordExperiment(launchID string, exitCode int, d time.Duration) {
	if l.ledger == nil || launchID == "" {
		return
	}
	if err := l.ledger.RecordExperiment(launchID, exitCode, d); err != nil {
		logging.LauncherWarn("Ledger write failed: %v", err)
	}
}

func (l *Launcher) finish(launchID, outcome, reason string) {
	if l.ledger == nil || launchID == "" {
		return
	}
	if err := l.ledger.FinishLaunch(launchID, outcome, reason); err != nil {
		logging.LauncherWarn("Ledger write failed: %v", err)
	}
}
