package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "labrat.db")
	ledger, err := NewLedger(dbPath)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestLedger_BeginLaunch(t *testing.T) {
	ledger := newTestLedger(t)

	launch, err := ledger.BeginLaunch("/exp/home", "MU03ENAN")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}

	if launch.ID == "" {
		t.Error("Expected a generated launch id")
	}
	if launch.Outcome != OutcomeStarted {
		t.Errorf("Expected outcome %q, got %q", OutcomeStarted, launch.Outcome)
	}
	if launch.StartedAt.IsZero() {
		t.Error("Expected a start timestamp")
	}

	stored, err := ledger.GetLaunch(launch.ID)
	if err != nil {
		t.Fatalf("Failed to read launch back: %v", err)
	}
	if stored.Home != "/exp/home" {
		t.Errorf("Expected home /exp/home, got %s", stored.Home)
	}
	if stored.LabelerID != "MU03ENAN" {
		t.Errorf("Expected labeler MU03ENAN, got %s", stored.LabelerID)
	}
	if stored.Finished() {
		t.Error("Expected launch to still be open")
	}
	if stored.InstallExitCode != nil || stored.ExperimentExitCode != nil {
		t.Error("Expected no exit codes before any step has run")
	}
}

func TestLedger_FullLifecycle(t *testing.T) {
	ledger := newTestLedger(t)

	launch, err := ledger.BeginLaunch("/exp/home", "MU03ENAN")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}

	if err := ledger.RecordVersionCheck(launch.ID, "/usr/bin/python3", "3.10.11", true); err != nil {
		t.Fatalf("Failed to record version check: %v", err)
	}
	if err := ledger.RecordInstall(launch.ID, 0, 3*time.Second); err != nil {
		t.Fatalf("Failed to record install: %v", err)
	}
	// A non-zero experiment exit is recorded like any other value.
	if err := ledger.RecordExperiment(launch.ID, 1, 90*time.Second); err != nil {
		t.Fatalf("Failed to record experiment: %v", err)
	}
	if err := ledger.FinishLaunch(launch.ID, OutcomeCompleted, ""); err != nil {
		t.Fatalf("Failed to finish launch: %v", err)
	}

	stored, err := ledger.GetLaunch(launch.ID)
	if err != nil {
		t.Fatalf("Failed to read launch back: %v", err)
	}

	if stored.PythonPath != "/usr/bin/python3" {
		t.Errorf("Expected python path /usr/bin/python3, got %s", stored.PythonPath)
	}
	if stored.PythonVersion != "3.10.11" {
		t.Errorf("Expected python version 3.10.11, got %s", stored.PythonVersion)
	}
	if !stored.VersionOK {
		t.Error("Expected version_ok to be recorded")
	}
	if stored.InstallExitCode == nil || *stored.InstallExitCode != 0 {
		t.Errorf("Expected install exit code 0, got %v", stored.InstallExitCode)
	}
	if stored.InstallDuration != 3*time.Second {
		t.Errorf("Expected install duration 3s, got %v", stored.InstallDuration)
	}
	if stored.ExperimentExitCode == nil || *stored.ExperimentExitCode != 1 {
		t.Errorf("Expected experiment exit code 1, got %v", stored.ExperimentExitCode)
	}
	if stored.ExperimentDuration != 90*time.Second {
		t.Errorf("Expected experiment duration 90s, got %v", stored.ExperimentDuration)
	}
	if stored.Outcome != OutcomeCompleted {
		t.Errorf("Expected outcome %q, got %q", OutcomeCompleted, stored.Outcome)
	}
	if !stored.Finished() {
		t.Error("Expected launch to be finished")
	}
}

func TestLedger_HaltedLaunch(t *testing.T) {
	ledger := newTestLedger(t)

	launch, err := ledger.BeginLaunch("/exp/home", "")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}

	if err := ledger.RecordVersionCheck(launch.ID, "/usr/bin/python3", "3.9.7", false); err != nil {
		t.Fatalf("Failed to record version check: %v", err)
	}
	if err := ledger.FinishLaunch(launch.ID, OutcomeHalted, "python version mismatch: found 3.9.7, need 3.10"); err != nil {
		t.Fatalf("Failed to finish launch: %v", err)
	}

	stored, err := ledger.GetLaunch(launch.ID)
	if err != nil {
		t.Fatalf("Failed to read launch back: %v", err)
	}

	if stored.Outcome != OutcomeHalted {
		t.Errorf("Expected outcome %q, got %q", OutcomeHalted, stored.Outcome)
	}
	if stored.HaltReason == "" {
		t.Error("Expected a halt reason")
	}
	if stored.VersionOK {
		t.Error("Expected version_ok false")
	}
	if stored.InstallExitCode != nil {
		t.Error("Expected no install exit code on a halted launch")
	}
	if stored.ExperimentExitCode != nil {
		t.Error("Expected no experiment exit code on a halted launch")
	}
	if stored.LabelerID != "" {
		t.Errorf("Expected empty labeler id, got %s", stored.LabelerID)
	}
}

func TestLedger_RecentLaunchesNewestFirst(t *testing.T) {
	ledger := newTestLedger(t)

	var ids []string
	for i := 0; i < 3; i++ {
		launch, err := ledger.BeginLaunch("/exp/home", "MU03ENAN")
		if err != nil {
			t.Fatalf("Failed to begin launch %d: %v", i, err)
		}
		ids = append(ids, launch.ID)
		time.Sleep(5 * time.Millisecond)
	}

	launches, err := ledger.RecentLaunches(10)
	if err != nil {
		t.Fatalf("Failed to list launches: %v", err)
	}
	if len(launches) != 3 {
		t.Fatalf("Expected 3 launches, got %d", len(launches))
	}

	// Newest first
	for i := 0; i < 3; i++ {
		want := ids[len(ids)-1-i]
		if launches[i].ID != want {
			t.Errorf("Position %d: expected launch %s, got %s", i, want, launches[i].ID)
		}
	}
	for i := 1; i < len(launches); i++ {
		if launches[i].StartedAt.After(launches[i-1].StartedAt) {
			t.Errorf("Launches out of order at position %d", i)
		}
	}
}

func TestLedger_RecentLaunchesLimit(t *testing.T) {
	ledger := newTestLedger(t)

	for i := 0; i < 5; i++ {
		if _, err := ledger.BeginLaunch("/exp/home", ""); err != nil {
			t.Fatalf("Failed to begin launch %d: %v", i, err)
		}
	}

	launches, err := ledger.RecentLaunches(2)
	if err != nil {
		t.Fatalf("Failed to list launches: %v", err)
	}
	if len(launches) != 2 {
		t.Errorf("Expected 2 launches with limit 2, got %d", len(launches))
	}

	// Non-positive limit falls back to the default
	launches, err = ledger.RecentLaunches(0)
	if err != nil {
		t.Fatalf("Failed to list launches: %v", err)
	}
	if len(launches) != 5 {
		t.Errorf("Expected all 5 launches with default limit, got %d", len(launches))
	}
}

func TestLedger_LabelerLaunches(t *testing.T) {
	ledger := newTestLedger(t)

	for _, labeler := range []string{"MU03ENAN", "SC31INKA", "MU03ENAN"} {
		if _, err := ledger.BeginLaunch("/exp/home", labeler); err != nil {
			t.Fatalf("Failed to begin launch for %s: %v", labeler, err)
		}
	}

	launches, err := ledger.LabelerLaunches("MU03ENAN", 10)
	if err != nil {
		t.Fatalf("Failed to list labeler launches: %v", err)
	}
	if len(launches) != 2 {
		t.Fatalf("Expected 2 launches for MU03ENAN, got %d", len(launches))
	}
	for _, la := range launches {
		if la.LabelerID != "MU03ENAN" {
			t.Errorf("Expected labeler MU03ENAN, got %s", la.LabelerID)
		}
	}
}

func TestLedger_GetLaunchMissing(t *testing.T) {
	ledger := newTestLedger(t)

	if _, err := ledger.GetLaunch("no-such-id"); err == nil {
		t.Error("Expected an error for an unknown launch id")
	}
}

func TestLedger_GetStats(t *testing.T) {
	ledger := newTestLedger(t)

	a, err := ledger.BeginLaunch("/exp/home", "")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}
	b, err := ledger.BeginLaunch("/exp/home", "")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}
	if _, err := ledger.BeginLaunch("/exp/home", ""); err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}

	if err := ledger.FinishLaunch(a.ID, OutcomeCompleted, ""); err != nil {
		t.Fatalf("Failed to finish launch: %v", err)
	}
	if err := ledger.FinishLaunch(b.ID, OutcomeHalted, "version mismatch"); err != nil {
		t.Fatalf("Failed to finish launch: %v", err)
	}

	stats, err := ledger.GetStats()
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}

	if stats["total"] != 3 {
		t.Errorf("Expected total 3, got %d", stats["total"])
	}
	if stats[OutcomeCompleted] != 1 {
		t.Errorf("Expected 1 completed, got %d", stats[OutcomeCompleted])
	}
	if stats[OutcomeHalted] != 1 {
		t.Errorf("Expected 1 halted, got %d", stats[OutcomeHalted])
	}
	if stats[OutcomeStarted] != 1 {
		t.Errorf("Expected 1 started, got %d", stats[OutcomeStarted])
	}
}

func TestLedger_ReopenPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "labrat.db")

	ledger, err := NewLedger(dbPath)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	launch, err := ledger.BeginLaunch("/exp/home", "MU03ENAN")
	if err != nil {
		t.Fatalf("Failed to begin launch: %v", err)
	}
	if err := ledger.FinishLaunch(launch.ID, OutcomeCompleted, ""); err != nil {
		t.Fatalf("Failed to finish launch: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Failed to close ledger: %v", err)
	}

	reopened, err := NewLedger(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen ledger: %v", err)
	}
	defer reopened.Close()

	stored, err := reopened.GetLaunch(launch.ID)
	if err != nil {
		t.Fatalf("Failed to read launch after reopen: %v", err)
	}
	if stored.Outcome != OutcomeCompleted {
		t.Errorf("Expected outcome %q after reopen, got %q", OutcomeCompleted, stored.Outcome)
	}
}
