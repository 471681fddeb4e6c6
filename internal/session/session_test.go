package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"labrat/internal/stimuli"
)

const labeler = "MU03ENAN"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func resultsHeader() string {
	return strings.Join(ResultColumns, ",")
}

func sampleResultRow(trial, phase, processed string) string {
	return strings.Join([]string{
		"labeling_experiment", labeler, "2026-08-01 10:00", trial, phase,
		"left", "nob", "1", "right", "left", processed, "0", "s01",
		"kanne_bra", "bra", "gating", "gating_g1", "01",
		"10:00:00", "10:00:30", "00:00:30",
	}, ",")
}

func TestPaths(t *testing.T) {
	resultsDir := "/data/results"

	tests := []struct {
		got  string
		want string
	}{
		{ResultsPath(resultsDir, labeler), "/data/results/MU03ENAN/MU03ENAN_results.csv"},
		{ProgressPath(resultsDir, labeler, stimuli.PhaseTest), "/data/results/MU03ENAN/MU03ENAN_test_progress.csv"},
		{ProgressPath(resultsDir, labeler, stimuli.PhasePractice), "/data/results/MU03ENAN/MU03ENAN_practice_progress.csv"},
		{PictogramOrderPath(resultsDir, labeler), "/data/results/MU03ENAN/MU03ENAN_pictogram_order.csv"},
		{PracticeDoneFlagPath(resultsDir, labeler), "/data/results/MU03ENAN/practice_done.txt"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("path = %s, want %s", tt.got, tt.want)
		}
	}
}

func TestLoadProgress(t *testing.T) {
	dir := t.TempDir()

	// Missing file means no progress, not an error.
	names, err := LoadProgress(filepath.Join(dir, "absent.csv"))
	if err != nil {
		t.Fatalf("LoadProgress missing: %v", err)
	}
	if names != nil {
		t.Errorf("LoadProgress missing = %v, want nil", names)
	}

	path := filepath.Join(dir, "progress.csv")
	writeFile(t, path, "a.wav\nb.wav\nc.wav\n")

	names, err = LoadProgress(path)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	want := []string{"a.wav", "b.wav", "c.wav"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("LoadProgress = %v, want %v", names, want)
	}
}

func TestPracticeDone(t *testing.T) {
	resultsDir := t.TempDir()

	if PracticeDone(resultsDir, labeler) {
		t.Error("PracticeDone without flag file")
	}

	writeFile(t, PracticeDoneFlagPath(resultsDir, labeler), "done")
	if !PracticeDone(resultsDir, labeler) {
		t.Error("PracticeDone should see the flag file")
	}
}

func TestReadResults(t *testing.T) {
	resultsDir := t.TempDir()
	path := ResultsPath(resultsDir, labeler)

	content := resultsHeader() + "\n" +
		sampleResultRow("1", "practice", "p1.wav") + "\n" +
		sampleResultRow("2", "test", "gating_s01_g1_01_kanne_bra.wav") + "\n" +
		"ragged,row\n"
	writeFile(t, path, content)

	records, err := ReadResults(path)
	if err != nil {
		t.Fatalf("ReadResults: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (ragged row skipped)", len(records))
	}

	r := records[1]
	if r.LabelerID != labeler {
		t.Errorf("LabelerID = %s", r.LabelerID)
	}
	if r.Phase != "test" || r.Trial != "2" {
		t.Errorf("Phase/Trial = %s/%s", r.Phase, r.Trial)
	}
	if r.RecordingProcessed != "gating_s01_g1_01_kanne_bra.wav" {
		t.Errorf("RecordingProcessed = %s", r.RecordingProcessed)
	}
	if r.Condition != "bra" || r.Duration != "00:00:30" {
		t.Errorf("Condition/Duration = %s/%s", r.Condition, r.Duration)
	}
}

func TestReadResults_Missing(t *testing.T) {
	records, err := ReadResults(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("ReadResults missing: %v", err)
	}
	if records != nil {
		t.Errorf("ReadResults missing = %v, want nil", records)
	}
}

func TestLoadPictogramOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.csv")
	writeFile(t, path,
		"Pictogram,PositionX,PositionY,Label\n"+
			"pics/no_bracket.png,-0.65,0,left\n"+
			"pics/bracket.png,0.65,0,right\n")

	placements, err := LoadPictogramOrder(path)
	if err != nil {
		t.Fatalf("LoadPictogramOrder: %v", err)
	}
	if len(placements) != 2 {
		t.Fatalf("got %d placements, want 2", len(placements))
	}
	if placements[0].Pictogram != "pics/no_bracket.png" || placements[0].PositionX != -0.65 {
		t.Errorf("placement[0] = %+v", placements[0])
	}
	if placements[1].Label != "right" {
		t.Errorf("placement[1] = %+v", placements[1])
	}

	bad := filepath.Join(dir, "bad.csv")
	writeFile(t, bad, "Pictogram,PositionX,PositionY,Label\npic.png,not-a-number,0,left\n")
	if _, err := LoadPictogramOrder(bad); err == nil {
		t.Error("expected error for unparseable position")
	}
}

func TestLabelers(t *testing.T) {
	home := t.TempDir()
	resultsDir := filepath.Join(home, "results")
	randomizationDir := filepath.Join(home, "randomization_lists")

	writeFile(t, filepath.Join(resultsDir, "AA01AAAA", "x.txt"), "x")
	writeFile(t, filepath.Join(resultsDir, "BB02BBBB", "x.txt"), "x")
	// A labeler with a randomization list but no results yet.
	writeFile(t, filepath.Join(randomizationDir, "CC03CCCC", "test_randomized_stimuli.csv"), "filename\n")
	// Loose files are not labelers.
	writeFile(t, filepath.Join(resultsDir, "stray.csv"), "x")

	ids, err := Labelers(resultsDir, randomizationDir)
	if err != nil {
		t.Fatalf("Labelers: %v", err)
	}
	want := []string{"AA01AAAA", "BB02BBBB", "CC03CCCC"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Labelers = %v, want %v", ids, want)
	}
}

func TestLabelers_NothingYet(t *testing.T) {
	home := t.TempDir()
	ids, err := Labelers(filepath.Join(home, "results"), filepath.Join(home, "randomization_lists"))
	if err != nil {
		t.Fatalf("Labelers: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Labelers = %v, want empty", ids)
	}
}

func TestBuildSummary(t *testing.T) {
	home := t.TempDir()
	resultsDir := filepath.Join(home, "results")
	randomizationDir := filepath.Join(home, "randomization_lists")

	// Randomization list with three test stimuli.
	writeFile(t, filepath.Join(randomizationDir, labeler, "test_randomized_stimuli.csv"),
		"filename\na.wav\nb.wav\nc.wav\n")

	// Two of three labeled, practice finished.
	writeFile(t, ProgressPath(resultsDir, labeler, stimuli.PhaseTest), "a.wav\nb.wav\n")
	writeFile(t, ProgressPath(resultsDir, labeler, stimuli.PhasePractice), "p1.wav\n")
	writeFile(t, PracticeDoneFlagPath(resultsDir, labeler), "done")
	writeFile(t, ResultsPath(resultsDir, labeler),
		resultsHeader()+"\n"+sampleResultRow("1", "test", "a.wav")+"\n"+sampleResultRow("2", "test", "b.wav")+"\n")

	s, err := BuildSummary(resultsDir, randomizationDir, labeler)
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}

	if !s.PracticeDone || s.PracticeLabeled != 1 {
		t.Errorf("practice state = done=%v labeled=%d", s.PracticeDone, s.PracticeLabeled)
	}
	if s.TestTotal != 3 || s.TestLabeled != 2 {
		t.Errorf("test state = %d/%d, want 2/3", s.TestLabeled, s.TestTotal)
	}
	if s.ResultRows != 2 {
		t.Errorf("ResultRows = %d, want 2", s.ResultRows)
	}
	if s.Complete {
		t.Error("session should not be complete at 2/3")
	}
	if s.LastActivity.IsZero() {
		t.Error("LastActivity should be set")
	}

	// Label the third stimulus: now complete.
	writeFile(t, ProgressPath(resultsDir, labeler, stimuli.PhaseTest), "a.wav\nb.wav\nc.wav\n")
	s, err = BuildSummary(resultsDir, randomizationDir, labeler)
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if !s.Complete {
		t.Errorf("session should be complete at 3/3, got %+v", s)
	}
}

func TestBuildSummary_FreshLabeler(t *testing.T) {
	home := t.TempDir()
	s, err := BuildSummary(filepath.Join(home, "results"), filepath.Join(home, "randomization_lists"), labeler)
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if s.TestTotal != 0 || s.TestLabeled != 0 || s.Complete || s.PracticeDone {
		t.Errorf("fresh labeler summary = %+v, want all zero", s)
	}
	if !s.LastActivity.IsZero() {
		t.Errorf("LastActivity = %v, want zero", s.LastActivity)
	}
}
