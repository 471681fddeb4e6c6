// Package session reads the files a labeling session leaves behind: the
// per-trial results CSV, the progress files, the pictogram order, and the
// practice-done flag. labRAT never writes any of these; the experiment
// process owns them. Everything here is read-only reporting for the
// operator.
package session

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"labrat/internal/logging"
	"labrat/internal/randomization"
	"labrat/internal/stimuli"
)

// ResultColumns is the schema of the per-trial results CSV, in order.
var ResultColumns = []string{
	"experiment", "labelerID", "date", "trial", "phase", "response",
	"response_condition", "accuracy", "braPic_position", "nobPic_position",
	"recording_processed", "recording_nr_repetitions", "recording_speaker",
	"recording_name_stim", "recording_condition", "recording_experiment",
	"recording_origin", "recording_trial", "start_time", "end_time",
	"duration",
}

// TrialRecord is one labeled trial from the results CSV. Fields stay as the
// strings the experiment wrote; nothing here is interpreted beyond display.
type TrialRecord struct {
	Experiment         string
	LabelerID          string
	Date               string
	Trial              string
	Phase              string
	Response           string
	ResponseCondition  string
	Accuracy           string
	BraPicPosition     string
	NobPicPosition     string
	RecordingProcessed string
	Repetitions        string
	Speaker            string
	NameStim           string
	Condition          string
	RecordingExp       string
	Origin             string
	RecordingTrial     string
	StartTime          string
	EndTime            string
	Duration           string
}

// PictogramPlacement is one row of the pictogram order file.
type PictogramPlacement struct {
	Pictogram string
	PositionX float64
	PositionY float64
	Label     string
}

// =============================================================================
// FILE LOCATIONS
// =============================================================================

// Dir returns a labeler's results directory.
func Dir(resultsDir, labelerID string) string {
	return filepath.Join(resultsDir, labelerID)
}

// ResultsPath returns a labeler's results CSV location.
func ResultsPath(resultsDir, labelerID string) string {
	return filepath.Join(resultsDir, labelerID, fmt.Sprintf("%s_results.csv", labelerID))
}

// ProgressPath returns a labeler's progress file for a phase.
func ProgressPath(resultsDir, labelerID, phase string) string {
	return filepath.Join(resultsDir, labelerID, fmt.Sprintf("%s_%s_progress.csv", labelerID, phase))
}

// PictogramOrderPath returns a labeler's pictogram order file.
func PictogramOrderPath(resultsDir, labelerID string) string {
	return filepath.Join(resultsDir, labelerID, fmt.Sprintf("%s_pictogram_order.csv", labelerID))
}

// PracticeDoneFlagPath returns the practice completion flag location.
func PracticeDoneFlagPath(resultsDir, labelerID string) string {
	return filepath.Join(resultsDir, labelerID, "practice_done.txt")
}

// =============================================================================
// READERS
// =============================================================================

// LoadProgress returns the stimulus filenames already labeled. Progress
// files have no header: every row's first column is a filename. A missing
// file means no progress yet, not an error.
func LoadProgress(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading progress file %s: %w", path, err)
	}

	var names []string
	for _, row := range rows {
		if len(row) > 0 && row[0] != "" {
			names = append(names, row[0])
		}
	}
	return names, nil
}

// PracticeDone reports whether the labeler finished the practice phase.
func PracticeDone(resultsDir, labelerID string) bool {
	_, err := os.Stat(PracticeDoneFlagPath(resultsDir, labelerID))
	return err == nil
}

// ReadResults parses a labeler's results CSV. Rows with the wrong column
// count are skipped with a warning rather than failing the whole read; a
// session interrupted mid-write can leave a ragged final row.
func ReadResults(path string) ([]TrialRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading results %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var records []TrialRecord
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < len(ResultColumns) {
			logging.SessionDebug("Skipping short row %d in %s (%d columns)", i+1, path, len(row))
			continue
		}
		records = append(records, TrialRecord{
			Experiment:         row[0],
			LabelerID:          row[1],
			Date:               row[2],
			Trial:              row[3],
			Phase:              row[4],
			Response:           row[5],
			ResponseCondition:  row[6],
			Accuracy:           row[7],
			BraPicPosition:     row[8],
			NobPicPosition:     row[9],
			RecordingProcessed: row[10],
			Repetitions:        row[11],
			Speaker:            row[12],
			NameStim:           row[13],
			Condition:          row[14],
			RecordingExp:       row[15],
			Origin:             row[16],
			RecordingTrial:     row[17],
			StartTime:          row[18],
			EndTime:            row[19],
			Duration:           row[20],
		})
	}
	return records, nil
}

// LoadPictogramOrder parses a labeler's pictogram order file.
func LoadPictogramOrder(path string) ([]PictogramPlacement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading pictogram order %s: %w", path, err)
	}

	var placements []PictogramPlacement
	for i, row := range rows {
		if i == 0 {
			continue // header: Pictogram,PositionX,PositionY,Label
		}
		if len(row) < 4 {
			continue
		}
		x, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("pictogram order %s row %d: bad PositionX %q", path, i+1, row[1])
		}
		y, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("pictogram order %s row %d: bad PositionY %q", path, i+1, row[2])
		}
		placements = append(placements, PictogramPlacement{
			Pictogram: row[0],
			PositionX: x,
			PositionY: y,
			Label:     row[3],
		})
	}
	return placements, nil
}

// =============================================================================
// SESSION SUMMARIES
// =============================================================================

// Summary is the operator-facing state of one labeler's session.
type Summary struct {
	LabelerID string

	// PracticeDone is true once the practice phase flag exists.
	PracticeDone bool

	// PracticeLabeled counts practice stimuli already labeled.
	PracticeLabeled int

	// TestTotal is the length of the persisted randomization list,
	// zero when no list exists yet.
	TestTotal int

	// TestLabeled counts test stimuli already labeled.
	TestLabeled int

	// ResultRows counts recorded trials across both phases.
	ResultRows int

	// Complete is true when every test stimulus has been labeled.
	Complete bool

	// LastActivity is the newest modification time under the labeler's
	// results directory; zero when nothing exists yet.
	LastActivity time.Time
}

// Labelers enumerates labeler IDs that left traces in the results or
// randomization trees, sorted.
func Labelers(resultsDir, randomizationDir string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range []string{resultsDir, randomizationDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// BuildSummary assembles the session state for one labeler.
func BuildSummary(resultsDir, randomizationDir, labelerID string) (*Summary, error) {
	s := &Summary{LabelerID: labelerID}

	s.PracticeDone = PracticeDone(resultsDir, labelerID)

	practice, err := LoadProgress(ProgressPath(resultsDir, labelerID, stimuli.PhasePractice))
	if err != nil {
		return nil, err
	}
	s.PracticeLabeled = len(practice)

	test, err := LoadProgress(ProgressPath(resultsDir, labelerID, stimuli.PhaseTest))
	if err != nil {
		return nil, err
	}
	s.TestLabeled = len(test)

	listPath := randomization.ListPath(randomizationDir, labelerID, stimuli.PhaseTest)
	if _, err := os.Stat(listPath); err == nil {
		names, err := randomization.Load(listPath)
		if err != nil {
			return nil, err
		}
		s.TestTotal = len(names)
	}

	records, err := ReadResults(ResultsPath(resultsDir, labelerID))
	if err != nil {
		return nil, err
	}
	s.ResultRows = len(records)

	s.Complete = s.TestTotal > 0 && s.TestLabeled >= s.TestTotal
	s.LastActivity = newestModTime(Dir(resultsDir, labelerID))

	logging.Session("Summary for %s: practice %d (done=%v), test %d/%d, %d result rows",
		labelerID, s.PracticeLabeled, s.PracticeDone, s.TestLabeled, s.TestTotal, s.ResultRows)
	return s, nil
}

// newestModTime returns the newest file modification time under dir,
// or the zero time when dir does not exist.
func newestModTime(dir string) time.Time {
	var newest time.Time
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest
}
