// Package randomization builds the per-labeler presentation order of the
// test stimuli and persists it, so an interrupted session resumes with the
// exact same order.
//
// The order is not a plain shuffle. After an initial shuffle, stimuli are
// accepted greedily under balance caps computed over everything accepted so
// far: no condition more than 4 times, no stimulus name more than 3 times,
// no speaker more than 3 times, no recording origin more than 4 times. When
// no remaining stimulus satisfies the caps the remainder is appended in
// shuffled order, with a warning. Practice stimuli are never randomized;
// they are presented in inventory order.
package randomization

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"labrat/internal/logging"
	"labrat/internal/stimuli"
)

// Balance caps, counted over the accepted list so far.
const (
	maxPerCondition = 4
	maxPerNameStim  = 3
	maxPerSpeaker   = 3
	maxPerOrigin    = 4
)

// listHeader is the single-column header of a persisted randomization list.
var listHeader = []string{"filename"}

// List is a persisted randomization list for one labeler.
type List struct {
	// LabelerID namespaces the list.
	LabelerID string `json:"labeler_id"`

	// Phase is the experiment phase the list belongs to.
	Phase string `json:"phase"`

	// Path is where the list lives on disk.
	Path string `json:"path"`

	// Stimuli are the filenames in presentation order.
	Stimuli []string `json:"stimuli"`

	// Reused is true when an existing list was loaded instead of generated.
	Reused bool `json:"reused"`
}

// Constrain applies the balance caps to a shuffled copy of items.
// The result is always a permutation of the input: when the caps dead-end,
// the remaining stimuli are appended in shuffled order.
func Constrain(items []stimuli.Metadata, rng *rand.Rand) []stimuli.Metadata {
	remaining := make([]stimuli.Metadata, len(items))
	copy(remaining, items)
	rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})

	accepted := make([]stimuli.Metadata, 0, len(remaining))
	conditionCount := make(map[string]int)
	nameCount := make(map[string]int)
	speakerCount := make(map[string]int)
	originCount := make(map[string]int)

	for len(remaining) > 0 {
		picked := -1
		for i, md := range remaining {
			if conditionCount[md.Condition] < maxPerCondition &&
				nameCount[md.NameStim] < maxPerNameStim &&
				speakerCount[md.Speaker] < maxPerSpeaker &&
				originCount[md.Origin] < maxPerOrigin {
				picked = i
				break
			}
		}
		if picked < 0 {
			logging.RandomizeWarn("Balance caps cannot be satisfied for the %d remaining stimuli; appending them in shuffled order", len(remaining))
			accepted = append(accepted, remaining...)
			break
		}

		md := remaining[picked]
		accepted = append(accepted, md)
		conditionCount[md.Condition]++
		nameCount[md.NameStim]++
		speakerCount[md.Speaker]++
		originCount[md.Origin]++
		remaining = append(remaining[:picked], remaining[picked+1:]...)
	}

	return accepted
}

// Randomize parses the filenames and applies the constrained shuffle,
// returning filenames in presentation order.
func Randomize(filenames []string, rng *rand.Rand) ([]string, error) {
	items, err := stimuli.ParseAll(filenames)
	if err != nil {
		return nil, err
	}

	ordered := Constrain(items, rng)

	out := make([]string, len(ordered))
	for i, md := range ordered {
		out[i] = md.Filename
	}
	return out, nil
}

// ListPath returns the on-disk location of a labeler's randomization list.
func ListPath(randomizationDir, labelerID, phase string) string {
	return filepath.Join(randomizationDir, labelerID, fmt.Sprintf("%s_randomized_stimuli.csv", phase))
}

// Save writes the list to path with a header row, creating the labeler's
// directory as needed.
func Save(path string, filenames []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating randomization directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating randomization list: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(listHeader); err != nil {
		return fmt.Errorf("writing randomization list header: %w", err)
	}
	for _, name := range filenames {
		if err := w.Write([]string{name}); err != nil {
			return fmt.Errorf("writing randomization list: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing randomization list: %w", err)
	}
	return f.Close()
}

// Load reads a persisted list, skipping the header row.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading randomization list %s: %w", path, err)
	}

	var names []string
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) > 0 && row[0] != "" {
			names = append(names, row[0])
		}
	}
	return names, nil
}

// EnsureTestList returns the labeler's test-phase randomization list,
// generating and persisting it on first use. An existing list is reused
// verbatim unless force is set, so re-running never reshuffles a session
// already underway.
func EnsureTestList(testStimuliDir, randomizationDir, labelerID string, rng *rand.Rand, force bool) (*List, error) {
	path := ListPath(randomizationDir, labelerID, stimuli.PhaseTest)

	if !force {
		if _, err := os.Stat(path); err == nil {
			names, err := Load(path)
			if err != nil {
				return nil, err
			}
			logging.Randomize("Reusing randomization list for %s (%d stimuli)", labelerID, len(names))
			return &List{
				LabelerID: labelerID,
				Phase:     stimuli.PhaseTest,
				Path:      path,
				Stimuli:   names,
				Reused:    true,
			}, nil
		}
	}

	inventory, err := stimuli.List(testStimuliDir)
	if err != nil {
		return nil, err
	}
	if len(inventory) == 0 {
		return nil, fmt.Errorf("no stimuli found in %s", testStimuliDir)
	}

	ordered, err := Randomize(inventory, rng)
	if err != nil {
		return nil, err
	}

	if err := Save(path, ordered); err != nil {
		return nil, err
	}

	logging.Randomize("Generated randomization list for %s: %d stimuli -> %s", labelerID, len(ordered), path)
	return &List{
		LabelerID: labelerID,
		Phase:     stimuli.PhaseTest,
		Path:      path,
		Stimuli:   ordered,
		Reused:    false,
	}, nil
}
