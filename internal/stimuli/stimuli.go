// Package stimuli handles the audio stimulus sets of the labeling experiment:
// discovering recordings on disk, decoding the metadata packed into their
// filenames, and verifying the inventory the experiment expects.
//
// Stimulus filenames carry their metadata in underscore-separated fields.
// Three layouts are in circulation, distinguished by substring:
//
//	single: <exp>_<speaker>_<o1>_<o2>_<trial>_<name...>_<condition>.wav
//	gating: <exp>_<speaker>_<o2>_<trial>_<name...>_<condition>.wav
//	default: <exp>_<speaker>_<o1>_<o2>_<o3>_<o4>_<trial>_<name...>_<condition>.wav
//
// The condition is always the last field with the extension stripped.
package stimuli

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Experiment phases a stimulus set belongs to.
const (
	PhasePractice = "practice"
	PhaseTest     = "test"
)

// Metadata is the information encoded in a stimulus filename. The
// randomization constraints and the per-trial result rows are built from
// these fields.
type Metadata struct {
	// Filename is the bare filename the metadata was parsed from.
	Filename string `json:"filename"`

	// Experiment is the producing experiment, e.g. "single" or "gating".
	Experiment string `json:"experiment"`

	// Speaker identifies the recorded speaker.
	Speaker string `json:"speaker"`

	// Trial is the trial number within the producing experiment.
	Trial string `json:"trial"`

	// Origin identifies the recording session the stimulus came from.
	Origin string `json:"origin"`

	// NameStim is the stimulus name, e.g. the word that was produced.
	NameStim string `json:"name_stim"`

	// Condition is the prosodic condition to be labeled ("bra" or "nob").
	Condition string `json:"condition"`
}

// Parse decodes the metadata fields from a stimulus filename.
func Parse(filename string) (Metadata, error) {
	parts := strings.Split(filename, "_")
	md := Metadata{Filename: filename}

	switch {
	case strings.Contains(filename, "single"):
		if len(parts) < 5 {
			return md, layoutErr(filename, "single", 5, len(parts))
		}
		md.Experiment = parts[0]
		md.Speaker = parts[1]
		md.Trial = parts[4]
		md.Origin = parts[2] + "_" + parts[3]
		md.NameStim = stripExt(strings.Join(parts[5:], "_"))

	case strings.Contains(filename, "gating"):
		if len(parts) < 4 {
			return md, layoutErr(filename, "gating", 4, len(parts))
		}
		md.Experiment = parts[0]
		md.Speaker = parts[1]
		md.Trial = parts[3]
		md.Origin = parts[0] + "_" + parts[2]
		md.NameStim = stripExt(strings.Join(parts[4:], "_"))

	default:
		if len(parts) < 7 {
			return md, layoutErr(filename, "default", 7, len(parts))
		}
		md.Experiment = parts[0]
		md.Speaker = parts[1]
		md.Trial = parts[6]
		md.Origin = strings.Join(parts[2:6], "_")
		md.NameStim = stripExt(strings.Join(parts[7:], "_"))
	}

	md.Condition = stripExt(parts[len(parts)-1])
	return md, nil
}

// ParseAll decodes a batch of filenames, failing on the first bad one.
func ParseAll(filenames []string) ([]Metadata, error) {
	out := make([]Metadata, 0, len(filenames))
	for _, name := range filenames {
		md, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, nil
}

func layoutErr(filename, layout string, want, got int) error {
	return fmt.Errorf("stimulus %q does not fit the %s layout: need at least %d underscore fields, got %d",
		filename, layout, want, got)
}

// stripExt cuts the filename at the first ".wav", matching how result rows
// and randomization lists have always recorded these fields.
func stripExt(s string) string {
	before, _, _ := strings.Cut(s, ".wav")
	return before
}

// List returns the bare filenames of all .wav recordings under dir,
// descending into speaker subdirectories. The result is sorted so repeated
// runs see the same inventory order.
func List(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".wav") {
			names = append(names, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing stimuli in %s: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of .wav recordings under dir.
func Count(dir string) (int, error) {
	names, err := List(dir)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Filter returns the stimuli not yet present in labeled, preserving order.
// Used to resume a session where the labeler left off.
func Filter(stimuli, labeled []string) []string {
	if len(labeled) == 0 {
		return stimuli
	}
	seen := make(map[string]struct{}, len(labeled))
	for _, name := range labeled {
		seen[name] = struct{}{}
	}
	var remaining []string
	for _, name := range stimuli {
		if _, ok := seen[name]; !ok {
			remaining = append(remaining, name)
		}
	}
	return remaining
}
