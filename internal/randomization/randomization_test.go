package randomization

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"labrat/internal/stimuli"
)

func md(condition, name, speaker, origin string) stimuli.Metadata {
	return stimuli.Metadata{
		Filename:  fmt.Sprintf("%s_%s_%s_%s.wav", speaker, origin, name, condition),
		Condition: condition,
		NameStim:  name,
		Speaker:   speaker,
		Origin:    origin,
	}
}

// sortedNames returns the filenames of items in sorted order, for
// permutation comparisons.
func sortedNames(items []stimuli.Metadata) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Filename
	}
	sort.Strings(names)
	return names
}

func TestConstrain_IsPermutation(t *testing.T) {
	var items []stimuli.Metadata
	for i := 0; i < 20; i++ {
		cond := "bra"
		if i%2 == 0 {
			cond = "nob"
		}
		items = append(items, md(cond,
			fmt.Sprintf("name%d", i),
			fmt.Sprintf("s%02d", i%5),
			fmt.Sprintf("origin%d", i%6)))
	}

	got := Constrain(items, rand.New(rand.NewSource(1)))
	if len(got) != len(items) {
		t.Fatalf("Constrain returned %d items, want %d", len(got), len(items))
	}
	if diff := cmp.Diff(sortedNames(items), sortedNames(got)); diff != "" {
		t.Errorf("Constrain is not a permutation (-want +got):\n%s", diff)
	}
}

func TestConstrain_ConditionCapInAcceptedPrefix(t *testing.T) {
	// Five of each condition, everything else unique. The caps admit at
	// most four per condition, so exactly eight stimuli are accepted
	// before the caps dead-end and the remaining two are appended.
	var items []stimuli.Metadata
	for i := 0; i < 5; i++ {
		items = append(items, md("bra", fmt.Sprintf("bn%d", i), fmt.Sprintf("bs%d", i), fmt.Sprintf("bo%d", i)))
		items = append(items, md("nob", fmt.Sprintf("nn%d", i), fmt.Sprintf("ns%d", i), fmt.Sprintf("no%d", i)))
	}

	for seed := int64(0); seed < 5; seed++ {
		got := Constrain(items, rand.New(rand.NewSource(seed)))
		if len(got) != 10 {
			t.Fatalf("seed %d: len = %d, want 10", seed, len(got))
		}

		counts := map[string]int{}
		for _, it := range got[:8] {
			counts[it.Condition]++
		}
		if counts["bra"] != 4 || counts["nob"] != 4 {
			t.Errorf("seed %d: accepted prefix has %v, want 4 bra and 4 nob", seed, counts)
		}
	}
}

func TestConstrain_DeadEndKeepsEverything(t *testing.T) {
	// All the same condition: only four can be accepted, the rest must
	// still come back via the fallback.
	var items []stimuli.Metadata
	for i := 0; i < 9; i++ {
		items = append(items, md("bra", fmt.Sprintf("n%d", i), fmt.Sprintf("s%d", i), fmt.Sprintf("o%d", i)))
	}

	got := Constrain(items, rand.New(rand.NewSource(7)))
	if len(got) != len(items) {
		t.Fatalf("len = %d, want %d", len(got), len(items))
	}
	if diff := cmp.Diff(sortedNames(items), sortedNames(got)); diff != "" {
		t.Errorf("fallback lost stimuli (-want +got):\n%s", diff)
	}
}

func TestConstrain_Deterministic(t *testing.T) {
	var items []stimuli.Metadata
	for i := 0; i < 12; i++ {
		cond := []string{"bra", "nob"}[i%2]
		items = append(items, md(cond, fmt.Sprintf("n%d", i), fmt.Sprintf("s%d", i%4), fmt.Sprintf("o%d", i%3)))
	}

	a := Constrain(items, rand.New(rand.NewSource(99)))
	b := Constrain(items, rand.New(rand.NewSource(99)))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different orders:\n%s", diff)
	}
}

func TestRandomize(t *testing.T) {
	names := []string{
		"gating_s01_g1_01_kanne_bra.wav",
		"gating_s01_g1_02_kanne_nob.wav",
		"gating_s02_g2_03_tasse_bra.wav",
		"gating_s02_g2_04_tasse_nob.wav",
	}

	got, err := Randomize(names, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Randomize: %v", err)
	}

	wantSorted := append([]string(nil), names...)
	sort.Strings(wantSorted)
	gotSorted := append([]string(nil), got...)
	sort.Strings(gotSorted)
	if diff := cmp.Diff(wantSorted, gotSorted); diff != "" {
		t.Errorf("Randomize is not a permutation (-want +got):\n%s", diff)
	}
}

func TestRandomize_MalformedFilename(t *testing.T) {
	if _, err := Randomize([]string{"plain.wav"}, rand.New(rand.NewSource(3))); err == nil {
		t.Error("expected error for malformed filename")
	}
}

func TestListPath(t *testing.T) {
	got := ListPath("/data/randomization_lists", "MU03ENAN", stimuli.PhaseTest)
	want := filepath.Join("/data/randomization_lists", "MU03ENAN", "test_randomized_stimuli.csv")
	if got != want {
		t.Errorf("ListPath = %s, want %s", got, want)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MU03ENAN", "test_randomized_stimuli.csv")
	names := []string{"a.wav", "b.wav", "c.wav"}

	if err := Save(path, names); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if strings.TrimSpace(lines[0]) != "filename" {
		t.Errorf("first line = %q, want header", lines[0])
	}
	if len(lines) != len(names)+1 {
		t.Errorf("file has %d lines, want %d", len(lines), len(names)+1)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing list")
	}
}

func TestEnsureTestList(t *testing.T) {
	home := t.TempDir()
	stimuliDir := filepath.Join(home, "stimuli", "test")
	randomizationDir := filepath.Join(home, "randomization_lists")
	if err := os.MkdirAll(stimuliDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names := []string{
		"gating_s01_g1_01_kanne_bra.wav",
		"gating_s01_g1_02_kanne_nob.wav",
		"gating_s02_g2_03_tasse_bra.wav",
		"gating_s02_g2_04_tasse_nob.wav",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(stimuliDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write stimulus: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(11))

	first, err := EnsureTestList(stimuliDir, randomizationDir, "MU03ENAN", rng, false)
	if err != nil {
		t.Fatalf("EnsureTestList: %v", err)
	}
	if first.Reused {
		t.Error("first call should generate, not reuse")
	}
	if len(first.Stimuli) != len(names) {
		t.Errorf("generated %d stimuli, want %d", len(first.Stimuli), len(names))
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Errorf("list not persisted at %s: %v", first.Path, err)
	}

	// A second call with a different seed must return the persisted order.
	second, err := EnsureTestList(stimuliDir, randomizationDir, "MU03ENAN", rand.New(rand.NewSource(999)), false)
	if err != nil {
		t.Fatalf("EnsureTestList reuse: %v", err)
	}
	if !second.Reused {
		t.Error("second call should reuse the persisted list")
	}
	if diff := cmp.Diff(first.Stimuli, second.Stimuli); diff != "" {
		t.Errorf("reuse changed the order (-first +second):\n%s", diff)
	}

	// Force regenerates.
	forced, err := EnsureTestList(stimuliDir, randomizationDir, "MU03ENAN", rand.New(rand.NewSource(5)), true)
	if err != nil {
		t.Fatalf("EnsureTestList force: %v", err)
	}
	if forced.Reused {
		t.Error("forced call should regenerate")
	}
	if len(forced.Stimuli) != len(names) {
		t.Errorf("forced list has %d stimuli, want %d", len(forced.Stimuli), len(names))
	}
}

func TestEnsureTestList_EmptyInventory(t *testing.T) {
	home := t.TempDir()
	stimuliDir := filepath.Join(home, "stimuli", "test")
	if err := os.MkdirAll(stimuliDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := EnsureTestList(stimuliDir, filepath.Join(home, "randomization_lists"), "MU03ENAN", rand.New(rand.NewSource(1)), false)
	if err == nil {
		t.Error("expected error for an empty stimulus inventory")
	}
}
