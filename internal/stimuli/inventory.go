package stimuli

// Physical verification of the stimulus inventory. The listing in stimuli.go
// trusts filenames; the deep scan opens every recording and checks the
// RIFF/WAVE signature, so a truncated or mislabeled download is caught before
// a labeler sits down.

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"labrat/internal/logging"

	"golang.org/x/sync/errgroup"
)

// BadStimulus is a recording that failed verification.
type BadStimulus struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ScanReport summarizes a deep scan of a stimulus directory.
type ScanReport struct {
	// Total is the number of recordings examined.
	Total int `json:"total"`

	// Bad lists the recordings that failed verification, sorted by name.
	Bad []BadStimulus `json:"bad,omitempty"`
}

// OK reports whether every recording passed.
func (r *ScanReport) OK() bool {
	return len(r.Bad) == 0
}

// VerifyWAV checks that the file at path starts with a RIFF/WAVE header.
func VerifyWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return fmt.Errorf("too short for a WAVE header: %w", err)
	}
	if string(header[0:4]) != "RIFF" {
		return fmt.Errorf("missing RIFF signature")
	}
	if string(header[8:12]) != "WAVE" {
		return fmt.Errorf("missing WAVE signature")
	}
	return nil
}

// DeepScan verifies every .wav recording under dir concurrently.
// A bad recording is a finding in the report, not a scan failure; the scan
// itself only fails on I/O problems walking the tree or on cancellation.
func DeepScan(ctx context.Context, dir string) (*ScanReport, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".wav") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	report := &ScanReport{Total: len(paths)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if err := VerifyWAV(path); err != nil {
				mu.Lock()
				report.Bad = append(report.Bad, BadStimulus{
					Name:   filepath.Base(path),
					Reason: err.Error(),
				})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Bad, func(i, j int) bool {
		return report.Bad[i].Name < report.Bad[j].Name
	})

	logging.Preflight("Deep scan of %s: %d recordings, %d bad", dir, report.Total, len(report.Bad))
	return report, nil
}
