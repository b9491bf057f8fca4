// Package worker manages each worker slot's isolated scratch space:
// the temp directory a pipeline run downloads its source PDF into,
// renders page tiles under, and cleans up once a job completes.
package worker

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// RootDirName is the default scratch-space root under the OS temp dir.
	RootDirName = "ocrworkerd"

	// SourceDirName holds the downloaded PDF for the job in progress.
	SourceDirName = "source"

	// TilesDirName holds rendered page images for the index pipeline.
	TilesDirName = "tiles"
)

// Dir is one worker's scratch-space directory tree, rooted at
// <base>/ocrworkerd/<workerID>.
type Dir struct {
	path string
}

// New returns a Dir for workerID under base. An empty base defaults to
// os.TempDir().
func New(base, workerID string) (*Dir, error) {
	if base == "" {
		base = os.TempDir()
	}
	if workerID == "" {
		return nil, fmt.Errorf("worker: workdir requires a non-empty worker id")
	}
	return &Dir{path: filepath.Join(base, RootDirName, workerID)}, nil
}

// Path returns the root of this worker's scratch space.
func (d *Dir) Path() string {
	return d.path
}

// SourcePath returns the directory the current job's source PDF is
// downloaded into.
func (d *Dir) SourcePath() string {
	return filepath.Join(d.path, SourceDirName)
}

// TilesPath returns the directory rendered page tiles are written into.
func (d *Dir) TilesPath() string {
	return filepath.Join(d.path, TilesDirName)
}

// EnsureExists creates the full scratch-space tree if it doesn't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.SourcePath(), d.TilesPath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("worker: create %s: %w", p, err)
		}
	}
	return nil
}

// Exists reports whether the scratch-space root is present.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// Clean removes every file from a completed job's run, leaving the
// directory tree itself in place for reuse by the next claim.
func (d *Dir) Clean() error {
	for _, p := range []string{d.SourcePath(), d.TilesPath()} {
		entries, err := os.ReadDir(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("worker: read %s: %w", p, err)
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(p, e.Name())); err != nil {
				return fmt.Errorf("worker: clean %s: %w", filepath.Join(p, e.Name()), err)
			}
		}
	}
	return nil
}

// Remove deletes the entire scratch-space tree, used on graceful
// worker shutdown.
func (d *Dir) Remove() error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("worker: remove %s: %w", d.path, err)
	}
	return nil
}
