package rootfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Staging is the directory that becomes the new filesystem root of one run.
//
// The host path stays valid until Commit; after that every path derived from
// it would be resolved against the new root, so Path and Join refuse to hand
// it out and Cleanup becomes a no-op.
type Staging struct {
	path      string
	committed bool
	logger    *slog.Logger
}

// Prepare resets the reserved staging path: anything left there by an earlier
// run is removed before a fresh, empty directory is created.
func Prepare(path string, logger *slog.Logger) (*Staging, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Lstat(path); err == nil {
		logger.Warn("removing stale staging root", "path", path)
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("%w: remove stale %s: %w", ErrStaging, path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrStaging, path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create parent: %w", ErrStaging, err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStaging, path, err)
	}

	logger.Debug("staging root ready", "path", path)
	return &Staging{path: path, logger: logger}, nil
}

// Path returns the host path of the staging root.
func (s *Staging) Path() (string, error) {
	if s.committed {
		return "", ErrCommitted
	}
	return s.path, nil
}

// Join maps an absolute path inside the future root to its host path.
func (s *Staging) Join(elem ...string) (string, error) {
	root, err := s.Path()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root}, elem...)...), nil
}

// Commit marks the staging root as the process root. It is one-way.
func (s *Staging) Commit() error {
	if s.committed {
		return ErrCommitted
	}
	s.committed = true
	return nil
}

// Committed reports whether Commit has been called.
func (s *Staging) Committed() bool {
	return s.committed
}

// Cleanup removes the staging root. Once committed the original path is out
// of reach, so the directory is left for the next run's Prepare to remove.
func (s *Staging) Cleanup() error {
	if s.committed {
		s.logger.Debug("staging root committed, leaving cleanup to the next run", "path", s.path)
		return nil
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove staging root: %w", err)
	}
	return nil
}
