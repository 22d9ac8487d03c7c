// Package namespace moves the calling thread into a fresh PID namespace.
package namespace

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// unshare is swapped out in tests.
var unshare = unix.Unshare

// Isolator places children started after Isolate in a new PID namespace.
type Isolator struct {
	logger *slog.Logger
}

// New creates an Isolator.
func New(logger *slog.Logger) *Isolator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Isolator{logger: logger}
}

// Isolate unshares the PID namespace of the calling OS thread. The caller
// itself keeps its PID; the next child it forks becomes PID 1 of the new
// namespace.
//
// unshare(2) applies per thread, so the goroutine stays locked to its thread
// for the rest of the process and must be the one that starts the child.
// The lock is released only when Isolate fails.
func (i *Isolator) Isolate() error {
	runtime.LockOSThread()
	if err := unshare(unix.CLONE_NEWPID); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("%w: unshare pid namespace: %w", ErrNamespace, err)
	}
	i.logger.Debug("entered new pid namespace")
	return nil
}
