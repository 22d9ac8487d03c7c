// Package launcher runs the jailed command and relays its output and exit
// status to the parent.
package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// Launcher starts one child process.
//
// By default the child inherits the parent's stdout and stderr, so output is
// live and a terminal stays a terminal. With Capture set both streams are
// buffered and written to the parent once the child exits; a successful
// child's output must then be valid UTF-8.
type Launcher struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Capture bool
	Logger  *slog.Logger
}

// New returns a Launcher wired to the process's own stdio.
func New(capture bool, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Capture: capture,
		Logger:  logger,
	}
}

// Run executes path with args and waits for it.
//
// A zero exit returns nil. A non-zero exit returns *ExitError carrying the
// child's status; a child killed by a signal is reported as status 1. The
// exit status always wins: captured output of a failed child is relayed as
// is, without the UTF-8 check.
func (l *Launcher) Run(path string, args []string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = l.Stdin

	var stdout, stderr bytes.Buffer
	if l.Capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = l.Stdout
		cmd.Stderr = l.Stderr
	}

	logger.Debug("starting command", "path", path, "args", args, "capture", l.Capture)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSpawn, describe(path, args), err)
	}
	waitErr := cmd.Wait()

	if waitErr == nil {
		if l.Capture {
			if err := checkText(stdout.Bytes(), stderr.Bytes()); err != nil {
				return err
			}
			return l.relay(stdout.Bytes(), stderr.Bytes())
		}
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("%w: %s: %w", ErrSpawn, describe(path, args), waitErr)
	}

	if l.Capture {
		if err := l.relay(stdout.Bytes(), stderr.Bytes()); err != nil {
			logger.Warn("failed to relay output of failed command", "path", path, "error", err)
		}
	}

	code := exitErr.ExitCode()
	if code < 0 {
		// terminated by a signal
		logger.Warn("command killed by signal", "path", path, "state", exitErr.String())
		code = 1
	}
	logger.Debug("command exited", "path", path, "code", code)
	return &ExitError{Code: code}
}

func checkText(stdout, stderr []byte) error {
	if !utf8.Valid(stdout) {
		return fmt.Errorf("%w: stdout", ErrEncoding)
	}
	if !utf8.Valid(stderr) {
		return fmt.Errorf("%w: stderr", ErrEncoding)
	}
	return nil
}

func (l *Launcher) relay(stdout, stderr []byte) error {
	if _, err := l.Stdout.Write(stdout); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	if _, err := l.Stderr.Write(stderr); err != nil {
		return fmt.Errorf("write stderr: %w", err)
	}
	return nil
}

func describe(path string, args []string) string {
	if len(args) == 0 {
		return path
	}
	return path + " " + strings.Join(args, " ")
}
