// Package jail turns a populated staging root into the process root.
//
// Preparation adds the files every run needs (a /dev/null stand-in and the
// command binary). Commit then chroots into the staging root and moves the
// working directory to the new "/". Commit is irreversible for the lifetime
// of the process.
package jail

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/onkernel/jailrun/lib/rootfs"
	"github.com/u-root/u-root/pkg/core/cp"
	"golang.org/x/sys/unix"
)

// Builder prepares and enters staging roots.
type Builder struct {
	logger *slog.Logger

	// overridable in tests; both need CAP_SYS_CHROOT to matter
	chroot func(path string) error
	chdir  func(path string) error
}

// New creates a Builder that uses the real chroot(2).
func New(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		logger: logger,
		chroot: unix.Chroot,
		chdir:  os.Chdir,
	}
}

// ResolveCommand returns the absolute host path of command. Bare names are
// looked up in PATH, relative paths are taken from the working directory.
func ResolveCommand(command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("%w: empty command", ErrCopy)
	}

	path := command
	if !strings.Contains(command, "/") {
		found, err := exec.LookPath(command)
		if err != nil && !errors.Is(err, exec.ErrDot) {
			return "", fmt.Errorf("%w: %s: %w", ErrCopy, command, err)
		}
		path = found
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCopy, command, err)
	}
	return abs, nil
}

// Prepare creates dev/null and copies the binary at hostPath to placement,
// an absolute path inside the future root.
func (b *Builder) Prepare(root *rootfs.Staging, hostPath, placement string) error {
	if err := b.devNull(root); err != nil {
		return err
	}

	dst, err := resolve(root, placement)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrCopy, hostPath, dst, err)
	}
	// The image may ship the path itself as a symlink, often absolute.
	// Writing through it would land on the host, so replace the entry.
	if info, err := os.Lstat(dst); err == nil && !info.IsDir() {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("%w: %s to %s: %w", ErrCopy, hostPath, dst, err)
		}
	}
	if err := cp.Copy(hostPath, dst); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrCopy, hostPath, dst, err)
	}

	b.logger.Debug("placed command", "src", hostPath, "dst", placement)
	return nil
}

// devNull writes an empty regular file at dev/null. It only exists so that
// programs probing the path find something; it does not discard writes.
func (b *Builder) devNull(root *rootfs.Staging) error {
	null, err := resolve(root, "/dev/null")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJail, err)
	}
	if err := os.MkdirAll(filepath.Dir(null), 0755); err != nil {
		return fmt.Errorf("%w: create dev: %w", ErrJail, err)
	}

	if info, err := os.Lstat(null); err == nil && !info.Mode().IsRegular() {
		if err := os.RemoveAll(null); err != nil {
			return fmt.Errorf("%w: replace dev/null: %w", ErrJail, err)
		}
	}

	f, err := os.OpenFile(null, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("%w: create dev/null: %w", ErrJail, err)
	}
	return f.Close()
}

// resolve maps an absolute path inside root to a host path. Symlinks in the
// parent directories are evaluated as if root were "/", so an image cannot
// point them at the host. The last component is returned unresolved.
func resolve(root *rootfs.Staging, path string) (string, error) {
	base, err := root.Path()
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + path)
	dir, err := securejoin.SecureJoin(base, filepath.Dir(clean))
	if err != nil {
		return "", fmt.Errorf("resolve %s in %s: %w", path, base, err)
	}
	return filepath.Join(dir, filepath.Base(clean)), nil
}

// Commit makes root the process root and "/" the working directory.
//
// After Commit the staging handle no longer hands out host paths. If chroot
// succeeds but chdir fails the root has still changed, so the handle is
// committed either way.
func (b *Builder) Commit(root *rootfs.Staging) error {
	path, err := root.Path()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJail, err)
	}

	if err := b.chroot(path); err != nil {
		return fmt.Errorf("%w: chroot %s: %w", ErrJail, path, err)
	}
	if err := root.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrJail, err)
	}
	if err := b.chdir("/"); err != nil {
		return fmt.Errorf("%w: chdir into new root: %w", ErrJail, err)
	}

	b.logger.Debug("entered jail", "root", path)
	return nil
}
