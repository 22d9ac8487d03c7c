package rootfs

import (
	"context"
)

// Source fills a fresh staging root with the files of an image.
type Source interface {
	// Kind names the source for logs and metrics.
	Kind() string

	// Populate writes the image contents into root.
	Populate(ctx context.Context, root *Staging) error

	// Placement returns the absolute path inside the new root where the
	// command binary found at hostPath is placed and executed from.
	Placement(hostPath string) string
}

// LocalEntrypoint is where LocalCopy places the command binary.
const LocalEntrypoint = "/init"

// LocalCopy jails a single local binary in an otherwise empty root.
type LocalCopy struct{}

func (LocalCopy) Kind() string {
	return "local"
}

// Populate leaves the freshly created root empty.
func (LocalCopy) Populate(ctx context.Context, root *Staging) error {
	return nil
}

func (LocalCopy) Placement(hostPath string) string {
	return LocalEntrypoint
}
