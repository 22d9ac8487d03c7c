package rootfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/onkernel/jailrun/lib/images"
	"github.com/onkernel/jailrun/lib/layers"
	"github.com/onkernel/jailrun/lib/otel"
	"github.com/onkernel/jailrun/lib/registry"
	"github.com/samber/lo"
)

// Puller is the subset of the registry client RegistryPull needs.
type Puller interface {
	Token(ctx context.Context, name string) (string, error)
	Manifest(ctx context.Context, token, name, tag string) (*registry.Manifest, error)
	FetchLayer(ctx context.Context, token, name string, layer registry.Layer, w io.Writer) (int64, error)
}

// RegistryPull flattens a registry image into the staging root.
//
// Layers are fetched and applied one at a time in manifest order; layer N is
// fully extracted before layer N+1 is requested.
type RegistryPull struct {
	Client    Puller
	Reference *images.Reference

	// ScratchDir holds each compressed layer while it is verified.
	ScratchDir string

	// MaxLayerSize caps the uncompressed bytes of a single layer. 0 disables it.
	MaxLayerSize int64

	Metrics *otel.BootstrapMetrics
	Logger  *slog.Logger
}

func (p *RegistryPull) Kind() string {
	return "registry"
}

// Placement keeps the binary at its host path, recreated under the new root.
func (p *RegistryPull) Placement(hostPath string) string {
	return filepath.Clean("/" + hostPath)
}

// Populate resolves the manifest and applies every layer into root.
func (p *RegistryPull) Populate(ctx context.Context, root *Staging) error {
	logger := p.logger().With("image", p.Reference.String())
	start := time.Now()

	token, err := p.Client.Token(ctx, p.Reference.Name())
	if err != nil {
		return err
	}

	manifest, err := p.Client.Manifest(ctx, token, p.Reference.Name(), p.Reference.Tag())
	if err != nil {
		return err
	}

	total := lo.SumBy(manifest.Layers, func(l registry.Layer) int64 { return l.Size })
	logger.Info("pulling image",
		"layers", len(manifest.Layers),
		"size", datasize.ByteSize(total).HumanReadable(),
	)

	if err := os.MkdirAll(p.ScratchDir, 0755); err != nil {
		return fmt.Errorf("%w: create scratch dir: %w", registry.ErrLayerFetch, err)
	}

	for i, layer := range manifest.Layers {
		if err := p.applyLayer(ctx, token, root, layer); err != nil {
			return fmt.Errorf("layer %d/%d: %w", i+1, len(manifest.Layers), err)
		}
	}

	p.Metrics.RecordPull(ctx, p.Reference.String(), time.Since(start))
	logger.Info("image flattened", "duration", time.Since(start))
	return nil
}

// applyLayer downloads one layer to a scratch file and extracts it into root.
func (p *RegistryPull) applyLayer(ctx context.Context, token string, root *Staging, layer registry.Layer) error {
	dir, err := root.Path()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(p.ScratchDir, "layer-*.tar.gz")
	if err != nil {
		return fmt.Errorf("%w: create scratch file: %w", registry.ErrLayerFetch, err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	downloaded, err := p.Client.FetchLayer(ctx, token, p.Reference.Name(), layer, f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind scratch file: %w", registry.ErrLayerFetch, err)
	}

	extracted, err := layers.Extract(f, dir, p.MaxLayerSize)
	if err != nil {
		return fmt.Errorf("%s: %w", layer.Digest, err)
	}

	p.Metrics.RecordLayer(ctx, downloaded, extracted)
	p.logger().Debug("applied layer",
		"digest", layer.Digest,
		"compressed", datasize.ByteSize(downloaded).HumanReadable(),
		"extracted", datasize.ByteSize(extracted).HumanReadable(),
	)
	return nil
}

func (p *RegistryPull) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
