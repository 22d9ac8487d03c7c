// Package layers applies gzip-compressed tar layers onto a directory.
package layers

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/umoci/oci/layer"
)

// Extract applies the gzip-compressed tar stream r onto destDir and returns the
// number of file bytes written. maxBytes <= 0 disables the size limit.
//
// Layers are applied on top of whatever destDir already holds with OCI
// semantics: a colliding path is replaced, directories merge, whiteout entries
// remove what lower layers wrote. Modes including setuid, setgid and sticky
// bits are restored; ownership is restored when running as root. Device and
// fifo entries are skipped.
func Extract(r io.Reader, destDir string, maxBytes int64) (int64, error) {
	n, err := extract(r, destDir, maxBytes)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return n, nil
}

func extract(r io.Reader, destDir string, maxBytes int64) (int64, error) {
	// umoci needs the root to exist
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("create dest dir: %w", err)
	}

	gzr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("gzip reader: %w", err)
	}
	defer gzr.Close()

	extractor := layer.NewTarExtractor(unpackOptions())
	tr := tar.NewReader(gzr)

	var extractedBytes int64

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extractedBytes, fmt.Errorf("read tar header: %w", err)
		}

		if err := checkPath(header.Name); err != nil {
			return extractedBytes, err
		}

		switch header.Typeflag {
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			continue
		case tar.TypeLink:
			if err := checkPath(header.Linkname); err != nil {
				return extractedBytes, err
			}
		case tar.TypeReg:
			if maxBytes > 0 && extractedBytes+header.Size > maxBytes {
				return extractedBytes, fmt.Errorf("%w: %s would exceed %d bytes", ErrArchiveTooLarge, header.Name, maxBytes)
			}
			extractedBytes += header.Size
		}

		if err := extractor.UnpackEntry(destDir, header, tr); err != nil {
			return extractedBytes, fmt.Errorf("unpack %s: %w", header.Name, err)
		}
	}

	return extractedBytes, nil
}

// unpackOptions extracts into a plain directory. Without root, chown is
// skipped and files end up owned by the caller.
func unpackOptions() *layer.UnpackOptions {
	return &layer.UnpackOptions{
		OnDiskFormat: layer.DirRootfs{
			MapOptions: layer.MapOptions{
				Rootless: os.Geteuid() != 0,
			},
		},
	}
}

// checkPath rejects entry names that climb out of the root. umoci would clamp
// them inside it; a layer that tries is refused outright instead.
func checkPath(name string) error {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("%w: path traversal in %s", ErrInvalidArchivePath, name)
		}
	}
	return nil
}
