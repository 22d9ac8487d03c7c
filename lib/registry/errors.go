package registry

import "errors"

var (
	// ErrAuth is returned when a pull token cannot be obtained
	ErrAuth = errors.New("registry auth failed")

	// ErrManifest is returned when a manifest cannot be fetched or decoded
	ErrManifest = errors.New("manifest fetch failed")

	// ErrLayerFetch is returned when a layer blob cannot be downloaded or verified
	ErrLayerFetch = errors.New("layer fetch failed")
)
