package registry

import (
	"github.com/opencontainers/go-digest"
)

// Manifest is the ordered layer list of a single-platform image.
// Layers are in stacking order: later layers overwrite earlier ones.
type Manifest struct {
	MediaType string
	Layers    []Layer
}

// Layer identifies one blob of an image.
type Layer struct {
	Digest    digest.Digest
	Size      int64
	MediaType string
}

// tokenResponse is the body returned by the token endpoint
type tokenResponse struct {
	AccessToken any `json:"access_token"`
}
