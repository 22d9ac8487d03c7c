package images

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// DefaultTag is used when a reference carries no tag.
const DefaultTag = "latest"

// DefaultNamespace is the repository namespace official images live under.
const DefaultNamespace = "library"

// Reference is a parsed image reference. The registry contract always places
// repositories under a namespace (library/<name>), so a name is a single path
// component and the first ':' or '/' separates it from the tag.
// Examples:
//   - "alpine" -> name "alpine", tag "latest"
//   - "alpine:3.18" -> name "alpine", tag "3.18"
//   - "library/latest" -> name "library", tag "latest"
type Reference struct {
	name       string
	tag        string
	normalized string
}

// ParseReference validates and splits a user-provided image reference.
func ParseReference(s string) (*Reference, error) {
	name, tag := s, DefaultTag
	if i := strings.IndexAny(s, ":/"); i >= 0 {
		name, tag = s[:i], s[i+1:]
	}

	if name == "" {
		return nil, fmt.Errorf("%w: empty name in %q", ErrInvalidName, s)
	}
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag in %q", ErrInvalidName, s)
	}

	// Validate the pair as it will appear in registry URLs.
	named, err := reference.ParseNormalizedNamed(DefaultNamespace + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidName, s, err)
	}
	tagged, err := reference.WithTag(named, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidName, s, err)
	}

	return &Reference{
		name:       name,
		tag:        tag,
		normalized: tagged.String(),
	}, nil
}

// Name returns the repository name without namespace (e.g., "alpine").
func (r *Reference) Name() string {
	return r.name
}

// Tag returns the tag, "latest" when none was given.
func (r *Reference) Tag() string {
	return r.tag
}

// String returns the fully qualified form, e.g. "docker.io/library/alpine:latest".
func (r *Reference) String() string {
	return r.normalized
}
