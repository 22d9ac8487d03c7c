// Package registry implements the pull side of the Docker Registry HTTP API v2:
// bearer token acquisition, manifest resolution and blob download.
package registry

import (
	"context"
	_ "crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	DefaultRegistryURL = "https://registry-1.docker.io"
	DefaultAuthURL     = "https://auth.docker.io"
	DefaultService     = "registry.docker.io"
	DefaultNamespace   = "library"
)

// Config configures a Client. Zero values fall back to Docker Hub defaults.
type Config struct {
	RegistryURL   string
	AuthURL       string
	Service       string
	Namespace     string
	VerifyDigests bool
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to a single registry on behalf of one bootstrap run.
type Client struct {
	registryURL   string
	authURL       string
	service       string
	namespace     string
	verifyDigests bool
	http          *http.Client
	logger        *slog.Logger
}

// NewClient creates a registry client
func NewClient(cfg Config) *Client {
	c := &Client{
		registryURL:   strings.TrimRight(cfg.RegistryURL, "/"),
		authURL:       strings.TrimRight(cfg.AuthURL, "/"),
		service:       cfg.Service,
		namespace:     cfg.Namespace,
		verifyDigests: cfg.VerifyDigests,
		http:          cfg.HTTPClient,
		logger:        cfg.Logger,
	}
	if c.registryURL == "" {
		c.registryURL = DefaultRegistryURL
	}
	if c.authURL == "" {
		c.authURL = DefaultAuthURL
	}
	if c.service == "" {
		c.service = DefaultService
	}
	if c.namespace == "" {
		c.namespace = DefaultNamespace
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// repository returns the namespaced repository path, e.g. "library/alpine".
func (c *Client) repository(name string) string {
	return c.namespace + "/" + name
}

// Token requests a bearer token scoped to pulling the named repository.
func (c *Client) Token(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	q.Set("service", c.service)
	q.Set("scope", "repository:"+c.repository(name)+":pull")
	endpoint := c.authURL + "/token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrAuth, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode token response: %w", ErrAuth, err)
	}

	token, ok := body.AccessToken.(string)
	if !ok {
		return "", fmt.Errorf("%w: response has no access_token string", ErrAuth)
	}

	c.logger.Debug("obtained pull token", "repository", c.repository(name))
	return token, nil
}

// manifestDocument is the subset of a v2/OCI image manifest we decode.
// Layers is a pointer so a missing field can be told apart from an empty list.
type manifestDocument struct {
	SchemaVersion int                   `json:"schemaVersion"`
	MediaType     string                `json:"mediaType"`
	Layers        *[]ocispec.Descriptor `json:"layers"`
}

// Manifest fetches the image manifest for name:tag.
func (c *Client) Manifest(ctx context.Context, token, name, tag string) (*Manifest, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/manifests/%s", c.registryURL, c.repository(name), tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrManifest, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Add("Accept", string(types.DockerManifestSchema2))
	req.Header.Add("Accept", ocispec.MediaTypeImageManifest)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("%w: %s:%s: %w", ErrManifest, c.repository(name), tag, err)
	}

	var doc manifestDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrManifest, err)
	}
	if doc.Layers == nil {
		// Manifest lists and schema1 manifests land here.
		return nil, fmt.Errorf("%w: manifest for %s:%s has no layers (media type %q)",
			ErrManifest, c.repository(name), tag, doc.MediaType)
	}

	m := &Manifest{
		MediaType: doc.MediaType,
		Layers:    make([]Layer, 0, len(*doc.Layers)),
	}
	for i, desc := range *doc.Layers {
		if err := desc.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("%w: layer %d: invalid digest %q: %w", ErrManifest, i, desc.Digest, err)
		}
		m.Layers = append(m.Layers, Layer{
			Digest:    desc.Digest,
			Size:      desc.Size,
			MediaType: desc.MediaType,
		})
	}

	c.logger.Debug("resolved manifest", "repository", c.repository(name), "tag", tag, "layers", len(m.Layers))
	return m, nil
}

// FetchLayer downloads the blob for layer into w and returns the byte count.
//
// When digest verification is enabled the downloaded bytes must hash to the
// layer digest, and must match the manifest size when one is given.
func (c *Client) FetchLayer(ctx context.Context, token, name string, layer Layer, w io.Writer) (int64, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/blobs/%s", c.registryURL, c.repository(name), layer.Digest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrLayerFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLayerFetch, layer.Digest, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLayerFetch, layer.Digest, err)
	}

	var verifier digest.Verifier
	if c.verifyDigests {
		verifier = layer.Digest.Verifier()
		w = io.MultiWriter(w, verifier)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: %s: read body: %w", ErrLayerFetch, layer.Digest, err)
	}

	if verifier != nil {
		if layer.Size > 0 && n != layer.Size {
			return n, fmt.Errorf("%w: %s: size mismatch: manifest says %d bytes, got %d",
				ErrLayerFetch, layer.Digest, layer.Size, n)
		}
		if !verifier.Verified() {
			return n, fmt.Errorf("%w: %s: content does not match digest", ErrLayerFetch, layer.Digest)
		}
	}

	c.logger.Debug("fetched layer", "digest", layer.Digest, "size", datasize.ByteSize(n).HumanReadable())
	return n, nil
}

// checkStatus turns a non-2xx response into an error carrying a short body excerpt.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// best effort, the excerpt only decorates the status error
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		return fmt.Errorf("%s %s: status %s", resp.Request.Method, resp.Request.URL.Path, resp.Status)
	}
	return fmt.Errorf("%s %s: status %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status, msg)
}
