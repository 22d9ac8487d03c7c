// Package registrytest provides an in-memory registry with a token endpoint
// for tests that exercise the pull pipeline over HTTP.
package registrytest

import (
	"archive/tar"
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/stretchr/testify/require"
)

// Server serves /token and the /v2/ API on one listener.
type Server struct {
	*httptest.Server

	// TokenBody is written by the token endpoint. Defaults to an access_token
	// response carrying Token.
	TokenBody string
	Token     string

	TokenRequests    atomic.Int64
	ManifestRequests atomic.Int64
	BlobRequests     atomic.Int64

	// LastAuthorization is the Authorization header of the most recent /v2/ request.
	LastAuthorization atomic.Value
	// LastAccept is the Accept header of the most recent manifest request.
	LastAccept atomic.Value
	// LastScope is the scope query parameter of the most recent token request.
	LastScope atomic.Value
}

// New starts a registry server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{Token: "test-token"}
	s.TokenBody = `{"access_token":"` + s.Token + `"}`

	reg := ggcrregistry.New(ggcrregistry.Logger(log.New(io.Discard, "", 0)))

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		s.TokenRequests.Add(1)
		s.LastScope.Store(r.URL.Query().Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, s.TokenBody)
	})
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			switch {
			case strings.Contains(r.URL.Path, "/manifests/"):
				s.ManifestRequests.Add(1)
				s.LastAccept.Store(strings.Join(r.Header.Values("Accept"), ","))
			case strings.Contains(r.URL.Path, "/blobs/"):
				s.BlobRequests.Add(1)
			}
			s.LastAuthorization.Store(r.Header.Get("Authorization"))
		}
		reg.ServeHTTP(w, r)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Host returns host:port of the server.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// Push writes an image made of layers (bottom first) to repo:tag.
func (s *Server) Push(t testing.TB, repo, tag string, layers ...v1.Layer) v1.Image {
	t.Helper()

	img, err := mutate.AppendLayers(empty.Image, layers...)
	require.NoError(t, err)

	ref, err := name.ParseReference(s.Host()+"/"+repo+":"+tag, name.Insecure)
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))

	return img
}

// Entry is one tar entry in a test layer.
type Entry struct {
	Name     string
	Body     string
	Mode     int64
	Typeflag byte
	Linkname string
}

// File is a regular file entry.
func File(name, body string) Entry {
	return Entry{Name: name, Body: body, Mode: 0644, Typeflag: tar.TypeReg}
}

// Dir is a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Mode: 0755, Typeflag: tar.TypeDir}
}

// Tar builds an uncompressed tar archive from entries.
func Tar(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     e.Mode,
			Typeflag: e.Typeflag,
			Linkname: e.Linkname,
		}
		if e.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := io.WriteString(tw, e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// Layer builds a gzip-compressed image layer from entries.
func Layer(t testing.TB, entries ...Entry) v1.Layer {
	t.Helper()

	b := Tar(t, entries...)
	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	})
	require.NoError(t, err)
	return layer
}
