// Package oci serves archives stored as blobs in an OCI registry.
//
// A key is either a blob digest ("sha256:...") or a tag. Tags resolve to an
// image manifest whose archive layer is served. Reads use ranged blob
// requests when the registry supports them; otherwise the blob URL is read
// through the HTTP storage source.
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/ziptoc/storage"
	ziphttp "github.com/meigma/ziptoc/storage/http"
)

// MediaTypeZip is the layer media type preferred when resolving tags.
const MediaTypeZip = "application/zip"

// maxManifestSize bounds manifest decoding.
const maxManifestSize = 4 << 20

// Backend resolves keys to blobs in a single repository.
type Backend struct {
	ref        registry.Reference
	plainHTTP  bool
	userAgent  string
	credStore  credentials.Store
	authClient *auth.Client
}

// New creates a Backend for repoRef (e.g. "ghcr.io/acme/archives").
func New(repoRef string, opts ...Option) (*Backend, error) {
	ref, err := registry.ParseReference(repoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	b := &Backend{
		ref:       ref,
		userAgent: "ziptoc/1.0",
	}
	for _, opt := range opts {
		opt(b)
	}

	b.authClient = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if b.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return b.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{b.userAgent},
		},
	}
	return b, nil
}

// Object returns the blob or tagged archive named by key.
func (b *Backend) Object(key string) storage.Object {
	return &Object{backend: b, key: key}
}

func (b *Backend) repository() (*remote.Repository, error) {
	repo, err := remote.NewRepository(b.ref.Registry + "/" + b.ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = b.plainHTTP
	repo.Client = b.authClient
	return repo, nil
}

// blobURL returns <scheme>://<registry>/v2/<repository>/blobs/<digest>.
func (b *Backend) blobURL(dgst digest.Digest) string {
	scheme := "https"
	if b.plainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/blobs/%s", scheme, b.ref.Host(), b.ref.Repository, dgst)
}

// authHeaders returns static credentials as request headers.
// It does not perform token exchange.
func (b *Backend) authHeaders(ctx context.Context) (http.Header, error) {
	headers := make(http.Header)
	headers.Set("User-Agent", b.userAgent)
	if b.credStore == nil {
		return headers, nil
	}
	cred, err := b.credStore.Get(ctx, b.ref.Host())
	if err != nil {
		return nil, fmt.Errorf("get credentials for %s: %w", b.ref.Host(), err)
	}
	switch {
	case isEmptyCredential(cred):
	case cred.AccessToken != "":
		headers.Set("Authorization", "Bearer "+cred.AccessToken)
	case cred.Username != "":
		headers.Set("Authorization", basicAuth(cred.Username, cred.Password))
	}
	return headers, nil
}

// Object is an archive stored in the repository.
type Object struct {
	backend *Backend
	key     string
}

// Key returns the digest or tag naming the object.
func (o *Object) Key() string {
	return o.key
}

// Open resolves the archive blob and returns a seekable stream over it.
func (o *Object) Open(ctx context.Context) (storage.Stream, error) {
	repo, err := o.backend.repository()
	if err != nil {
		return nil, err
	}
	desc, err := o.resolve(ctx, repo)
	if err != nil {
		return nil, err
	}
	if err := validateDescriptor(&desc); err != nil {
		return nil, err
	}

	rc, err := repo.Blobs().Fetch(ctx, desc)
	if err != nil {
		return nil, mapError(err)
	}
	if rs, ok := rc.(io.ReadSeekCloser); ok {
		return rs, nil
	}
	rc.Close()

	headers, err := o.backend.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	src, err := ziphttp.NewSource(ctx, o.backend.blobURL(desc.Digest), ziphttp.WithHeaders(headers))
	if err != nil {
		return nil, err
	}
	if src.Size() != desc.Size {
		return nil, fmt.Errorf("oci storage: blob %s size %d, registry reported %d", desc.Digest, src.Size(), desc.Size)
	}
	return storage.NewSectionStream(src, src.Size(), nil), nil
}

// resolve maps the key to the descriptor of the archive blob.
func (o *Object) resolve(ctx context.Context, repo *remote.Repository) (ocispec.Descriptor, error) {
	if dgst, err := digest.Parse(o.key); err == nil {
		desc, err := repo.Blobs().Resolve(ctx, dgst.String())
		if err != nil {
			return ocispec.Descriptor{}, mapError(err)
		}
		return desc, nil
	}

	mdesc, rc, err := repo.FetchReference(ctx, o.key)
	if err != nil {
		return ocispec.Descriptor{}, mapError(err)
	}
	defer rc.Close()
	if mdesc.MediaType != "" && mdesc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Descriptor{}, fmt.Errorf("oci storage: %s: unsupported media type %s", o.key, mdesc.MediaType)
	}

	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(rc, maxManifestSize)).Decode(&manifest); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("oci storage: decode manifest %s: %w", o.key, err)
	}
	return archiveLayer(manifest)
}

// archiveLayer picks the zip layer of a manifest, or its only layer.
func archiveLayer(m ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, layer := range m.Layers {
		if layer.MediaType == MediaTypeZip {
			return layer, nil
		}
	}
	if len(m.Layers) == 1 {
		return m.Layers[0], nil
	}
	return ocispec.Descriptor{}, ErrNoArchiveLayer
}

func validateDescriptor(desc *ocispec.Descriptor) error {
	if desc.Size < 0 {
		return fmt.Errorf("oci storage: negative size %d", desc.Size)
	}
	if err := desc.Digest.Validate(); err != nil {
		return fmt.Errorf("oci storage: invalid digest %q: %w", desc.Digest, err)
	}
	return nil
}

// mapError maps ORAS errors to storage and package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", storage.ErrNotExist, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", storage.ErrNotExist, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
