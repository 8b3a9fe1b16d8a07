package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	"github.com/go-resty/resty/v2"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/tehasdf/pbcr/internal/store"
)

const (

	// Docker schema2 media types, accepted alongside their OCI equivalents.
	// Docker Hub still serves these for most public images.
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"

	// Registry host actually serving the docker.io namespace.
	dockerHubRegistry = "registry-1.docker.io"

	// Concurrent layer fetches per pull.
	defaultConcurrency = 3
)

// Accept values sent with manifest requests, most specific first.
var manifestAccept = []string{
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	mediaTypeDockerManifest,
	mediaTypeDockerManifestList,
}

// A registry client that resolves references to manifests and streams blobs
// into the content store.
type Client struct {
	http        *resty.Client
	store       *store.Store
	plainHTTP   bool
	concurrency int

	mu     sync.Mutex
	tokens map[string]string // Cached pull tokens, keyed by repository.
}

// Configures a [Client].
type Option func(*Client)

// Uses plain HTTP instead of HTTPS for all registry requests. Intended for
// local registries and tests.
func WithPlainHTTP() Option {
	return func(c *Client) { c.plainHTTP = true }
}

// Overrides the number of concurrent layer fetches.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Creates a registry client backed by the given content store.
//
// Transient transport errors and 5xx responses are retried with bounded
// backoff; definitive 4xx responses are never retried and surface as
// [*Error] immediately.
func New(s *store.Store, opts ...Option) *Client {
	httpClient := resty.New().
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	c := &Client{
		http:        httpClient,
		store:       s,
		concurrency: defaultConcurrency,
		tokens:      map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// A resolved image: the normalized reference, the manifest it maps to, and
// the parsed image config.
type Image struct {
	Name       reference.Named    // Normalized reference (tag or digest qualified).
	Descriptor ocispec.Descriptor // Manifest descriptor.
	Manifest   ocispec.Manifest   // Platform manifest listing config and layers.
	Config     ocispec.Image      // Parsed image config blob.
}

// Returns the familiar repository name (e.g. "library/hello-world").
func (i *Image) Repository() string {
	return reference.FamiliarName(i.Name)
}

// Resolves a reference string to a manifest and image config.
//
// The reference is normalized first: unqualified references default to the
// docker.io registry, library/ namespace, and latest tag. Resolution fetches
// the manifest with media-type negotiation, selects the host platform when
// the registry returns a manifest list, verifies all content against its
// digest, and caches the manifest and config blobs in the content store.
func (c *Client) Resolve(ctx context.Context, refStr string) (*Image, error) {
	named, err := reference.ParseDockerRef(refStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	host := reference.Domain(named)
	repo := reference.Path(named)

	target := ""
	if canonical, ok := named.(reference.Canonical); ok {
		target = canonical.Digest().String()
	} else if tagged, ok := named.(reference.Tagged); ok {
		target = tagged.Tag()
	}

	body, desc, err := c.getManifest(ctx, host, repo, target)
	if err != nil {
		return nil, err
	}

	// A manifest list carries one manifest per platform. Select the entry
	// for the host and re-resolve by its digest.
	if desc.MediaType == ocispec.MediaTypeImageIndex || desc.MediaType == mediaTypeDockerManifestList {
		selected, err := selectPlatform(body)
		if err != nil {
			return nil, err
		}
		slog.Debug("selected platform manifest", "ref", named.String(), "digest", selected.Digest)

		body, desc, err = c.getManifest(ctx, host, repo, selected.Digest.String())
		if err != nil {
			return nil, err
		}
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", desc.Digest, err)
	}

	if !c.store.Has(desc.Digest) {
		if err := c.store.Put(desc.Digest, bytes.NewReader(body)); err != nil {
			return nil, err
		}
	}

	if err := c.FetchBlob(ctx, named, manifest.Config); err != nil {
		return nil, err
	}
	configData, err := c.store.ReadBlob(manifest.Config.Digest)
	if err != nil {
		return nil, err
	}
	var config ocispec.Image
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("decode image config %s: %w", manifest.Config.Digest, err)
	}

	return &Image{
		Name:       named,
		Descriptor: desc,
		Manifest:   manifest,
		Config:     config,
	}, nil
}

// Resolves a reference and fetches its config and all layers, recording the
// pulled image in the store.
func (c *Client) Pull(ctx context.Context, refStr string) (*Image, error) {
	img, err := c.Resolve(ctx, refStr)
	if err != nil {
		return nil, err
	}

	if err := c.FetchLayers(ctx, img); err != nil {
		return nil, err
	}

	rec := store.ImageRecord{
		Repository: img.Repository(),
		Digest:     img.Descriptor.Digest,
		Config:     img.Manifest.Config.Digest,
	}
	if tagged, ok := img.Name.(reference.Tagged); ok {
		rec.Tags = []string{tagged.Tag()}
	}
	if err := c.store.SaveImage(rec); err != nil {
		return nil, err
	}

	slog.Info("pulled image",
		"ref", img.Name.String(),
		"digest", img.Descriptor.Digest,
		"layers", len(img.Manifest.Layers),
	)
	return img, nil
}

// Fetches a manifest by tag or digest, returning the raw bytes and a
// descriptor for them.
//
// The returned descriptor's digest is computed over the received bytes.
// When the manifest was requested by digest, a mismatch between the two is
// an integrity failure and the content is not used.
func (c *Client) getManifest(ctx context.Context, host, repo, target string) ([]byte, ocispec.Descriptor, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.endpoint(host), repo, target)

	resp, err := c.get(ctx, repo, url, manifestAccept)
	if err != nil {
		return nil, ocispec.Descriptor{}, err
	}

	body := resp.Body()
	dgst := digest.FromBytes(body)

	// A by-digest request is verified with the requested digest's own
	// algorithm, whatever it is.
	if want, parseErr := digest.Parse(target); parseErr == nil {
		if got := want.Algorithm().FromBytes(body); got != want {
			return nil, ocispec.Descriptor{}, fmt.Errorf(
				"%w: manifest %s hashed to %s", store.ErrDigestMismatch, want, got)
		}
		dgst = want
	}

	return body, ocispec.Descriptor{
		MediaType: resp.Header().Get("Content-Type"),
		Digest:    dgst,
		Size:      int64(len(body)),
	}, nil
}

// Picks the manifest matching the host platform out of a manifest list.
func selectPlatform(indexBody []byte) (ocispec.Descriptor, error) {
	var index ocispec.Index
	if err := json.Unmarshal(indexBody, &index); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("decode manifest list: %w", err)
	}

	matcher := platforms.Only(platforms.DefaultSpec())
	for _, m := range index.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			return m, nil
		}
	}
	return ocispec.Descriptor{}, ErrNoMatchingPlatform
}

// Performs an authorized GET against a registry endpoint.
//
// The request is first attempted with the cached repository token, if any.
// A 401 response triggers the bearer-token exchange described by the
// Www-Authenticate challenge, after which the request is retried once with
// the fresh token. Any remaining non-200 status surfaces as [*Error].
func (c *Client) get(ctx context.Context, repo, url string, accept []string) (*resty.Response, error) {
	do := func(token string) (*resty.Response, error) {
		req := c.http.R().SetContext(ctx)
		if len(accept) > 0 {
			req.SetHeader("Accept", strings.Join(accept, ", "))
		}
		if token != "" {
			req.SetAuthToken(token)
		}
		return req.Get(url)
	}

	c.mu.Lock()
	cached := c.tokens[repo]
	c.mu.Unlock()

	resp, err := do(cached)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == 401 {
		ch, chErr := parseChallenge(resp.Header().Get("Www-Authenticate"))
		if chErr != nil {
			return nil, &Error{StatusCode: 401, Message: "unauthorized and no usable auth challenge"}
		}

		// The cached token was rejected (or absent); exchange a fresh one.
		c.mu.Lock()
		delete(c.tokens, repo)
		c.mu.Unlock()

		token, tokenErr := c.token(ctx, ch, repo)
		if tokenErr != nil {
			return nil, tokenErr
		}

		resp, err = do(token)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != 200 {
		return nil, &Error{
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("GET %s", url),
		}
	}
	return resp, nil
}

// Returns the base URL for a registry host.
func (c *Client) endpoint(host string) string {
	if host == "docker.io" {
		host = dockerHubRegistry
	}

	scheme := "https"
	if c.plainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
