package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/distribution/reference"
	"github.com/go-resty/resty/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/tehasdf/pbcr/internal/store"
)

// Fetches a single blob into the content store.
//
// A digest already present in the store short-circuits without a network
// request, after re-hashing the stored bytes: content corrupted out-of-band
// is evicted and fetched again. Downloaded bytes are verified by the store
// before they become visible; a mismatch discards the partial blob.
func (c *Client) FetchBlob(ctx context.Context, named reference.Named, desc ocispec.Descriptor) error {
	if c.store.Has(desc.Digest) {
		err := c.store.Verify(desc.Digest)
		if err == nil {
			slog.Debug("blob cached", "digest", desc.Digest)
			return nil
		}
		if !errors.Is(err, store.ErrDigestMismatch) {
			return err
		}
		slog.Warn("cached blob was corrupt, refetching", "digest", desc.Digest)
	}

	host := reference.Domain(named)
	repo := reference.Path(named)
	url := fmt.Sprintf("%s/v2/%s/blobs/%s", c.endpoint(host), repo, desc.Digest)

	resp, err := c.getStream(ctx, repo, url)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if err := c.store.Put(desc.Digest, body); err != nil {
		return err
	}

	slog.Debug("fetched blob", "digest", desc.Digest, "size", desc.Size)
	return nil
}

// Fetches all of an image's layers concurrently.
//
// Layers are independent content-addressed blobs written to distinct store
// keys, so download order does not matter; only extraction is ordered. The
// worker pool is bounded by the client's configured concurrency.
func (c *Client) FetchLayers(ctx context.Context, img *Image) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	seen := map[string]bool{}
	for _, layer := range img.Manifest.Layers {
		if seen[layer.Digest.String()] {
			continue
		}
		seen[layer.Digest.String()] = true

		g.Go(func() error {
			return c.FetchBlob(ctx, img.Name, layer)
		})
	}

	return g.Wait()
}

// Performs an authorized GET whose body is streamed rather than buffered.
//
// The same single-retry token exchange as [Client.get] applies. The caller
// owns the returned response's raw body.
func (c *Client) getStream(ctx context.Context, repo, url string) (*resty.Response, error) {
	do := func(token string) (*resty.Response, error) {
		req := c.http.R().SetContext(ctx).SetDoNotParseResponse(true)
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
		resp.RawBody().Close()

		ch, chErr := parseChallenge(resp.Header().Get("Www-Authenticate"))
		if chErr != nil {
			return nil, &Error{StatusCode: 401, Message: "unauthorized and no usable auth challenge"}
		}

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
		resp.RawBody().Close()
		return nil, &Error{
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("GET %s", url),
		}
	}
	return resp, nil
}
