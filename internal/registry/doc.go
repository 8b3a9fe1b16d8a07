// Package registry resolves image references against OCI registries and
// streams their content into the local store.
//
// A [Client] speaks the standard registry HTTP API: manifest GET with
// versioned Accept negotiation, blob GET by digest, and the bearer-token
// challenge/response exchange. Manifest lists are narrowed to the host
// platform. Every downloaded byte is verified against the digest that
// requested it before it becomes visible in the store, and blobs already
// cached are never fetched twice.
//
// Transient transport failures and 5xx responses are retried internally
// with bounded backoff. Authentication and not-found failures propagate
// immediately as [*Error].
//
// Example usage:
//
//	client := registry.New(s)
//
//	img, err := client.Pull(ctx, "library/hello-world:latest")
//	if err != nil {
//	    return err
//	}
//
//	for _, layer := range img.Manifest.Layers {
//	    rc, err := s.Open(layer.Digest)
//	    ...
//	}
package registry
