// Package store persists local runtime state.
//
// A [Store] is rooted at a single directory and keeps three kinds of state:
// a content-addressed blob cache (manifests, image configs, and layer
// archives keyed by digest), an image index mapping repositories and tags
// to manifest digests, and container records mapping names to rootfs
// directories and lifecycle state.
//
// Blobs are immutable once stored. [Store.Put] streams content through a
// digest verifier into a temporary file and renames it into place only
// after verification, so concurrent writers for the same digest cannot
// corrupt the cache and readers never observe partial content.
//
// Example usage:
//
//	s, err := store.New(paths.State())
//	if err != nil {
//	    return err
//	}
//
//	if !s.Has(desc.Digest) {
//	    if err := s.Put(desc.Digest, resp.Body); err != nil {
//	        return err
//	    }
//	}
package store
