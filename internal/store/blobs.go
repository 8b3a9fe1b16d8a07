package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"
)

// Returns the path of the blob with the given digest.
//
// Blobs live in a flat, digest-named layout: blobs/<algorithm>-<hex>.
func (s *Store) blobPath(dgst digest.Digest) string {
	return filepath.Join(s.root, "blobs", dgst.Algorithm().String()+"-"+dgst.Encoded())
}

// Reports whether a blob with the given digest is present.
func (s *Store) Has(dgst digest.Digest) bool {
	_, err := os.Stat(s.blobPath(dgst))
	return err == nil
}

// Opens a stored blob for reading.
func (s *Store) Open(dgst digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(dgst))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", dgst, errdefs.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Returns the full content of a stored blob.
func (s *Store) ReadBlob(dgst digest.Digest) ([]byte, error) {
	rc, err := s.Open(dgst)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Writes a blob from r, verifying its content against the given digest.
//
// The content is streamed to a temporary file in the blob directory and
// renamed into place only after the digest verifies, so a reader never
// observes a partially written blob. On verification failure the temporary
// file is removed and ErrDigestMismatch is returned; nothing is cached.
// Putting a digest that is already present is a no-op: the existing blob
// wins, which is safe because content is hash-verified.
func (s *Store) Put(dgst digest.Digest, r io.Reader) error {
	if err := dgst.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "blobs"), "ingest-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptWrite, err)
	}
	defer os.Remove(tmp.Name())

	verifier := dgst.Verifier()
	if _, err := io.Copy(io.MultiWriter(tmp, verifier), r); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrCorruptWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptWrite, err)
	}

	if !verifier.Verified() {
		return fmt.Errorf("%w: content does not match %s", ErrDigestMismatch, dgst)
	}

	// First writer wins. A concurrent Put for the same digest wrote
	// identical verified content, so losing the rename race is harmless.
	if s.Has(dgst) {
		return nil
	}
	if err := os.Rename(tmp.Name(), s.blobPath(dgst)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptWrite, err)
	}
	return nil
}

// Checks a stored blob's content against its digest.
//
// Returns ErrDigestMismatch when the stored bytes no longer hash to the
// digest (e.g. out-of-band corruption), removing the bad entry so a
// subsequent fetch repairs it. A missing blob is reported as not found.
func (s *Store) Verify(dgst digest.Digest) error {
	rc, err := s.Open(dgst)
	if err != nil {
		return err
	}
	defer rc.Close()

	verifier := dgst.Verifier()
	if _, err := io.Copy(verifier, rc); err != nil {
		return err
	}
	if !verifier.Verified() {
		os.Remove(s.blobPath(dgst))
		return fmt.Errorf("%w: stored content for %s is corrupt", ErrDigestMismatch, dgst)
	}
	return nil
}

// Removes a stored blob. Removing an absent blob is not an error.
func (s *Store) Delete(dgst digest.Digest) error {
	if err := os.Remove(s.blobPath(dgst)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
