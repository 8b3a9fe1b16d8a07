package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"

	"github.com/tehasdf/pbcr/internal/paths"
)

// A pulled image known to the store.
//
// The manifest and config contents live in the blob store under their
// digests; the record maps a repository and its tags to those digests.
type ImageRecord struct {
	Repository string        `json:"repository"`
	Tags       []string      `json:"tags,omitempty"`
	Digest     digest.Digest `json:"digest"`
	Config     digest.Digest `json:"config"`
}

// Records a pulled image, merging tags with any existing record for the
// same manifest digest.
func (s *Store) SaveImage(rec ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.readImages()
	if err != nil {
		return err
	}

	if existing, ok := images[rec.Digest.String()]; ok {
		for _, tag := range existing.Tags {
			if !slices.Contains(rec.Tags, tag) {
				rec.Tags = append(rec.Tags, tag)
			}
		}
	}
	images[rec.Digest.String()] = rec

	return s.writeImages(images)
}

// Looks up an image record by manifest digest.
func (s *Store) GetImage(dgst digest.Digest) (ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.readImages()
	if err != nil {
		return ImageRecord{}, err
	}
	rec, ok := images[dgst.String()]
	if !ok {
		return ImageRecord{}, fmt.Errorf("image %s: %w", dgst, errdefs.ErrNotFound)
	}
	return rec, nil
}

// Returns all recorded images, ordered by repository name.
func (s *Store) ListImages() ([]ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	images, err := s.readImages()
	if err != nil {
		return nil, err
	}

	recs := make([]ImageRecord, 0, len(images))
	for _, rec := range images {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b ImageRecord) int {
		if a.Repository != b.Repository {
			if a.Repository < b.Repository {
				return -1
			}
			return 1
		}
		if a.Digest < b.Digest {
			return -1
		}
		return 1
	})
	return recs, nil
}

func (s *Store) imagesPath() string {
	return filepath.Join(s.root, "images", "images.json")
}

// Reads the image index. A missing or empty file yields an empty index.
func (s *Store) readImages() (map[string]ImageRecord, error) {
	data, err := os.ReadFile(s.imagesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ImageRecord{}, nil
		}
		return nil, err
	}

	images := map[string]ImageRecord{}
	if len(data) == 0 {
		return images, nil
	}
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// Writes the image index atomically.
func (s *Store) writeImages(images map[string]ImageRecord) error {
	return writeJSON(s.imagesPath(), images)
}

// Marshals v and renames it into place so readers never see a torn write.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(paths.DefaultFileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
