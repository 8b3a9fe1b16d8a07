package rootfs

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/tehasdf/pbcr/internal/paths"
	"github.com/tehasdf/pbcr/internal/store"
)

// Docker layer media types, handled alongside their OCI equivalents.
const (
	mediaTypeDockerLayerGzip = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	mediaTypeDockerLayer     = "application/vnd.docker.image.rootfs.diff.tar"
)

// Materializes a root filesystem from an ordered list of layers.
//
// The directory is created fresh; any previous content at dir is discarded.
// Each layer's tar archive is read from the content store and extracted in
// manifest order (bottom layer first), so files from later layers overwrite
// same-path files from earlier ones and whiteout markers delete shadowed
// paths. Extraction is always full: layers are never shared or reused
// between containers beyond the blob cache.
//
// Any failure removes the partially assembled rootfs before returning.
func Build(ctx context.Context, s *store.Store, layers []ocispec.Descriptor, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrLayerExtract, err)
	}
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %v", ErrLayerExtract, err)
	}

	for i, layer := range layers {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(dir)
			return err
		}
		if err := extractLayer(s, layer, dir); err != nil {
			os.RemoveAll(dir)
			return err
		}
		slog.Debug("extracted layer", "index", i, "digest", layer.Digest)
	}
	return nil
}

// Extracts a single layer from the store onto dir.
func extractLayer(s *store.Store, layer ocispec.Descriptor, dir string) error {
	rc, err := s.Open(layer.Digest)
	if err != nil {
		return err
	}
	defer rc.Close()

	decompressed, err := decompress(rc, layer.MediaType)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	if err := applyLayer(tar.NewReader(decompressed), dir); err != nil {
		return fmt.Errorf("%w: layer %s: %v", ErrLayerExtract, layer.Digest, err)
	}
	return nil
}

// Wraps a layer stream with the decompressor its media type declares.
//
// A stream whose content does not match the declared compression (e.g. a
// gzip media type over non-gzip bytes) is an unsupported-format failure,
// distinct from a corrupt tar stream encountered mid-extraction.
func decompress(r io.Reader, mediaType string) (io.ReadCloser, error) {
	switch mediaType {
	case ocispec.MediaTypeImageLayerGzip, mediaTypeDockerLayerGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedLayer, mediaType, err)
		}
		return gz, nil

	case ocispec.MediaTypeImageLayerZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedLayer, mediaType, err)
		}
		return zr.IOReadCloser(), nil

	case ocispec.MediaTypeImageLayer, mediaTypeDockerLayer:
		return io.NopCloser(r), nil

	default:
		if strings.HasSuffix(mediaType, ".tar+gzip") {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedLayer, mediaType, err)
			}
			return gz, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayer, mediaType)
	}
}
