package rootfs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// A host path to copy into the rootfs before launch.
type Mount struct {
	Source string // Host file or directory.
	Target string // Absolute path inside the container.
}

// Parses a "-v host:container" volume argument.
func ParseMount(s string) (Mount, error) {
	source, target, ok := strings.Cut(s, ":")
	if !ok || source == "" || target == "" {
		return Mount{}, fmt.Errorf("%w: volume %q, expected host:container", ErrVolumeApply, s)
	}
	return Mount{Source: source, Target: target}, nil
}

// Copies the requested host paths into an assembled rootfs.
//
// Requests are applied in order; a later request targeting the same
// container path overwrites the earlier one's content, so the outcome is
// deterministic by request order. Intermediate directories are created as
// needed and image-provided files at the target path are replaced.
func Apply(root string, mounts []Mount) error {
	for _, m := range mounts {
		info, err := os.Stat(m.Source)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrVolumeSource, m.Source)
		}

		target, err := securejoin.SecureJoin(root, m.Target)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrVolumeApply, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrVolumeApply, err)
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("%w: %v", ErrVolumeApply, err)
		}

		if info.IsDir() {
			err = copyTree(m.Source, target)
		} else {
			err = copyFile(m.Source, target, info.Mode())
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrVolumeApply, m.Target, err)
		}

		slog.Debug("volume applied", "source", m.Source, "target", m.Target, "dir", info.IsDir())
	}
	return nil
}

// Copies a directory tree, preserving modes and symlinks.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, relPath)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode())
		}
	})
}

// Copies a single file's content and mode.
func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
