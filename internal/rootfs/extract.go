package rootfs

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"
)

const (

	// Prefix marking a deletion of the shadowed path from an earlier layer.
	whiteoutPrefix = ".wh."

	// Marker clearing all content of its directory inherited from earlier
	// layers, without deleting the directory itself.
	whiteoutOpaque = ".wh..wh..opq"
)

// Mode bits carried over verbatim from tar headers, beyond the permission
// bits: setuid, setgid, and the sticky bit.
const specialModeBits = os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// Applies one layer's tar stream onto the rootfs directory.
//
// Entries are applied in archive order with last-writer-wins semantics:
// an entry whose path already exists replaces it, including type changes
// (a file may replace a directory and vice versa). Whiteout entries delete
// instead of writing. Entry names are joined with the root via securejoin
// so a hostile archive cannot escape the rootfs.
func applyLayer(tr *tar.Reader, root string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(hdr.Name)
		if name == "." || name == "/" {
			continue
		}
		base := filepath.Base(name)
		dir := filepath.Dir(name)

		if base == whiteoutOpaque {
			if err := clearDir(root, dir); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(base, whiteoutPrefix) {
			shadowed := filepath.Join(dir, strings.TrimPrefix(base, whiteoutPrefix))
			target, err := securejoin.SecureJoin(root, shadowed)
			if err != nil {
				return err
			}
			if err := os.RemoveAll(target); err != nil {
				return err
			}
			continue
		}

		target, err := securejoin.SecureJoin(root, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := writeEntry(tr, hdr, root, target); err != nil {
			return fmt.Errorf("entry %q: %w", hdr.Name, err)
		}
	}
}

// Materializes a single non-whiteout tar entry at target.
func writeEntry(tr *tar.Reader, hdr *tar.Header, root, target string) error {
	mode := hdr.FileInfo().Mode()
	perm := mode.Perm() | mode&specialModeBits

	// Later layers replace earlier content wholesale, so clear whatever is
	// there unless both old and new are directories.
	if info, err := os.Lstat(target); err == nil {
		if !(info.IsDir() && hdr.Typeflag == tar.TypeDir) {
			if err := os.RemoveAll(target); err != nil {
				return err
			}
		}
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0755); err != nil {
			return err
		}
		return os.Chmod(target, perm)

	case tar.TypeReg:
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Chmod(target, perm)

	case tar.TypeSymlink:
		return os.Symlink(hdr.Linkname, target)

	case tar.TypeLink:
		source, err := securejoin.SecureJoin(root, hdr.Linkname)
		if err != nil {
			return err
		}
		return os.Link(source, target)

	case tar.TypeChar, tar.TypeBlock:
		devmode := uint32(hdr.Mode & 07777)
		if hdr.Typeflag == tar.TypeChar {
			devmode |= unix.S_IFCHR
		} else {
			devmode |= unix.S_IFBLK
		}
		dev := unix.Mkdev(uint32(hdr.Devmajor), uint32(hdr.Devminor))
		return unix.Mknod(target, devmode, int(dev))

	case tar.TypeFifo:
		return unix.Mkfifo(target, uint32(hdr.Mode&07777))

	case tar.TypeXGlobalHeader:
		return nil

	default:
		return fmt.Errorf("unsupported tar entry type %q", hdr.Typeflag)
	}
}

// Removes all content of a directory inherited from earlier layers, keeping
// the directory itself. A missing directory is not an error: the opaque
// marker may precede the directory entry in the same layer.
func clearDir(root, dir string) error {
	target, err := securejoin.SecureJoin(root, dir)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(target, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
