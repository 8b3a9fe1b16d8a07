package rootfs

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/tehasdf/pbcr/internal/store"
)

// A tar entry for building synthetic layers in tests.
type entry struct {
	name    string
	typ     byte
	mode    int64
	content string
	link    string
}

func file(name, content string) entry {
	return entry{name: name, typ: tar.TypeReg, mode: 0644, content: content}
}

func dir(name string) entry {
	return entry{name: name, typ: tar.TypeDir, mode: 0755}
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typ,
			Mode:     e.mode,
			Linkname: e.link,
		}
		if e.typ == tar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.name, err)
		}
		if e.typ == tar.TypeReg {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("tar write %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// Stores a blob and returns a layer descriptor for it.
func putLayer(t *testing.T, s *store.Store, mediaType string, data []byte) ocispec.Descriptor {
	t.Helper()
	dgst := digest.FromBytes(data)
	if err := s.Put(dgst, bytes.NewReader(data)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return ocispec.Descriptor{MediaType: mediaType, Digest: dgst, Size: int64(len(data))}
}

func gzipLayer(t *testing.T, s *store.Store, entries []entry) ocispec.Descriptor {
	t.Helper()
	return putLayer(t, s, ocispec.MediaTypeImageLayerGzip, gzipBytes(t, tarBytes(t, entries)))
}

func newLayerStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func TestBuildSingleLayer(t *testing.T) {
	s := newLayerStore(t)
	layer := gzipLayer(t, s, []entry{
		dir("bin"),
		{name: "bin/sh", typ: tar.TypeReg, mode: 0755, content: "#!fake"},
		file("etc/hostname", "box\n"),
		{name: "bin/ash", typ: tar.TypeSymlink, link: "sh"},
	})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{layer}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "etc/hostname")); got != "box\n" {
		t.Fatalf("hostname = %q", got)
	}

	info, err := os.Stat(filepath.Join(root, "bin/sh"))
	if err != nil {
		t.Fatalf("Stat bin/sh: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Fatalf("bin/sh mode = %v, want 0755", info.Mode().Perm())
	}

	link, err := os.Readlink(filepath.Join(root, "bin/ash"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if link != "sh" {
		t.Fatalf("ash -> %q, want sh", link)
	}
}

func TestBuildLaterLayerWins(t *testing.T) {
	s := newLayerStore(t)
	base := gzipLayer(t, s, []entry{
		file("etc/conf", "from base"),
		dir("opt/data"),
		file("opt/data/keep", "x"),
	})
	top := gzipLayer(t, s, []entry{
		file("etc/conf", "from top"),
		// A file replacing a directory from the lower layer.
		file("opt/data", "now a file"),
	})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{base, top}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "etc/conf")); got != "from top" {
		t.Fatalf("etc/conf = %q", got)
	}
	info, err := os.Lstat(filepath.Join(root, "opt/data"))
	if err != nil {
		t.Fatalf("Lstat opt/data: %v", err)
	}
	if info.IsDir() {
		t.Fatal("opt/data is still a directory")
	}
}

func TestBuildWhiteout(t *testing.T) {
	s := newLayerStore(t)
	base := gzipLayer(t, s, []entry{
		file("tmp/junk", "delete me"),
		file("tmp/keep", "survivor"),
		file("var/log/old", "x"),
	})
	top := gzipLayer(t, s, []entry{
		{name: "tmp/.wh.junk", typ: tar.TypeReg, mode: 0},
		{name: "var/.wh.log", typ: tar.TypeReg, mode: 0},
	})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{base, top}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(root, "tmp/junk")); !os.IsNotExist(err) {
		t.Fatal("whited-out file still present")
	}
	if _, err := os.Lstat(filepath.Join(root, "var/log")); !os.IsNotExist(err) {
		t.Fatal("whited-out directory still present")
	}
	if got := readFile(t, filepath.Join(root, "tmp/keep")); got != "survivor" {
		t.Fatalf("tmp/keep = %q", got)
	}
}

func TestBuildOpaqueWhiteout(t *testing.T) {
	s := newLayerStore(t)
	base := gzipLayer(t, s, []entry{
		file("cfg/a.conf", "a"),
		file("cfg/b.conf", "b"),
	})
	top := gzipLayer(t, s, []entry{
		{name: "cfg/.wh..wh..opq", typ: tar.TypeReg, mode: 0},
		file("cfg/new.conf", "n"),
	})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{base, top}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "cfg"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "new.conf" {
		t.Fatalf("cfg holds %v, want only new.conf", entries)
	}
}

func TestBuildHardlink(t *testing.T) {
	s := newLayerStore(t)
	layer := gzipLayer(t, s, []entry{
		file("bin/busybox", "binary"),
		{name: "bin/ls", typ: tar.TypeLink, link: "bin/busybox"},
	})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{layer}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "bin/ls")); got != "binary" {
		t.Fatalf("bin/ls = %q", got)
	}
}

func TestBuildUncompressedLayer(t *testing.T) {
	s := newLayerStore(t)
	layer := putLayer(t, s, ocispec.MediaTypeImageLayer, tarBytes(t, []entry{
		file("plain", "no gzip"),
	}))

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := Build(context.Background(), s, []ocispec.Descriptor{layer}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "plain")); got != "no gzip" {
		t.Fatalf("plain = %q", got)
	}
}

func TestBuildReplacesStaleRootfs(t *testing.T) {
	s := newLayerStore(t)
	layer := gzipLayer(t, s, []entry{file("fresh", "y")})

	root := filepath.Join(t.TempDir(), "rootfs")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "stale"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Build(context.Background(), s, []ocispec.Descriptor{layer}, root); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(root, "stale")); !os.IsNotExist(err) {
		t.Fatal("stale file survived rebuild")
	}
}

func TestBuildDeterministic(t *testing.T) {
	s := newLayerStore(t)
	layers := []ocispec.Descriptor{
		gzipLayer(t, s, []entry{
			dir("usr/share"),
			file("usr/share/one", "1"),
			file("etc/conf", "base"),
		}),
		gzipLayer(t, s, []entry{
			file("etc/conf", "top"),
			{name: "usr/.wh.share", typ: tar.TypeReg, mode: 0},
		}),
	}

	rootA := filepath.Join(t.TempDir(), "a")
	rootB := filepath.Join(t.TempDir(), "b")
	for _, root := range []string{rootA, rootB} {
		if err := Build(context.Background(), s, layers, root); err != nil {
			t.Fatalf("Build %s: %v", root, err)
		}
	}

	if a, b := treeSnapshot(t, rootA), treeSnapshot(t, rootB); a != b {
		t.Fatalf("trees differ:\n%s\n---\n%s", a, b)
	}
}

// Summarizes a tree as path/mode/content-hash lines for comparison.
func treeSnapshot(t *testing.T, root string) string {
	t.Helper()
	var buf bytes.Buffer
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%s %s", rel, info.Mode())
		if d.Type().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			h := sha256.New()
			if _, err := io.Copy(h, f); err != nil {
				f.Close()
				return err
			}
			f.Close()
			fmt.Fprintf(&buf, " %x", h.Sum(nil))
		}
		buf.WriteByte('\n')
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return buf.String()
}

func TestBuildUnsupportedMediaType(t *testing.T) {
	s := newLayerStore(t)
	layer := putLayer(t, s, "application/x-unknown-layer", []byte("??"))

	root := filepath.Join(t.TempDir(), "rootfs")
	err := Build(context.Background(), s, []ocispec.Descriptor{layer}, root)
	if !errors.Is(err, ErrUnsupportedLayer) {
		t.Fatalf("Build error = %v, want ErrUnsupportedLayer", err)
	}
	if _, statErr := os.Lstat(root); !os.IsNotExist(statErr) {
		t.Fatal("failed build left a partial rootfs behind")
	}
}

func TestBuildCorruptLayer(t *testing.T) {
	s := newLayerStore(t)
	good := gzipLayer(t, s, []entry{file("ok", "fine")})
	bad := putLayer(t, s, ocispec.MediaTypeImageLayerGzip, []byte("not gzip at all"))

	root := filepath.Join(t.TempDir(), "rootfs")
	err := Build(context.Background(), s, []ocispec.Descriptor{good, bad}, root)
	if err == nil {
		t.Fatal("Build accepted a corrupt layer")
	}
	if _, statErr := os.Lstat(root); !os.IsNotExist(statErr) {
		t.Fatal("failed build left a partial rootfs behind")
	}
}
