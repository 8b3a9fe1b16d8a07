package rootfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseMount(t *testing.T) {
	m, err := ParseMount("/host/data:/srv/data")
	if err != nil {
		t.Fatalf("ParseMount: %v", err)
	}
	if m.Source != "/host/data" || m.Target != "/srv/data" {
		t.Fatalf("mount = %+v", m)
	}

	for _, bad := range []string{"", "/only/source", ":/target", "/source:"} {
		if _, err := ParseMount(bad); err == nil {
			t.Fatalf("ParseMount(%q) accepted", bad)
		}
	}
}

func TestApplyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app.conf")
	if err := os.WriteFile(src, []byte("port=8080\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root := t.TempDir()
	if err := Apply(root, []Mount{{Source: src, Target: "/etc/app/app.conf"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "etc/app/app.conf"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "port=8080\n" {
		t.Fatalf("content = %q", got)
	}

	info, err := os.Stat(filepath.Join(root, "etc/app/app.conf"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestApplyDirectoryTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "inner.txt"), []byte("deep"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("sub/inner.txt", filepath.Join(src, "alias")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	root := t.TempDir()
	if err := Apply(root, []Mount{{Source: src, Target: "/data"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "data/sub/inner.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "deep" {
		t.Fatalf("content = %q", got)
	}
	link, err := os.Readlink(filepath.Join(root, "data/alias"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if link != "sub/inner.txt" {
		t.Fatalf("alias -> %q", link)
	}
}

func TestApplyReplacesImageContent(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc/motd"), []byte("from image"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := filepath.Join(t.TempDir(), "motd")
	if err := os.WriteFile(src, []byte("from host"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Apply(root, []Mount{{Source: src, Target: "/etc/motd"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "etc/motd"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "from host" {
		t.Fatalf("content = %q", got)
	}
}

func TestApplyOrderLastWins(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	for d, content := range map[string]string{dirA: "first", dirB: "second"} {
		if err := os.WriteFile(filepath.Join(d, "f"), []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	root := t.TempDir()
	mounts := []Mount{
		{Source: dirA, Target: "/data"},
		{Source: dirB, Target: "/data"},
	}
	if err := Apply(root, mounts); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "data/f"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("content = %q, want second", got)
	}
}

func TestApplyMissingSource(t *testing.T) {
	err := Apply(t.TempDir(), []Mount{{Source: "/no/such/path", Target: "/data"}})
	if !errors.Is(err, ErrVolumeSource) {
		t.Fatalf("Apply error = %v, want ErrVolumeSource", err)
	}
}
