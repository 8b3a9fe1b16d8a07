//go:build linux

package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

const (

	// Marks a re-exec of the pbcr binary as the container init process.
	initEnv = "PBCR_INIT"

	// Carries the serialized container spec across the re-exec.
	initSpecEnv = "PBCR_INIT_SPEC"

	// Mount flags for the container's /proc.
	defaultMountFlags = unix.MS_NOEXEC | unix.MS_NOSUID | unix.MS_NODEV
)

// Starts container processes in fresh mount, PID, and UTS namespaces.
//
// The child is a re-exec of this binary; cmd/pbcr diverts it into
// [RunInit] before the CLI runs, where it pivots into the rootfs and execs
// the container entrypoint. The network namespace is deliberately shared
// with the host.
type namespaceIsolator struct{}

// Returns the production isolator for this platform.
func NewIsolator() Isolator {
	return &namespaceIsolator{}
}

func (*namespaceIsolator) Start(spec *Spec) (Proc, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("/proc/self/exe")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		initEnv+"=1",
		initSpecEnv+"="+string(payload),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS,
		Setpgid:    true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &namespaceProc{cmd: cmd}, nil
}

// A container process backed by a real child of this process.
type namespaceProc struct {
	cmd *exec.Cmd
}

func (p *namespaceProc) PID() int {
	return p.cmd.Process.Pid
}

func (p *namespaceProc) Wait() (int, error) {
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

// Kills the whole process group so the container init and anything it
// spawned are terminated together.
func (p *namespaceProc) Kill() error {
	return unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
}

// Kills the process group led by pid. Used when force-removing a container
// whose launcher is no longer attached.
func killProcessGroup(pid int) {
	unix.Kill(-pid, unix.SIGKILL)
}

// Reports whether this process is a container init re-exec.
func IsInit() bool {
	return os.Getenv(initEnv) == "1"
}

// The container init path, running as PID 1 inside fresh namespaces.
//
// Confines the process to the spec's rootfs, applies hostname, working
// directory and environment, and execs the entrypoint. Runs before any CLI
// or logging setup; failures are reported on stderr and exit with 126/127
// in the manner of a shell.
func RunInit() {
	var spec Spec
	if err := json.Unmarshal([]byte(os.Getenv(initSpecEnv)), &spec); err != nil {
		fmt.Fprintln(os.Stderr, "pbcr-init: bad spec:", err)
		os.Exit(126)
	}

	if err := setupRoot(&spec); err != nil {
		fmt.Fprintln(os.Stderr, "pbcr-init:", err)
		os.Exit(126)
	}

	argv := spec.Process.Args
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "pbcr-init: empty argv")
		os.Exit(126)
	}
	binary, err := lookPath(argv[0], spec.Process.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pbcr-init:", err)
		os.Exit(127)
	}

	if err := unix.Exec(binary, argv, spec.Process.Env); err != nil {
		fmt.Fprintln(os.Stderr, "pbcr-init: exec:", err)
		os.Exit(126)
	}
}

// Changes the filesystem root to the assembled rootfs.
//
// Mount propagation to the host is cut off first, then the rootfs is
// bind-mounted over itself so it becomes a mount point, /proc is mounted
// inside it for the new PID namespace, and the mount is moved over / and
// entered via chroot. The hostname is set inside the new UTS namespace.
func setupRoot(spec *Spec) error {
	rootfs := spec.Rootfs

	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make / private: %w", err)
	}
	if err := unix.Mount(rootfs, rootfs, "bind", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind rootfs: %w", err)
	}

	procDir := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procDir, 0755); err != nil {
		return err
	}
	if err := unix.Mount("proc", procDir, "proc", defaultMountFlags, ""); err != nil {
		return fmt.Errorf("mount proc: %w", err)
	}

	if spec.Name != "" {
		if err := unix.Sethostname([]byte(spec.Name)); err != nil {
			return fmt.Errorf("set hostname: %w", err)
		}
	}

	if err := unix.Chdir(rootfs); err != nil {
		return err
	}
	if err := unix.Mount(rootfs, "/", "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("move rootfs over /: %w", err)
	}
	if err := unix.Chroot("."); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return err
	}

	return unix.Chdir(spec.Process.Cwd)
}

// Resolves a command name against the PATH from the container environment.
func lookPath(name string, env []string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	for _, entry := range env {
		if len(entry) > 5 && entry[:5] == "PATH=" {
			os.Setenv("PATH", entry[5:])
			break
		}
	}
	return exec.LookPath(name)
}
