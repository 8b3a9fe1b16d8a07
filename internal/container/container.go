package container

import (
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Everything needed to launch one container.
//
// A Spec is created at run invocation time, after the rootfs has been
// assembled and volumes applied. It is serialized across the re-exec into
// the container init process.
type Spec struct {
	Name       string        `json:"name"`       // Container name, also used as the hostname.
	Image      string        `json:"image"`      // Image reference the container was created from.
	Rootfs     string        `json:"rootfs"`     // Assembled root filesystem directory.
	Process    specs.Process `json:"process"`    // Resolved entrypoint, environment, and working directory.
	AutoRemove bool          `json:"autoRemove"` // Whether to delete the container after it exits.
}

// Resolves the process to run from the image config and CLI overrides.
//
// An entrypoint override replaces the image-declared entrypoint; trailing
// command arguments replace the image-declared command. The final argv is
// entrypoint followed by command, per standard image semantics. Environment
// and working directory come from the image config; the working directory
// defaults to /.
func ResolveProcess(config ocispec.Image, entrypoint string, args []string) (specs.Process, error) {
	ep := config.Config.Entrypoint
	if entrypoint != "" {
		ep = []string{entrypoint}
	}

	cmd := config.Config.Cmd
	if len(args) > 0 {
		cmd = args
	}

	argv := append(append([]string{}, ep...), cmd...)
	if len(argv) == 0 {
		return specs.Process{}, ErrNoEntrypoint
	}

	cwd := config.Config.WorkingDir
	if cwd == "" {
		cwd = "/"
	}
	cwd = filepath.Clean(cwd)

	env := config.Config.Env
	if !hasEnv(env, "PATH") {
		env = append(env, "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin")
	}

	return specs.Process{
		Args: argv,
		Env:  env,
		Cwd:  cwd,
	}, nil
}

// Reports whether the environment slice defines the given variable.
func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, entry := range env {
		if len(entry) >= len(prefix) && entry[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
