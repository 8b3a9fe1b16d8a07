package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/tehasdf/pbcr/internal/container"
	"github.com/tehasdf/pbcr/internal/registry"
	"github.com/tehasdf/pbcr/internal/rootfs"
)

// Isolation backend handed to the launcher. Nil selects the platform
// default; tests substitute a double so the whole pipeline runs without
// privileges.
var isolator container.Isolator

// Represents the 'pbcr run' command.
type RunCmd struct {
	Reference  string   `arg:"" help:"Image reference to run."`
	Command    []string `arg:"" optional:"" passthrough:"" help:"Command overriding the image command."`
	Name       string   `short:"n" help:"Container name. Generated when omitted."`
	Rm         bool     `help:"Remove the container and its rootfs after it exits."`
	Detach     bool     `help:"Start the container in the background and print its name."`
	Entrypoint string   `help:"Override the image entrypoint."`
	Volumes    []string `short:"v" name:"volume" help:"Copy a host path into the container (host:container). Repeatable." placeholder:"HOST:CTR"`
	PlainHTTP  bool     `help:"Use plain HTTP for registry requests (local registries)."`
}

// Executes the run command.
//
// Runs the full pipeline: pull, rootfs assembly, volume injection, and
// launch. Blocks until the container exits and propagates its exit status
// as the pbcr exit status; with --detach it returns as soon as the
// container is running, printing its name. Partial artifacts from a failed
// stage are removed before the error is reported.
func (c *RunCmd) Run(ctx context.Context) error {
	if c.Detach && c.Rm {
		return errors.New("--detach cannot be combined with --rm: nothing waits to remove the container")
	}

	s, err := openStore()
	if err != nil {
		return err
	}

	mounts := make([]rootfs.Mount, 0, len(c.Volumes))
	for _, v := range c.Volumes {
		m, err := rootfs.ParseMount(v)
		if err != nil {
			return err
		}
		mounts = append(mounts, m)
	}

	var opts []registry.Option
	if c.PlainHTTP {
		opts = append(opts, registry.WithPlainHTTP())
	}
	img, err := registry.New(s, opts...).Pull(ctx, c.Reference)
	if err != nil {
		return err
	}

	name := c.Name
	if name == "" {
		name = uuid.NewString()
	}

	rootfsDir := s.RootfsDir(name)
	if err := rootfs.Build(ctx, s, img.Manifest.Layers, rootfsDir); err != nil {
		os.RemoveAll(s.ContainerDir(name))
		return err
	}
	if err := rootfs.Apply(rootfsDir, mounts); err != nil {
		// The assembled rootfs is a partial artifact of the aborted run.
		os.RemoveAll(s.ContainerDir(name))
		return err
	}

	process, err := container.ResolveProcess(img.Config, c.Entrypoint, c.Command)
	if err != nil {
		os.RemoveAll(s.ContainerDir(name))
		return err
	}

	spec := &container.Spec{
		Name:       name,
		Image:      img.Name.String(),
		Rootfs:     rootfsDir,
		Process:    process,
		AutoRemove: c.Rm,
	}

	launcher := container.NewLauncher(s, isolator)

	if c.Detach {
		if _, err := launcher.Start(spec); err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	}

	status, err := launcher.Run(ctx, spec)
	if err != nil {
		return err
	}
	if status != 0 {
		return &exitStatusError{code: status}
	}
	return nil
}
