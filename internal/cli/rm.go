package cli

import (
	"context"

	"github.com/tehasdf/pbcr/internal/container"
)

// Represents the 'pbcr rm' command.
type RmCmd struct {
	Names []string `arg:"" name:"name" help:"Containers to remove."`
	Force bool     `short:"f" help:"Kill a running container before removing it."`
}

// Executes the rm command, deleting container records and rootfs trees.
func (c *RmCmd) Run(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	launcher := container.NewLauncher(s, nil)
	for _, name := range c.Names {
		if err := launcher.Remove(name, c.Force); err != nil {
			return err
		}
	}
	return nil
}
