package cli

import (
	"context"

	"github.com/tehasdf/pbcr/internal/registry"
)

// Represents the 'pbcr pull' command.
type PullCmd struct {
	References []string `arg:"" name:"reference" help:"Image references to pull."`
	PlainHTTP  bool     `help:"Use plain HTTP for registry requests (local registries)."`
}

// Executes the pull command.
//
// Each reference is resolved to a manifest and its config and layers are
// fetched into the content store. Blobs already cached are not fetched
// again.
func (c *PullCmd) Run(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	var opts []registry.Option
	if c.PlainHTTP {
		opts = append(opts, registry.WithPlainHTTP())
	}
	client := registry.New(s, opts...)

	for _, ref := range c.References {
		if _, err := client.Pull(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
