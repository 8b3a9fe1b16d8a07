package cli

import (
	"context"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Represents the 'pbcr images' command.
type ImagesCmd struct{}

// Executes the images command, listing pulled images.
func (c *ImagesCmd) Run(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	images, err := s.ListImages()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Tags", "Digest"})
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")

	for _, img := range images {
		table.Append([]string{
			img.Repository,
			strings.Join(img.Tags, ","),
			shortDigest(img.Digest.String()),
		})
	}
	table.Render()
	return nil
}

// Truncates a digest to its familiar 12-character form.
func shortDigest(dgst string) string {
	encoded := strings.TrimPrefix(dgst, "sha256:")
	if len(encoded) > 12 {
		encoded = encoded[:12]
	}
	return encoded
}
