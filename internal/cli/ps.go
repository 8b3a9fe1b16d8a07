package cli

import (
	"context"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Represents the 'pbcr ps' command.
type PsCmd struct{}

// Executes the ps command, listing containers and their lifecycle state.
func (c *PsCmd) Run(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	containers, err := s.ListContainers()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Image", "State", "PID"})
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")

	for _, ctr := range containers {
		pid := ""
		if ctr.PID > 0 {
			pid = strconv.Itoa(ctr.PID)
		}
		table.Append([]string{ctr.Name, ctr.Image, string(ctr.State), pid})
	}
	table.Render()
	return nil
}
