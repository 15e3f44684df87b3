package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/engine/engine"
)

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Initialize every registered backend and report which are available",
		Args:  cobra.ExactArgs(0),
		RunE:  BackendsHandler,
	}
}

// BackendsHandler probes the backends of the default engine and prints a table.
func BackendsHandler(cmd *cobra.Command, _ []string) error {
	e := engine.Default()
	results, err := e.Backends().Probe(cmd.Context())
	if err != nil {
		return err
	}

	data := make([][]string, 0, len(results))
	for _, r := range results {
		status, memory := "available", humanize.IBytes(uint64(r.Memory.NumBytes)) //nolint:gosec // G115: byte counts are never negative
		if r.Err != nil {
			status, memory = fmt.Sprintf("unavailable: %v", r.Err), "-"
		}
		data = append(data, []string{r.Name, strconv.Itoa(r.Priority), status, memory})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "PRIORITY", "STATUS", "MEMORY"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()
	return nil
}
