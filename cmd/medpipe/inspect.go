package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	tbl "github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/matrixio"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <matrix.tab>",
		Short: "Print the provenance header and a column summary of a matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := matrixio.ReadHeader(args[0])
			if err != nil {
				return err
			}
			t, err := matrixio.Read(args[0])
			if err != nil {
				return err
			}
			renderMatrix(cmd.OutOrStdout(), header, t)
			return nil
		},
	}
}

func renderMatrix(w io.Writer, header []string, t *tbl.Table) {
	for _, line := range header {
		_, _ = fmt.Fprintf(w, "# %s\n", line)
	}
	if len(header) > 0 {
		_, _ = fmt.Fprintln(w)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Column", "Kind", "Missing", "Mean"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Missing", Align: text.AlignRight},
		{Name: "Mean", Align: text.AlignRight},
	})
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColumnAt(i)
		mean := "-"
		if c.Kind != tbl.Categorical {
			if present := c.Present(); len(present) > 0 {
				mean = fmt.Sprintf("%.4g", stat.Mean(present, nil))
			}
		}
		tw.AppendRow(table.Row{c.Name, c.Kind.String(), c.CountMissing(), mean})
	}
	tw.Render()
	_, _ = fmt.Fprintf(w, "(%d rows, %d columns)\n", t.NumRows(), t.NumCols())
}
