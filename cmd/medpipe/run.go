package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/medpipe/config"
	"github.com/YuminosukeSato/medpipe/pipeline"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one entity",
		Example: `  medpipe run --config plan.yaml
  medpipe run --config plan.yaml --entity LABK --rows 5000 --no-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
				return err
			}

			producer, closer, err := cfg.Producer()
			if err != nil {
				return err
			}
			defer closer.Close()

			task, err := cfg.BuildTask(producer)
			if err != nil {
				return err
			}
			o, err := pipeline.New(task, cfg.PipelineConfig(), pipeline.WithLogger(log.GetLoggerWithName("pipeline")))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			res, err := o.Run(ctx)
			if err != nil {
				slog.Error("run failed", "entity", task.Entity, log.ErrAttr(err))
				return err
			}
			renderRunResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration")
	cmd.Flags().String("entity", "", "Entity to run, e.g. a lab panel code")
	cmd.Flags().Int("rows", 0, "Number of raw episodes to extract")
	cmd.Flags().Int64("seed", 0, "Random seed for extraction, splitting and selection")
	cmd.Flags().String("data-root", "", "Root directory of matrices and reports")
	cmd.Flags().StringSlice("algorithms", nil, "Algorithms to train")
	cmd.Flags().Bool("no-cache", false, "Rebuild matrices even when cached copies exist")
	return cmd
}

func renderRunResult(w io.Writer, res *pipeline.RunResult) {
	_, _ = fmt.Fprintf(w, "Run %s: %s\n", res.RunID, res.State)
	_, _ = fmt.Fprintf(w, "Raw matrix:       %s (cached: %t)\n", res.RawPath, res.RawCacheHit)
	_, _ = fmt.Fprintf(w, "Processed matrix: %s (cached: %t)\n", res.ProcessedPath, res.ProcessedCacheHit)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Algorithm", "State", "Model", "Output"})
	for _, out := range res.Outcomes {
		output := out.ReportDir
		if out.State != pipeline.StateAnalyzed {
			output = out.ErrorReportPath
		}
		model := out.ModelPath
		if out.ModelReused {
			model += " (reused)"
		}
		t.AppendRow(table.Row{out.Algorithm, out.State, model, output})
	}
	t.Render()

	if res.SummaryPath != "" {
		_, _ = fmt.Fprintf(w, "Summary: %s\n", res.SummaryPath)
	}
	if res.WorkbookPath != "" {
		_, _ = fmt.Fprintf(w, "Workbook: %s\n", res.WorkbookPath)
	}
}
