package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/report"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [document.json]",
		Short: "Summarize a saved run document",
		Long: `Read a run document written by simcore and print its summary.

The document is read from the named file, or from stdin when the argument
is omitted or "-". With --json only the aggregate object is printed.

Examples:
  simcore --episodes 500 > run.json && simcore summarize run.json
  simcore --seed 9 | simcore summarize --rows 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			rows, _ := cmd.Flags().GetInt("rows")

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open document: %w", err)
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			batch, err := report.Decode(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				agg, err := report.EncodeAggregate(batch.Aggregate)
				if err != nil {
					return fmt.Errorf("failed to encode aggregate: %w", err)
				}
				_, err = fmt.Fprintf(out, "%s\n", agg)
				return err
			}
			return report.WriteText(out, batch, rows)
		},
	}

	cmd.Flags().Int("rows", 50, "Maximum episode rows to print")

	return cmd
}
