package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/vsoverseer/simcore/internal/models"
)

// WriteText prints a human-readable table of b to w. When maxRows is
// positive only the first maxRows episodes are listed.
func WriteText(w io.Writer, b models.Batch, maxRows int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUNLOCK\tOBJECTIVE\tSTABILITY\tELAPSED_S")

	rows := b.Episodes
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for i, ep := range rows {
		fmt.Fprintf(tw, "%d\t%.6f\t%s\t%.6f\t%.6f\n",
			i+1, ep.UnlockRate, yesNo(ep.ObjectiveComplete), ep.Stability, ep.ElapsedS)
	}
	if hidden := len(b.Episodes) - len(rows); hidden > 0 {
		fmt.Fprintf(tw, "...\t(%d more)\t\t\t\n", hidden)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	a := b.Aggregate
	_, err := fmt.Fprintf(w, "\nEpisodes: %d\nObjective rate: %.6f\nUnlock rate: %.6f\nStability rate: %.6f\nMean elapsed: %.6fs\n",
		a.Episodes, a.ObjectiveRate, a.UnlockRate, a.StabilityRate, a.MeanElapsedS)
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
