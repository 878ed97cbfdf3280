package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/history"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session_id]",
	Short: "List archived sessions, or show the state timeline of one",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := connectDB(cmd.Context(), true); err != nil {
			utils.Die("Archive unavailable", err, nil)
		}

		if len(args) == 0 {
			rows, err := DB.ListSessions(cmd.Context())
			if err != nil {
				utils.Die("Failed to list sessions", err, nil)
			}
			writeSessions(os.Stdout, rows)
			return
		}

		intervals, err := DB.GetSessionIntervals(cmd.Context(), args[0])
		if errors.Is(err, types.ErrNotFound) {
			utils.Die("No such session", err, nil)
		}
		if err != nil {
			utils.Die("Failed to load session intervals", err, nil)
		}
		writeIntervals(os.Stdout, intervals)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func writeSessions(w io.Writer, rows []store.SessionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tSTARTED\tDURATION\tBLINKS\tMICROSLEEPS\tSLEEP %\tINTERVALS\tRECOMMENDATION")
	fmt.Fprintln(tw, "--\t-------\t-------\t--------\t------\t-----------\t-------\t---------\t--------------")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.1f\t%d\t%s\n",
			r.ID, r.SubjectID, r.StartedAt.Local().Format("2006-01-02 15:04"),
			fmtTime(r.Summary.DurationSeconds), r.Summary.TotalBlinks, r.Summary.MicrosleepCount,
			r.Summary.FinalSleepPercentage, r.IntervalCount, r.Summary.Recommendation)
	}
	tw.Flush()
}

func writeIntervals(w io.Writer, intervals []history.Interval) {
	if len(intervals) == 0 {
		fmt.Fprintln(w, "Session has no recorded intervals.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "STATE\tSTART\tEND\tDURATION")
	fmt.Fprintln(tw, "-----\t-----\t---\t--------")
	for _, iv := range intervals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fs\n",
			iv.State, iv.Start.Local().Format("15:04:05"), iv.End.Local().Format("15:04:05"), iv.Duration)
	}
	tw.Flush()
}

func fmtTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
