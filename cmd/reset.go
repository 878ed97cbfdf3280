package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (calibration, snapshot, history and session files, archive tables)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetFiles {
			if confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete calibration profiles, snapshot, history and session files?") {
				fmt.Println("🗑️  Clearing Data Files...")
				for _, p := range dataPaths(Cfg) {
					removePath(p)
				}
			}
		}

		if resetDB {
			if err := connectDB(cmd.Context(), false); err != nil {
				utils.Die("Archive unavailable", err, nil)
			}
			if DB == nil {
				fmt.Println("ℹ️  No database configured, skipping archive reset.")
			} else if confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all archive tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Drop the PostgreSQL archive tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete the JSON data files and the session export directory")
	rootCmd.AddCommand(resetCmd)
}

// dataPaths lists everything a monitoring session writes under the data dir.
func dataPaths(cfg *config.Config) []string {
	return []string{
		cfg.CalibrationPath(),
		cfg.SnapshotPath(),
		cfg.HistoryPath(),
		cfg.SessionPath(),
	}
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
