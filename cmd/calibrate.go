package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/calibration"
	"github.com/andresmejia3/vigil/internal/session"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Manage saved eye-openness threshold profiles",
}

var calibrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles, most recently used first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session.WriteProfiles(os.Stdout, loadCalibration())
	},
}

var calibrateRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the recently used profiles",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		writeRecent(os.Stdout, loadCalibration())
	},
}

var calibrateSaveCmd = &cobra.Command{
	Use:   "save <name> <value>",
	Short: "Create or overwrite a profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		calibrateOrDie(runCalibrateSave(os.Stdout, loadCalibration(), args[0], args[1]))
	},
}

var calibrateEditCmd = &cobra.Command{
	Use:   "edit <name> <value>",
	Short: "Change the value of an existing profile",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		calibrateOrDie(runCalibrateEdit(os.Stdout, loadCalibration(), args[0], args[1]))
	},
}

var calibrateDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a profile (Default cannot be removed)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		calibrateOrDie(runCalibrateDelete(os.Stdout, loadCalibration(), args[0]))
	},
}

func init() {
	calibrateCmd.AddCommand(calibrateListCmd, calibrateRecentCmd, calibrateSaveCmd, calibrateEditCmd, calibrateDeleteCmd)
	rootCmd.AddCommand(calibrateCmd)
}

func loadCalibration() *calibration.Store {
	calib := calibration.New(Cfg.CalibrationPath(), Log)
	calib.Load()
	return calib
}

// calibrateOrDie exits on rejected input. A failed write was already applied
// in memory and logged, so it only warns.
func calibrateOrDie(err error) {
	switch {
	case err == nil:
	case errors.Is(err, types.ErrIO):
		utils.ShowError("Profile change could not be written to disk", err, nil)
	default:
		utils.Die("Calibration command failed", err, nil)
	}
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", s, types.ErrConfig)
	}
	return v, nil
}

func runCalibrateSave(w io.Writer, calib *calibration.Store, name, value string) error {
	v, err := parseValue(value)
	if err != nil {
		return err
	}
	p, err := calib.Save(name, v)
	if p.Name == "" {
		return err
	}
	fmt.Fprintf(w, "✅ Saved %s (%.2f)\n", p.Name, p.Value)
	return err
}

func runCalibrateEdit(w io.Writer, calib *calibration.Store, name, value string) error {
	v, err := parseValue(value)
	if err != nil {
		return err
	}
	p, err := calib.Edit(name, v)
	if p.Name == "" {
		return err
	}
	fmt.Fprintf(w, "✅ %s is now %.2f\n", p.Name, p.Value)
	return err
}

func runCalibrateDelete(w io.Writer, calib *calibration.Store, name string) error {
	err := calib.Delete(name)
	if err != nil && !errors.Is(err, types.ErrIO) {
		return err
	}
	fmt.Fprintf(w, "🗑️  Deleted %s\n", name)
	return err
}

func writeRecent(w io.Writer, calib *calibration.Store) {
	recent := calib.Recent()
	if len(recent) == 0 {
		fmt.Fprintln(w, "No recently used profiles.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tVALUE\tLAST USED")
	fmt.Fprintln(tw, "-\t----\t-----\t---------")
	for i, p := range recent {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\n", i+1, p.Name, p.Value, fmtLastUsed(p))
	}
	tw.Flush()
}

func fmtLastUsed(p calibration.Profile) string {
	if p.LastUsedAt.IsZero() {
		return "-"
	}
	return p.LastUsedAt.Local().Format("2006-01-02 15:04")
}
