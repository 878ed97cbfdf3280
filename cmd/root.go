package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Cfg is the configuration shared by subcommands, loaded in PersistentPreRunE
	Cfg *config.Config
	// Log is the structured logger shared by subcommands
	Log *zap.Logger
	// DB is the optional archive connection, opened only by commands that need it
	DB *store.Store
)

// Persistent flag values. Empty means "keep the environment value".
var (
	dbURL     string
	dataDir   string
	logLevel  string
	logFormat string
)

// Version is the application version.
const Version = "0.1.0"

const dbConnectTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:     "vigil",
	Short:   "Driver drowsiness monitor: eye state, blinks, microsleeps and sleepiness score",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		applyFlagOverrides(cfg)
		Cfg = cfg

		Log, err = logger.New(Cfg.LogLevel, Cfg.LogFormat, "vigil")
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
		if Log != nil {
			_ = Log.Sync()
		}
	},
}

// applyFlagOverrides lets persistent flags win over env and .env values.
func applyFlagOverrides(cfg *config.Config) {
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
}

// connectDB opens the archive once. With required=false a missing URL is not an error
// and DB stays nil; the session is then only exported to files.
func connectDB(ctx context.Context, required bool) error {
	if DB != nil {
		return nil
	}
	if Cfg.DatabaseURL == "" {
		if required {
			return fmt.Errorf("no database configured (set DATABASE_URL or --db)")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	s, err := store.New(ctx, Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the session archive (default: $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding calibration, snapshot and history files (default: $VIGIL_DATA_DIR or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (default: $LOG_FORMAT or console)")
}
