package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/vigil/internal/calibration"
	"github.com/andresmejia3/vigil/internal/mqttc"
	"github.com/andresmejia3/vigil/internal/notify"
	"github.com/andresmejia3/vigil/internal/report"
	"github.com/andresmejia3/vigil/internal/session"
	"github.com/andresmejia3/vigil/internal/snapshot"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/andresmejia3/vigil/internal/worker"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout = 10 * time.Second
	exportTimeout      = 30 * time.Second
)

// MonitorOptions holds the flags of the monitor command
type MonitorOptions struct {
	ReplayPath  string
	Script      string
	Camera      int
	SubjectID   string
	SubjectType string
	NoArchive   bool
}

var monitorOpts MonitorOptions

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a monitoring session over live landmarks or a recorded replay",
	Long: `Runs the frame loop until the landmark source ends, Ctrl+C, or "quit".

While running, type commands on stdin:
  apply <name>   save <name>   edit <name> <value>   delete <name>
  up   down   set <value>   list   quit`,
	Run: func(cmd *cobra.Command, args []string) {
		runMonitor(cmd.Context(), monitorOpts)
	},
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorOpts.ReplayPath, "replay", "r", "", "Replay a JSON-lines landmark recording instead of the live camera")
	monitorCmd.Flags().StringVarP(&monitorOpts.Script, "script", "s", "python/landmarks.py", "Landmark extraction script started with python3")
	monitorCmd.Flags().IntVarP(&monitorOpts.Camera, "camera", "c", 0, "Camera index passed to the landmark script")
	monitorCmd.Flags().StringVar(&monitorOpts.SubjectID, "subject", "", "Subject id written to the snapshot (default: $VIGIL_SUBJECT_ID or 1)")
	monitorCmd.Flags().StringVar(&monitorOpts.SubjectType, "type", "", "Subject type written to the snapshot (default: $VIGIL_SUBJECT_TYPE or Driver)")
	monitorCmd.Flags().BoolVar(&monitorOpts.NoArchive, "no-archive", false, "Do not archive the session to PostgreSQL even if a database is configured")
	rootCmd.AddCommand(monitorCmd)
}

// runMonitor wires the landmark source, calibration store, snapshot publisher,
// alert notifier and export sinks around one session, then drives it.
func runMonitor(ctx context.Context, opts MonitorOptions) {
	if err := validateMonitorFlags(&opts); err != nil {
		utils.Die("Invalid monitor flags", err, nil)
	}

	// 1. Calibration profiles
	calib := calibration.New(Cfg.CalibrationPath(), Log)
	calib.Load()
	active := calib.Active()
	fmt.Fprintf(os.Stderr, "🎚️  Threshold profile: %s (%.2f)\n", active.Name, active.Value)

	// 2. Landmark source
	src, py, err := openSource(opts)
	if err != nil {
		utils.Die("Failed to start landmark source", err, py)
	}
	defer src.Close()

	// 3. Exported snapshot (+ optional redis mirror)
	pubOpts := []snapshot.PublisherOption{snapshot.WithInterval(Cfg.SnapshotInterval)}
	if Cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     Cfg.Redis.Addr,
			Password: Cfg.Redis.Password,
			DB:       Cfg.Redis.DB,
		})
		defer rdb.Close()
		pubOpts = append(pubOpts, snapshot.WithMirror(snapshot.NewRedisKVStore(rdb), Cfg.Redis.SnapshotTTL))
		Log.Info("mirroring snapshot to redis", zap.String("addr", Cfg.Redis.Addr))
	}
	publisher := snapshot.NewPublisher(Cfg.SnapshotPath(), Log, pubOpts...)

	// 4. Alerts (+ optional MQTT)
	var notifyOpts []notify.Option
	if Cfg.MQTT.Enabled() {
		client, err := mqttc.Connect(Cfg.MQTT, mqttConnectTimeout, Log)
		if err != nil {
			utils.ShowError("MQTT unavailable, alerts are logged only", err, nil)
		} else {
			defer client.Disconnect()
			notifyOpts = append(notifyOpts, notify.WithMQTT(client, Cfg.MQTT.AlertTopic))
		}
	}
	alerts := notify.Start(Log, notifyOpts...)

	// 5. Archive
	if !opts.NoArchive {
		if err := connectDB(ctx, false); err != nil {
			utils.ShowError("Archive unavailable, exporting to files only", err, nil)
		}
	}

	// 6. Session loop
	sess := session.New(session.Config{
		SubjectID:   opts.SubjectID,
		SubjectType: opts.SubjectType,
		HistoryPath: Cfg.HistoryPath(),
	}, calib, Log, session.WithAlerts(alerts), session.WithSnapshots(publisher))

	fmt.Fprintf(os.Stderr, "👁️  Session %s started (type \"quit\" to stop)\n", sess.ID)

	actions := session.ReadActions(ctx, os.Stdin, os.Stderr)
	export, runErr := sess.Run(ctx, src, actions, os.Stderr)

	// 7. Export. Ctrl+C may have cancelled ctx, the sinks still need a live one.
	exportCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	if failed := report.Deliver(exportCtx, Log, export, exportSinks()...); failed > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d session export(s) failed, see logs\n", failed)
	}

	if err := report.Print(os.Stderr, export); err != nil {
		Log.Warn("failed to print summary", zap.Error(err))
	}

	if runErr != nil {
		src.Close()
		utils.Die("Landmark source failed", runErr, py)
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Session complete. Summary written to %s\n", report.FileSink{Dir: Cfg.SessionPath()}.Path())
}

// openSource returns the replay source when --replay is set, otherwise the python
// landmark worker. The SafeCommand is returned so crash logs can be shown.
func openSource(opts MonitorOptions) (worker.Source, *utils.SafeCommand, error) {
	if opts.ReplayPath != "" {
		fmt.Fprintf(os.Stderr, "📼 Replaying %s\n", opts.ReplayPath)
		src, err := worker.OpenReplay(opts.ReplayPath, worker.WithProgress(os.Stderr))
		return src, nil, err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting landmark engine...")
	w, err := worker.NewPythonWorker(opts.Script, "--camera", strconv.Itoa(opts.Camera))
	if err != nil {
		return nil, nil, err
	}
	return w, w.Cmd, nil
}

func exportSinks() []report.Sink {
	sinks := []report.Sink{report.FileSink{Dir: Cfg.SessionPath()}}
	if DB != nil {
		sinks = append(sinks, DB)
	}
	return sinks
}

// validateMonitorFlags checks CLI arguments before any process is spawned and
// fills subject defaults from the configuration.
func validateMonitorFlags(opts *MonitorOptions) error {
	if opts.ReplayPath != "" {
		info, err := os.Stat(opts.ReplayPath)
		if err != nil {
			return fmt.Errorf("replay file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("replay path %s is a directory, expected a JSON-lines file", opts.ReplayPath)
		}
	} else if opts.Script == "" {
		return fmt.Errorf("a landmark script or --replay is required")
	}
	if opts.Camera < 0 {
		return fmt.Errorf("camera index must be >= 0, got %d", opts.Camera)
	}
	if opts.SubjectID == "" && Cfg != nil {
		opts.SubjectID = Cfg.SubjectID
	}
	if opts.SubjectType == "" && Cfg != nil {
		opts.SubjectType = Cfg.SubjectType
	}
	return nil
}
