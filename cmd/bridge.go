package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/bridge"
	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/mqttc"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// BridgeOptions holds the flags of the bridge command
type BridgeOptions struct {
	Port   string
	MQTT   bool
	DryRun bool
	Poll   time.Duration
	Alpha  float64
}

var bridgeOpts BridgeOptions

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Forward the smoothed sleep percentage to the indicator device",
	Long: `Polls the exported snapshot and sends "P" + the smoothed percentage
(3 digits) whenever it changes. "P000" is sent on shutdown.`,
	Run: func(cmd *cobra.Command, args []string) {
		runBridge(cmd.Context(), bridgeOpts)
	},
}

func init() {
	bridgeCmd.Flags().StringVarP(&bridgeOpts.Port, "port", "p", "", "Device path receiving commands (e.g. /dev/ttyUSB0)")
	bridgeCmd.Flags().BoolVar(&bridgeOpts.MQTT, "mqtt", false, "Publish commands to the MQTT bridge topic")
	bridgeCmd.Flags().BoolVar(&bridgeOpts.DryRun, "dry-run", false, "Only log the commands")
	bridgeCmd.Flags().DurationVar(&bridgeOpts.Poll, "poll", 0, "Poll interval (default: $BRIDGE_POLL_INTERVAL or 3s)")
	bridgeCmd.Flags().Float64Var(&bridgeOpts.Alpha, "alpha", 0, "Smoothing factor in (0,1] (default: $BRIDGE_ALPHA or 0.7)")
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(ctx context.Context, opts BridgeOptions) {
	if err := validateBridgeFlags(&opts, Cfg); err != nil {
		utils.Die("Invalid bridge flags", err, nil)
	}

	t, desc, err := openTransport(opts, Cfg.MQTT, Log)
	if err != nil {
		utils.Die("Failed to open bridge transport", err, nil)
	}
	fmt.Fprintf(os.Stderr, "🔌 Bridge: %s -> %s (every %s, alpha %.2f)\n", Cfg.SnapshotPath(), desc, opts.Poll, opts.Alpha)

	b := bridge.New(Cfg.SnapshotPath(), t, opts.Poll, opts.Alpha, Log)
	if err := b.Run(ctx); err != nil {
		utils.Die("Bridge stopped", err, nil)
	}
	fmt.Fprintf(os.Stderr, "💤 Indicator off (last displayed %d%%).\n", b.Displayed())
}

// openTransport picks exactly one transport from the flags.
func openTransport(opts BridgeOptions, mc config.MQTTConfig, logger *zap.Logger) (bridge.Transport, string, error) {
	switch {
	case opts.DryRun:
		return bridge.LogTransport{Logger: logger}, "log", nil
	case opts.MQTT:
		client, err := mqttc.Connect(mc, mqttConnectTimeout, logger)
		if err != nil {
			return nil, "", err
		}
		return bridge.NewMQTTTransport(client, mc.BridgeTopic, client.Disconnect), "mqtt " + mc.BridgeTopic, nil
	default:
		d, err := bridge.OpenDevice(opts.Port)
		if err != nil {
			return nil, "", err
		}
		return d, opts.Port, nil
	}
}

// validateBridgeFlags requires exactly one transport and fills poll/alpha from cfg.
func validateBridgeFlags(opts *BridgeOptions, cfg *config.Config) error {
	chosen := 0
	if opts.Port != "" {
		chosen++
	}
	if opts.MQTT {
		chosen++
	}
	if opts.DryRun {
		chosen++
	}
	if chosen != 1 {
		return fmt.Errorf("choose exactly one of --port, --mqtt, --dry-run")
	}
	if opts.MQTT && !cfg.MQTT.Enabled() {
		return fmt.Errorf("--mqtt needs MQTT_BROKER to be set")
	}

	if opts.Poll == 0 {
		opts.Poll = cfg.BridgePollInterval
	}
	if opts.Poll < 0 {
		return fmt.Errorf("poll interval must be positive, got %s", opts.Poll)
	}
	if opts.Alpha == 0 {
		opts.Alpha = cfg.BridgeAlpha
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %v", opts.Alpha)
	}
	return nil
}
