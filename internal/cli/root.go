// Package cli implements the handwheel command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ayusman/handwheel/internal/config"
	"github.com/ayusman/handwheel/internal/gesture"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/ayusman/handwheel/internal/cli.Version=...".
var Version = "dev"

// Main runs the command line with args.
func Main(ctx context.Context, args []string, out, errOut io.Writer) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "handwheel",
		Short:         "Steer with your hand",
		Long:          `Handwheel tracks a hand in the camera feed and broadcasts a steering angle and a fist flag to websocket subscribers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewVersionCmd())
	return root
}

// NewVersionCmd prints the build version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "handwheel %s\n", Version)
			return err
		},
	}
}

type serveFlags struct {
	configPath string
	host       string
	port       int
	camera     int
	mode       string
	mqttBroker string
	tray       bool
	logLevel   string
	dataDir    string
}

func (f *serveFlags) register(cmd *cobra.Command) {
	defaults := config.Default()

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&f.host, "host", defaults.Server.Host, "listen host")
	flags.IntVarP(&f.port, "port", "p", defaults.Server.Port, "listen port")
	flags.IntVar(&f.camera, "camera", defaults.Camera.DeviceID, "camera device id")
	flags.StringVar(&f.mode, "mode", string(defaults.Gesture.Mode), "fist detection: fingers|classifier")
	flags.StringVar(&f.mqttBroker, "mqtt-broker", "", "also publish to this MQTT broker, e.g. tcp://localhost:1883")
	flags.BoolVar(&f.tray, "tray", false, "show a system tray icon")
	flags.StringVar(&f.logLevel, "log-level", defaults.Log.Level, "debug|info|warn|error")
	flags.StringVar(&f.dataDir, "data-dir", defaults.DataDir, "directory for the settings database")
}

// resolve loads the config file, if any, and applies the flags the user set.
func (f *serveFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("camera") {
		cfg.Camera.DeviceID = f.camera
	}
	if changed("mode") {
		cfg.Gesture.Mode = gesture.Mode(f.mode)
	}
	if changed("mqtt-broker") {
		cfg.MQTT.Broker = f.mqttBroker
	}
	if changed("tray") {
		cfg.Tray = f.tray
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}

	return cfg, cfg.Validate()
}
