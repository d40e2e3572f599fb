package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ayusman/handwheel/internal/app"
	"github.com/ayusman/handwheel/internal/config"
	"github.com/ayusman/handwheel/internal/hub"
	"github.com/ayusman/handwheel/internal/log"
	"github.com/ayusman/handwheel/internal/server"
	"github.com/ayusman/handwheel/internal/store"
	"github.com/ayusman/handwheel/internal/tray"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewServeCmd runs the tracker and the websocket endpoint.
func NewServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Track the hand and broadcast steering messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	flags.register(cmd)
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := log.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Overrides saved through /api/settings are validated against the file and flag
	// config, not against a previous override set.
	base := cfg
	if overrides, err := st.Settings().All(); err != nil {
		logger.Warn("Failed to read stored settings", zap.Error(err))
	} else if len(overrides) > 0 {
		if err := cfg.ApplySettings(overrides); err != nil {
			logger.Warn("Ignoring stored settings", zap.Error(err))
		} else {
			logger.Info("Applied stored settings", zap.Int("count", len(overrides)))
		}
	}

	ln, err := server.Listen(cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	h := hub.New(cfg.HubOptions(), logger.Named("hub"))
	a := app.New(cfg.App(), h, logger.Named("app"))

	if opts, ok := cfg.MQTTOptions(); ok {
		if bridge, err := hub.DialMQTT(opts); err != nil {
			logger.Warn("MQTT bridge disabled", zap.String("broker", opts.Broker), zap.Error(err))
		} else if _, err := h.Subscribe(bridge); err != nil {
			bridge.Close()
		} else {
			logger.Info("MQTT bridge connected", zap.String("broker", opts.Broker), zap.String("topic", opts.Topic))
		}
	}

	srv := server.New(server.Config{
		Hub:        h,
		Controller: a,
		Store:      st,
		ValidateSettings: func(settings map[string]string) error {
			c := base
			return c.ApplySettings(settings)
		},
		Log: logger.Named("server"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The hub outlives the loop so the last messages are flushed to subscribers.
	hubCtx, stopHub := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(hubCtx)
	})
	g.Go(func() error {
		defer stopHub()
		return a.Run(gctx)
	})
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	logger.Info("Handwheel started",
		zap.String("version", Version),
		zap.String("endpoint", "ws://"+ln.Addr().String()),
		zap.String("mode", string(cfg.Gesture.Mode)))

	if cfg.Tray {
		t := tray.New("ws://"+ln.Addr().String(), func() tray.Snapshot {
			latest, _ := h.Latest()
			return tray.Snapshot{
				Enabled:     a.IsEnabled(),
				Subscribers: h.Count(),
				Angle:       latest.RotationAngle,
				FistClosed:  latest.FistClosed,
			}
		})
		t.OnToggle(a.SetEnabled)
		t.OnQuit(cancel)
		t.Run(gctx)
		cancel()
	}

	err = g.Wait()
	logger.Info("Handwheel stopped")
	return err
}

func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return st, nil
}
