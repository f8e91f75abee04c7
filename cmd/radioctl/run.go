package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/radioctl/internal/channel"
	"github.com/danmuck/radioctl/internal/driver"
	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const terminateTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the controller and serve diagnostics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("diag-addr"); addr != "" {
			cfg.Diagnostics.Addr = addr
			cfg.Diagnostics.Enabled = true
		}

		port, err := channel.Open(cfg.Serial)
		if err != nil {
			return err
		}
		defer port.Close()

		logger := observability.ComponentLogger("radioctl", "driver")
		drv, err := driver.New(port, cfg.Protocol,
			driver.WithLogger(logger),
			driver.WithListener(inboundLogger(logger)),
		)
		if err != nil {
			return err
		}
		log.Info().Str("device", port.Name()).Msg("driver running")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		if cfg.Diagnostics.Enabled {
			srv := server.New(cfg.Diagnostics.Addr, drv, cfg.Diagnostics.CorsOrigins)
			g.Go(func() error { return srv.Serve(gctx) })
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("shutting down")
			tctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
			defer cancel()
			return drv.Terminate(tctx)
		})
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().String("diag-addr", "", "diagnostics listen address, overrides diagnostics.addr")
}

// inboundLogger reports every frame the controller sends on its own.
func inboundLogger(logger zerolog.Logger) driver.Listener {
	return driver.ListenerFunc(func(at time.Time, f frame.Frame) {
		logger.Info().Time("at", at).Str("frame", f.String()).Msg("inbound")
	})
}
