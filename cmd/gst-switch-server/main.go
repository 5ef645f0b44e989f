// Command gst-switch-server runs the mixing server: it ingests input TCP
// video/audio streams, composites the selected A/B channels, republishes
// the result, and optionally records it to disk. Switching and
// composition-mode changes are driven over the NATS control channel by a
// separate UI process (cmd/gst-switch-ui).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mithro/gst-switch/internal/config"
	"github.com/mithro/gst-switch/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("gst-switch-server exited with error")
	}
}

func newRootCmd() *cobra.Command {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		cfg = &config.ServerConfig{}
	}

	cmd := &cobra.Command{
		Use:   "gst-switch-server",
		Short: "Live video/audio mixing server",
		Long:  "Ingests input streams, composites the selected A/B channels, and republishes the mix over TCP.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.RecordTemplate, "record", cfg.RecordTemplate, "strftime-style recording filename template; empty disables recording")
	cmd.Flags().StringVar(&cfg.ControllerAddr, "controller-address", cfg.ControllerAddr, "NATS URL the control channel listens/connects on")
	cmd.Flags().IntVar(&cfg.VideoInputPort, "video-input-port", cfg.VideoInputPort, "TCP port accepting input video streams")
	cmd.Flags().IntVar(&cfg.AudioInputPort, "audio-input-port", cfg.AudioInputPort, "TCP port accepting input audio streams")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug-level logging")
	cmd.Flags().BoolVar(&cfg.LowRes, "low-res", cfg.LowRes, "force the debug 300x200@25 canvas, overriding --video-caps")
	cmd.Flags().StringVar(&cfg.VideoCaps, "video-caps", cfg.VideoCaps, "canvas format alias or full caps string (e.g. 720p, 1080p, 1280x720@25)")

	return cmd
}

func run(cfg *config.ServerConfig) error {
	logLevel := zerolog.InfoLevel
	if cfg.Verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := server.New(cfg, nil, logger)

	cc, err := d.StartControlChannel()
	if err != nil {
		return fmt.Errorf("start control channel: %w", err)
	}
	defer cc.Close()

	httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: d.Router()}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.StatusAddr).Msg("status endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status endpoint failed")
		}
	}()

	go func() {
		defer wg.Done()
		if err := d.ListenAndServe(ctx); err != nil {
			logger.Error().Err(err).Msg("dispatcher stopped with error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	d.Shutdown()
	_ = httpServer.Shutdown(context.Background())
	wg.Wait()
	return nil
}
