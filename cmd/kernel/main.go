package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/boot"
	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/config"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/infrastructure/monitoring"
	"github.com/emberos/kernel/internal/infrastructure/server"
	"github.com/emberos/kernel/internal/kernel"
	"github.com/emberos/kernel/internal/providers/names"
	"github.com/emberos/kernel/internal/providers/ticktimer"
)

func main() {
	manifestPath := flag.String("manifest", "", "Boot manifest path (YAML); built-in set when empty")
	flag.Parse()

	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	k := kernel.New(kernel.Config{
		Frames:         cfg.Memory.Frames,
		DefaultHeapMax: cfg.Memory.DefaultHeapMax,
	}, logger).WithMetrics(monitoring.NewMetrics())

	manifest := boot.DefaultManifest()
	if *manifestPath != "" {
		manifest, err = boot.LoadManifest(*manifestPath)
		if err != nil {
			logger.Fatal("failed to load boot manifest", zap.Error(err))
		}
	}

	loader := boot.NewLoader(k, logger)
	loader.Register(names.WellKnownName, func(c *client.Client, log *logging.Logger) error {
		srv, err := names.NewServer(c, log)
		if err != nil {
			return err
		}
		return srv.Run()
	})
	loader.Register(ticktimer.WellKnownName, func(c *client.Client, log *logging.Logger) error {
		srv, err := ticktimer.NewServer(c, log)
		if err != nil {
			return err
		}
		return srv.Run()
	})
	if err := loader.Boot(manifest); err != nil {
		logger.Fatal("boot failed", zap.Error(err))
	}

	var debug *server.Server
	if cfg.Debug.Enabled {
		debug = server.New(k, cfg.Debug, logger)
		go func() {
			if err := debug.Run(); err != nil {
				logger.Error("debug server failed", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if debug != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debug.Shutdown(ctx); err != nil {
			logger.Warn("debug server shutdown failed", zap.Error(err))
		}
	}
}
