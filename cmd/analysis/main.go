package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cropwatch/internal/config"
	"cropwatch/internal/logger"
	"cropwatch/internal/processor"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel)

	p := processor.New(cfg)

	// run processor in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx)
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Logger.Info().Msg("shutting down")
		cancel()
		if err := <-errCh; err != nil {
			logger.Logger.Error().Err(err).Msg("processor exited with error")
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logger.Logger.Error().Err(err).Msg("processor exited with error")
			os.Exit(1)
		}
	}
}
