package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/emberwake/relaygate/src/gateway"
	"github.com/emberwake/relaygate/src/relay"
	"github.com/emberwake/relaygate/src/rest"
	"github.com/emberwake/relaygate/src/server"
	"github.com/emberwake/relaygate/src/utils"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file, using process environment")
	}
	cfg, err := utils.LoadConfiguration()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	restClient := rest.NewClient(cfg, logger.With().Str("component", "rest").Logger())
	bridge := relay.NewChatLog(logger.With().Str("component", "relay").Logger())
	poster := relay.NewPoster(cfg, restClient, logger.With().Str("component", "webhook").Logger())
	gw := gateway.NewGateway(gateway.Arguments{
		Config: cfg,
		Rest:   restClient,
		Bridge: bridge,
		Logger: logger.With().Str("component", "gateway").Logger(),
	})

	if cfg.StatusAddress != "" {
		statusServer := server.NewServer(gw, restClient, logger.With().Str("component", "status").Logger())
		go statusServer.StartServer(ctx, cfg.StatusAddress)
	}

	poster.AnnounceStarted(ctx, cfg.PublicAddress)
	if err := gw.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("gateway loop ended with error")
	}

	// The run context is already cancelled; give the farewell post its
	// own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	poster.AnnounceStopped(shutdownCtx)
	logger.Info().Msg("relay stopped")
}
