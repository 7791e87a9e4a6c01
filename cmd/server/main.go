// Package main starts the space server and handles termination.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/gospace/internal/identity"
	"github.com/Tyrowin/gospace/internal/moderation"
	"github.com/Tyrowin/gospace/internal/proximity"
	"github.com/Tyrowin/gospace/internal/room"
	"github.com/Tyrowin/gospace/internal/server"
	"github.com/Tyrowin/gospace/internal/storage"
	"github.com/Tyrowin/gospace/internal/storage/sqlite"
	"github.com/Tyrowin/gospace/internal/telemetry"
)

type flags struct {
	seedSpace  string
	seedName   string
	seedWidth  int
	seedHeight int
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.StringVar(&f.seedSpace, "seed-space", "", "create a space with this id at startup if it does not exist")
	fs.StringVar(&f.seedName, "seed-name", "Lobby", "name of the seeded space")
	fs.IntVar(&f.seedWidth, "seed-width", 100, "width of the seeded space")
	fs.IntVar(&f.seedHeight, "seed-height", 100, "height of the seeded space")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("parse flags")
	}

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := server.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfg, f); err != nil {
		log.Fatal().Err(err).Msg("failed to serve")
	}
}

func run(ctx context.Context, cfg server.Config, f flags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, "gospace", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	if f.seedSpace != "" {
		if err := seedSpace(ctx, store, f); err != nil {
			return err
		}
	}

	registry := room.NewRegistry()
	coordinator := proximity.NewCoordinator(registry, proximity.Config{
		Interval:      cfg.Proximity.Interval,
		Threshold:     cfg.Proximity.Threshold,
		MediaEndpoint: cfg.MediaEndpoint,
	})

	srv, err := server.NewServer(cfg, &server.Services{
		Registry:  registry,
		Proximity: coordinator,
		Verifier:  identity.NewJWTVerifier(cfg.JWTSecret),
		Spaces:    store,
		Chat:      store,
		Filter:    moderation.NewFilter(cfg.BlockedWords),
	})
	if err != nil {
		return err
	}
	srv.Start()

	coordCtx, stopCoordinator := context.WithCancel(ctx)
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coordinator.Run(coordCtx)
	}()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(srv))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopCoordinator()
			<-coordDone
			_ = srv.Shutdown(cfg.ShutdownTimeout)
			return fmt.Errorf("serve http: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("hub shutdown")
	}
	stopCoordinator()
	<-coordDone

	log.Info().Msg("server stopped")
	return nil
}

func seedSpace(ctx context.Context, store *sqlite.Store, f flags) error {
	err := store.CreateSpace(ctx, storage.Space{
		ID:     f.seedSpace,
		Name:   f.seedName,
		Width:  f.seedWidth,
		Height: f.seedHeight,
	})
	switch {
	case err == nil:
		log.Info().Str("space", f.seedSpace).Msg("seeded space")
	case errors.Is(err, storage.ErrAlreadyExists):
		log.Info().Str("space", f.seedSpace).Msg("space already exists")
	default:
		return fmt.Errorf("seed space: %w", err)
	}
	return nil
}
