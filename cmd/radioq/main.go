// Package main is the entry point for the radio queue web service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radioqueue/internal/config"
	"github.com/edumarques81/radioqueue/internal/domain/library"
	"github.com/edumarques81/radioqueue/internal/domain/queue"
	"github.com/edumarques81/radioqueue/internal/infra/history"
	"github.com/edumarques81/radioqueue/internal/infra/liquidsoap"
	"github.com/edumarques81/radioqueue/internal/infra/mpd"
	"github.com/edumarques81/radioqueue/internal/infra/resolver"
	"github.com/edumarques81/radioqueue/internal/transport/rest"
	"github.com/edumarques81/radioqueue/internal/transport/socketio"
	"github.com/edumarques81/radioqueue/internal/version"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Web queue for a streaming daemon")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.Backend).
		Str("resolver", cfg.Resolver).
		Str("music_dir", cfg.MusicDir).
		Bool("password_set", cfg.LiqPassword != "" || cfg.MPDPassword != "").
		Msg("Configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lib := library.New(cfg.MusicDir)

	// Streaming daemon
	var backend queue.Backend
	switch cfg.Backend {
	case config.BackendMPD:
		mpdClient := mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
		mpdClient.SetMusicDir(lib.Dir())
		if err := mpdClient.Connect(); err != nil {
			log.Warn().Err(err).Msg("MPD not reachable yet, will retry per request")
		}
		defer mpdClient.Close()
		backend = mpdClient
	default:
		tc := cfg.Telnet()
		log.Info().Str("addr", tc.Addr()).Dur("timeout", tc.Timeout).Msg("Using Liquidsoap command channel")
		backend = liquidsoap.Dial(tc, cfg.LiquidsoapCommands())
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := backend.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("Streaming daemon ping failed")
	} else {
		log.Info().Msg("Streaming daemon connection verified")
	}
	pingCancel()

	// Optional collaborators
	opts := queue.Options{NeedsResolution: resolver.NeedsResolution}
	if cfg.Resolver == config.ResolverYTDLP {
		if cfg.YTDLPInstall {
			if err := resolver.Install(ctx); err != nil {
				log.Warn().Err(err).Msg("yt-dlp install failed")
			}
		}
		opts.Resolver = resolver.NewYTDLP(cfg.ResolverOptions())
	}

	historyStore := history.NewStore(cfg.HistoryPath())
	var historyReader rest.HistoryReader
	if err := historyStore.Open(); err != nil {
		log.Warn().Err(err).Msg("History disabled")
	} else {
		defer historyStore.Close()
		opts.Recorder = historyStore
		historyReader = historyStore
	}

	queueService := queue.NewService(backend, lib, opts)

	// Live updates
	socketServer, err := socketio.NewServer(queueService, socketio.Options{
		MaxClients:     cfg.MaxClients,
		RequestTimeout: cfg.ResolveTimeout + cfg.LiqTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	queueService.OnChange(socketServer.NotifyChanged)
	socketServer.StartWatcher(ctx, cfg.PollInterval)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: rest.NewServer(rest.Deps{
			Queue:       queueService,
			Files:       lib,
			History:     historyReader,
			Socket:      socketServer,
			StaticDir:   cfg.StaticDir,
			CORSOrigins: cfg.CORSOrigins,
		}),
		ReadTimeout: 30 * time.Second,
		// Resolution can take most of a minute.
		WriteTimeout: cfg.ResolveTimeout + cfg.LiqTimeout + 10*time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
