package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ChronoCoders/wordstream/internal/agent"
	"github.com/ChronoCoders/wordstream/internal/api"
	"github.com/ChronoCoders/wordstream/internal/command"
	"github.com/ChronoCoders/wordstream/internal/config"
	"github.com/ChronoCoders/wordstream/internal/control"
	"github.com/ChronoCoders/wordstream/internal/corpus"
	"github.com/ChronoCoders/wordstream/internal/pool"
	"github.com/ChronoCoders/wordstream/internal/server"
	"github.com/ChronoCoders/wordstream/internal/session"
	"github.com/ChronoCoders/wordstream/internal/store"
	"github.com/ChronoCoders/wordstream/internal/ws"
)

func main() {
	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Load corpus; a failed load still serves the placeholder words
	words, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.CorpusPath).Msg("failed to load corpus, serving placeholder")
	}
	log.Info().Int64("words", words.Len()).Msg("corpus loaded")

	// Init DB
	var history api.HistoryStore
	var recorder server.Recorder
	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to init database - session history disabled")
	} else {
		defer db.Close()
		history, recorder = db, db
	}

	// Init sessions
	factory := session.NewPoolFactory(words,
		pool.WithBackoff(cfg.ProducerBackoff),
		pool.WithGovernor(pool.GovernorConfig{
			HighWatermark: cfg.Governor.HighWatermark,
			LowWatermark:  cfg.Governor.LowWatermark,
			MaxProducers:  cfg.Governor.MaxProducers,
			Interval:      cfg.Governor.Interval,
			HistorySize:   cfg.Governor.HistorySize,
		}),
	)
	registry := session.NewRegistry(factory,
		session.WithMaxSessions(cfg.MaxSessions),
		session.WithDefaultBufferSize(cfg.DefaultBufferSize),
	)

	tcp, err := server.New(cfg, registry, command.NewDispatcher(registry), recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid server configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init EventBus, WebSocket Hub and StatusCache
	bus := control.NewEventBus()
	hub := ws.NewHub()
	cache := control.NewStatusCache(bus, hub)

	monitor := agent.New(registry, agent.NewEventBusReporter(bus), cfg.ServerID, cfg.MonitorInterval)

	srv := api.NewServer(cfg, history, control.NewLocalClient(registry, cache), hub)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AdminPort,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("port", cfg.AdminPort).Msg("starting admin server (HTTP)")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("encoding", cfg.Encoding).Msg("starting word server")
		return tcp.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down server...")
	registry.Shutdown()
	bus.Close()
	<-cache.Done()
	log.Info().Msg("server exited")
}
