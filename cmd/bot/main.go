package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/ai"
	httptransport "github.com/spec-kit/support-gateway/internal/api/http"
	"github.com/spec-kit/support-gateway/internal/api/http/handlers"
	"github.com/spec-kit/support-gateway/internal/archive"
	"github.com/spec-kit/support-gateway/internal/auth"
	"github.com/spec-kit/support-gateway/internal/autoreply"
	"github.com/spec-kit/support-gateway/internal/config"
	"github.com/spec-kit/support-gateway/internal/dashboard"
	"github.com/spec-kit/support-gateway/internal/domain"
	"github.com/spec-kit/support-gateway/internal/events"
	"github.com/spec-kit/support-gateway/internal/gateway"
	"github.com/spec-kit/support-gateway/internal/hydration"
	"github.com/spec-kit/support-gateway/internal/notify"
	"github.com/spec-kit/support-gateway/internal/observability"
	"github.com/spec-kit/support-gateway/internal/persistence"
	"github.com/spec-kit/support-gateway/internal/platform"
	"github.com/spec-kit/support-gateway/internal/tickets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Gateway.Token == "" {
		logger.Fatal("GATEWAY_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	client, err := platform.NewClient(cfg.Gateway, logger)
	if err != nil {
		logger.Fatal("failed to build platform client", zap.Error(err))
	}

	outbox := notify.NewTelegramOutbox(cfg.Telegram, logger)
	outbox.Start()
	defer outbox.Stop()
	notify.RegisterHandlers(dispatcher, outbox)

	hub := dashboard.NewHub(cfg.Dashboard.ThrottleWindow(), logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	registry := tickets.NewRegistry()
	timers := tickets.NewTimerRegistry()
	defer timers.StopAll()

	store := archive.NewStore(pg.PoolHandle(), logger)
	snapshots := archive.NewSnapshotStore(redis.Client, logger)
	if err := snapshots.Load(ctx, registry); err != nil {
		logger.Warn("could not restore ticket registry", zap.Error(err))
	}
	go snapshots.RunFlusher(ctx, registry)

	tracker := tickets.NewTracker(tickets.TrackerDeps{
		Config:     cfg.Tickets,
		Registry:   registry,
		Timers:     timers,
		Dispatcher: dispatcher,
		Archiver:   store,
		Fetcher:    client,
		Pusher:     &dashboardPusher{hub: hub, registry: registry},
		Nonces:     client,
		Logger:     logger,
	})

	rulesFile, err := autoreply.LoadRulesFile(cfg.Rules.Path)
	if err != nil {
		logger.Fatal("failed to load rules", zap.Error(err))
	}
	engine := autoreply.NewEngine(rulesFile.Phrases, rulesFile.Rules)
	logger.Info("rules loaded",
		zap.String("path", cfg.Rules.Path),
		zap.Int("rules", len(rulesFile.Rules)))

	completer := ai.NewCompleter(cfg.OpenAI, logger)
	responder := autoreply.NewResponder(autoreply.ResponderDeps{
		Engine:    engine,
		Sender:    client,
		Completer: completer,
		Eligible:  tracker.Eligible,
		Paused:    cfg.Tickets.Paused,
		Metrics:   metrics,
		Logger:    logger,
	})

	session := gateway.NewSession(gateway.AuthMode(cfg.Gateway.AuthMode))
	caches := gateway.NewCaches()
	router := gateway.NewRouter(session, caches,
		&botSink{tracker: tracker, responder: responder}, metrics, logger)
	manager := gateway.NewManager(cfg.Gateway, session, router, metrics, logger)

	hydrator := hydration.NewHydrator(cfg.Tickets, client, caches, tracker, registry,
		func() { pushMembers(hub, caches) }, logger)

	router.OnReady(func(ev gateway.ReadyEvent) {
		tracker.SetSelfID(ev.User.ID)
		go hydrator.Run(ctx)
		if session.AuthMode() == gateway.AuthModeUser &&
			cfg.Tickets.GuildID != "" && cfg.Tickets.CategoryID != "" {
			if err := manager.Subscribe(cfg.Tickets.GuildID, cfg.Tickets.CategoryID); err != nil {
				logger.Warn("guild subscribe failed", zap.Error(err))
			}
		}
	})
	router.OnMembersChanged(func() { pushMembers(hub, caches) })

	go func() {
		if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("gateway loop exited", zap.Error(err))
		}
	}()

	dashSrv := dashboard.NewServer(cfg.Dashboard.Addr, hub, tokens, logger)
	go func() {
		if err := dashSrv.Start(); err != nil {
			logger.Error("dashboard server failed", zap.Error(err))
		}
	}()

	gatewayState := func() string { return string(manager.State()) }

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, gatewayState),
		Auth:           handlers.NewAuthHandler(cfg.Auth, tokens),
		Simulate:       handlers.NewSimulateHandler(engine),
		Tickets:        handlers.NewTicketsHandler(registry, store),
		Rules:          handlers.NewRulesHandler(engine, responder, cfg.Rules.Path, logger),
		Stats:          handlers.NewStatsHandler(registry, timers, caches, metrics, store, gatewayState),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = dashSrv.Shutdown(shutdownCtx)
	shutdownCancel()
}

// botSink fans gateway events to the lifecycle tracker and, for messages,
// into the auto-reply pipeline.
type botSink struct {
	tracker   *tickets.Tracker
	responder *autoreply.Responder
}

func (s *botSink) ChannelCreated(ch domain.Channel) { s.tracker.ChannelCreated(ch) }
func (s *botSink) ChannelDeleted(ch domain.Channel) { s.tracker.ChannelDeleted(ch) }
func (s *botSink) MessageCreated(msg domain.Message) {
	s.tracker.MessageCreated(msg)
	s.responder.HandleMessage(msg)
}

// dashboardPusher pushes a throttled registry snapshot to the live dashboard.
type dashboardPusher struct {
	hub      *dashboard.Hub
	registry *tickets.Registry
}

func (p *dashboardPusher) TicketsChanged() {
	p.hub.EmitThrottled("tickets", func() any { return p.registry.Snapshot() })
}

func pushMembers(hub *dashboard.Hub, caches *gateway.Caches) {
	hub.EmitThrottled("members", func() any {
		channels, roles, members, presences := caches.Counts()
		return fiber.Map{
			"channels":  channels,
			"roles":     roles,
			"members":   members,
			"presences": presences,
		}
	})
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
