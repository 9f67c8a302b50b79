package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"AnnounceRelay/internal/admission"
	"AnnounceRelay/internal/approval"
	"AnnounceRelay/internal/config"
	"AnnounceRelay/internal/dispatch"
	"AnnounceRelay/internal/gate"
	"AnnounceRelay/internal/infrastructure/discord"
	"AnnounceRelay/internal/infrastructure/httpapi"
	"AnnounceRelay/internal/infrastructure/llm"
	"AnnounceRelay/internal/infrastructure/scheduler"
	"AnnounceRelay/internal/infrastructure/storage"
	"AnnounceRelay/internal/infrastructure/telegram"
	"AnnounceRelay/internal/logging"
	"AnnounceRelay/internal/ports"
	"AnnounceRelay/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.PipelineCoordinator
	scheduler *usecase.Scheduler
	server    *httpapi.Server
	gateway   *discord.Gateway
	commands  *discord.CommandHandler
	db        *sql.DB
}

type store interface {
	ports.StyleStore
	ports.PublicationLog
	httpapi.Pinger
}

// New builds the application. Only the database connection is opened here.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	destinations, err := dispatch.ParseDestinations(cfg.Dispatch.Destinations)
	if err != nil {
		return nil, fmt.Errorf("dispatch destinations: %w", err)
	}

	var st store
	storeKind := "memory"
	if cfg.Database.DSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		pg := storage.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db, st, storeKind = db, pg, "postgres"
	} else {
		baseLogger.Warn("no database configured; style and publication log are kept in memory")
		st = storage.NewMemoryStore(200)
	}

	registry := dispatch.NewRegistry()
	var reviews ports.ReviewNotifier
	if cfg.Discord.BotToken != "" {
		gw, err := discord.NewGateway(cfg.Discord.BotToken, cfg.Discord.GuildIDs, baseLogger.With("component", "discord"))
		if err != nil {
			a.closeDB()
			return nil, err
		}
		a.gateway = gw
		registry.Register(discord.NewPublisher(gw.Session(), discord.NewHumanizer(cfg.Dispatch.Humanize)))
		reviews = discord.NewReviewNotifier(gw.Session(), cfg.Discord.QueryChannelID, baseLogger.With("component", "discord.review"))
	} else {
		baseLogger.Warn("DISCORD_BOT_TOKEN missing; discord gateway not started")
	}
	if cfg.Telegram.BotToken != "" {
		registry.Register(telegram.NewPublisher(cfg.Telegram, nil))
	}

	announcer := llm.NewAnnouncer(cfg.Generation, nil)
	if !announcer.Enabled() {
		baseLogger.Warn("AI_API_KEY missing; announcements will be placeholders")
	}

	a.pipeline = usecase.NewPipelineCoordinator(usecase.PipelineDeps{
		Gate:         gate.NewContentGate(cfg.Webhook.MinTextLength, cfg.Webhook.RequireLink, cfg.Webhook.LinkRegexp()),
		Admission:    admission.NewController(cfg.Admission.Cooldown, cfg.Admission.DedupeWindow, nil),
		Ledger:       approval.NewLedger(cfg.Approval.PendingTTL, nil),
		Dispatcher:   dispatch.NewFanOut(registry, destinations, baseLogger.With("component", "dispatch")),
		Generator:    announcer,
		Reviews:      reviews,
		Styles:       st,
		Publications: st,
		Destinations: len(destinations),
		Logger:       baseLogger.With("component", "pipeline"),
		Settings: usecase.Settings{
			ReviewRequired:    cfg.Approval.ReviewRequired,
			Shadow:            cfg.Webhook.Shadow,
			GenerationTimeout: cfg.Generation.Timeout,
			DefaultStyle:      cfg.Generation.DefaultStyle,
			MaxOperatorInput:  cfg.Discord.MaxInputLength,
			Operators:         cfg.Operators.IDs,
			AutopilotEnabled:  cfg.Autopilot.Enabled,
			AutopilotCooldown: cfg.Autopilot.Cooldown,
			Topics:            cfg.Autopilot.Topics,
		},
	})

	if a.gateway != nil {
		var discordChannels []string
		for _, d := range destinations {
			if d.Platform == discord.Platform {
				discordChannels = append(discordChannels, d.ID)
			}
		}
		a.commands = discord.NewCommandHandler(a.gateway.Session(), a.pipeline, discord.CommandOptions{
			QueryChannelID:   cfg.Discord.QueryChannelID,
			AnnounceChannels: discordChannels,
			MaxInputLength:   cfg.Discord.MaxInputLength,
			BotUserID:        a.gateway.BotUserID,
			Latency:          a.gateway.Latency,
			Uptime:           a.gateway.Uptime,
		}, baseLogger.With("component", "discord.commands"))
	}

	a.scheduler = usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Autopilot.TickInterval),
		a.pipeline,
		baseLogger.With("component", "autopilot"),
	)

	api := httpapi.NewAPI(a.pipeline, httpapi.Options{
		WebhookToken: cfg.Webhook.AuthToken,
		AdminToken:   cfg.Server.AdminToken,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Publications: st,
		Health: httpapi.Health{
			AIKeySet:  announcer.Enabled(),
			AIModel:   cfg.Generation.Model,
			StoreKind: storeKind,
			Store:     st,
		},
	}, baseLogger.With("component", "api"))
	a.server = httpapi.NewServer(cfg.Server.Addr, api, baseLogger)

	return a, nil
}

// Pipeline exposes the coordinator for tooling.
func (a *Application) Pipeline() *usecase.PipelineCoordinator { return a.pipeline }

// Run starts every surface and blocks until ctx is cancelled or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	a.pipeline.RestoreStyle(ctx)

	if a.gateway != nil {
		if err := a.gateway.Start(ctx, a.commands); err != nil {
			// the webhook and scheduler keep working without the bot
			a.logger.Error("discord gateway failed to start", "error", err)
		}
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Application) shutdown() error {
	a.logger.Info("shutdown requested")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http: %w", err))
	}
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close discord: %w", err))
		}
	}
	a.closeDB()
	return errors.Join(errs...)
}

func (a *Application) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
