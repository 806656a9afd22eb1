package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/script-playground-api/internal/config"
	"github.com/noah-isme/script-playground-api/internal/database"
	"github.com/noah-isme/script-playground-api/internal/handler"
	"github.com/noah-isme/script-playground-api/internal/middleware"
	"github.com/noah-isme/script-playground-api/internal/observability"
	"github.com/noah-isme/script-playground-api/internal/repository"
	"github.com/noah-isme/script-playground-api/internal/router"
	"github.com/noah-isme/script-playground-api/internal/service"
	"github.com/noah-isme/script-playground-api/internal/store"
	"github.com/noah-isme/script-playground-api/pkg/ai"
	"github.com/noah-isme/script-playground-api/pkg/sandbox"
)

const draftTTL = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logCloser := observability.NewLogger(observability.LoggerOptions{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		AppName: cfg.AppName,
	})
	defer logCloser.Close()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var (
		redisClient *redis.Client
		kv          store.KVStore = store.NewMemoryStore()
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		kv = store.NewRedisStore(redisClient, draftTTL)
	} else {
		logger.Warn().Msg("redis not configured, drafts and preferences are kept in memory")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
	}

	runner, closeRunner, err := newRunner(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create code runner")
	}
	defer closeRunner()

	gateway, err := middleware.NewSessionGateway(middleware.SessionGatewayConfig{
		BaseURL:    cfg.AuthBaseURL,
		CookieName: cfg.AuthCookieName,
		JWTSecret:  cfg.JWTSecret,
		CacheTTL:   cfg.SessionCacheTTL,
		CacheSize:  cfg.SessionCacheSize,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session gateway")
	}
	defer gateway.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	challengeRepo := repository.NewChallengeRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	challengeService := service.NewChallengeService(challengeRepo, submissionRepo, redisClient, cfg.ChallengeCacheTTL, logger)
	adminChallengeService := service.NewAdminChallengeService(challengeRepo, validate, challengeService, logger)
	labelService := service.NewLabelService(labelRepo, validate, challengeService, logger)
	submissionService := service.NewSubmissionService(submissionRepo, challengeRepo, runner, validate, service.SubmissionEventsConfig{
		Redis:       redisClient,
		NATS:        natsConn,
		ChannelBase: cfg.NATSSubject,
	}, logger)
	workspaceService := service.NewWorkspaceService(challengeService, submissionService, kv, logger)
	editorService := service.NewEditorService(challengeService, submissionService, runner, kv, nil, logger)

	provider := ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.AIModel,
		Moderation: cfg.AIModeration,
		Logger:     logger,
	})
	assistService := service.NewAssistService(ai.NewAssistant(provider, cfg.AIModel), challengeService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ChallengeHandler:      handler.NewChallengeHandler(challengeService, logger),
		SubmissionHandler:     handler.NewSubmissionHandler(submissionService, logger, 30*time.Second),
		WorkspaceHandler:      handler.NewWorkspaceHandler(workspaceService, validate, logger),
		EditorHandler:         handler.NewEditorHandler(editorService, validate, logger),
		AdminChallengeHandler: handler.NewAdminChallengeHandler(adminChallengeService, labelService, validate, logger),
		AssistHandler:         handler.NewAssistHandler(assistService, logger),
		HealthProbes:          healthProbes(db, redisClient, natsConn),
		Authenticate:          gateway.Authenticate(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	submissionService.Start(ctx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, natsConn, logger)
}

func newRunner(cfg config.Config, logger zerolog.Logger) (sandbox.Runner, func(), error) {
	opts := sandbox.Options{
		Timeout:      cfg.RunnerTimeout,
		MaxLogLines:  cfg.RunnerMaxLogLines,
		MaxLineBytes: cfg.RunnerMaxLineSize,
		Hook: sandbox.ChainHooks(
			sandbox.LogHook(logger.With().Str("component", "sandbox").Logger()),
			func(level, _ string) {
				observability.ConsoleLines().WithLabelValues(level).Inc()
			},
		),
		Logger: logger,
	}

	if cfg.RunnerEngine != "docker" {
		return sandbox.NewGojaRunner(opts), func() {}, nil
	}

	runner, err := sandbox.NewDockerRunner(sandbox.DockerConfig{
		Host:          cfg.DockerHost,
		Image:         cfg.DockerImage,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Options:       opts,
	})
	if err != nil {
		return nil, nil, err
	}
	return runner, func() {
		if err := runner.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close docker client")
		}
	}, nil
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "nats",
			Check: func(context.Context) error {
				if status := natsConn.Status(); status != nats.CONNECTED {
					return fmt.Errorf("connection status %v", status)
				}
				return nil
			},
		})
	}
	return probes
}

func waitForShutdown(ctx context.Context, app *fiber.App, natsConn *nats.Conn, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}

	logger.Info().Msg("server stopped")
}
