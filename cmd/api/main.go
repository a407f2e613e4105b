package main

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"mediaapi/docs"
	"mediaapi/internal/config"
	"mediaapi/internal/database"
	"mediaapi/internal/database/migration"
	"mediaapi/internal/ffmpeg"
	handlers "mediaapi/internal/http/handler"
	"mediaapi/internal/http/middleware"
	"mediaapi/internal/integrity"
	"mediaapi/internal/logger"
	"mediaapi/internal/otel"
	"mediaapi/internal/pipeline"
	"mediaapi/internal/repository"
	"mediaapi/internal/repository/postgres"
	"mediaapi/internal/service"
	"mediaapi/internal/storage"
	"mediaapi/internal/validate"
)

const migrateTimeout = 2 * time.Minute

// NewTracing installs the global tracer provider and flushes it on stop.
func NewTracing(lc fx.Lifecycle, log *zap.Logger) error {
	shutdown, err := otel.Init(context.Background(), log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return shutdown(ctx)
	}})
	return nil
}

// NewDatabase connects to PostgreSQL and brings the schema up to date.
func NewDatabase(lc fx.Lifecycle, cfg *config.AppConfig, log *zap.Logger) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := migration.Up(ctx, db, cfg.Database.Host, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return db.Close()
	}})
	return db, nil
}

// NewRunner returns the ffmpeg/ffprobe command runner.
func NewRunner(cfg *config.AppConfig) ffmpeg.Runner {
	return ffmpeg.New(time.Duration(cfg.Processing.ProbeTimeoutSec) * time.Second)
}

// NewProcessor builds the pipeline with its checksum-keyed metadata cache.
func NewProcessor(cfg *config.AppConfig, runner ffmpeg.Runner, log *zap.Logger) *pipeline.Processor {
	cache := pipeline.NewCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSec)*time.Second)
	return pipeline.NewProcessor(cfg.Processing, runner, cache, log)
}

// NewValidator builds the upload validator from the processing config.
func NewValidator(cfg *config.AppConfig) *validate.Validator {
	p := cfg.Processing
	return validate.New(p.AllowedExtensions, p.MaxUploadBytes, p.StrictMIME)
}

// NewMediaService wires the media service.
func NewMediaService(
	cfg *config.AppConfig,
	store storage.Storage,
	repo repository.MediaRepository,
	v *validate.Validator,
	proc *pipeline.Processor,
	runner ffmpeg.Runner,
	log *zap.Logger,
) service.MediaService {
	return service.NewMediaService(store, repo, v, proc, runner, service.Options{
		TempDir:       cfg.Processing.TempDir,
		PresignExpiry: time.Duration(cfg.Storage.PresignExpirySec) * time.Second,
		Logger:        log,
	})
}

// StartIntegritySweep schedules the checksum sweep when enabled.
func StartIntegritySweep(lc fx.Lifecycle, cfg *config.AppConfig, svc service.MediaService, log *zap.Logger) {
	if !cfg.Integrity.Enabled {
		log.Info("integrity_sweep_disabled")
		return
	}
	sweeper := integrity.New(svc, cfg.Integrity.BatchSize, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sweeper.Start(cfg.Integrity.Schedule)
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}

// NewFiberServer creates the Fiber app with middleware and routes.
func NewFiberServer(cfg *config.AppConfig, db *sql.DB, svc service.MediaService, log *zap.Logger) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(),
		// Multipart overhead on top of the largest accepted file.
		BodyLimit: int(cfg.Processing.MaxUploadBytes) + 1<<20,
	})

	metrics, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics"
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(metrics.Handler())

	handlers.RegisterRoutes(app, db, svc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return app, nil
}

// StartServer listens in the background and shuts Fiber down on stop.
func StartServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, app *fiber.App, cfg *config.AppConfig, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			addr := ":" + cfg.Port
			go func() {
				if err := app.Listen(addr); err != nil {
					log.Error("server_failed", zap.String("addr", addr), zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			log.Info("server_started", zap.String("addr", addr), zap.String("environment", cfg.Environment))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// @title Media API
// @version 1.0
// @description Upload, inspect and serve images, documents, video and audio.
// @BasePath /
func main() {
	fx.New(
		fx.Provide(
			config.Load,
			logger.NewLogger,
			NewDatabase,
			fx.Annotate(postgres.NewMediaPostgres, fx.As(new(repository.MediaRepository))),
			storage.New,
			NewRunner,
			NewProcessor,
			NewValidator,
			NewMediaService,
			NewFiberServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(
			zap.ReplaceGlobals,
			NewTracing,
			StartIntegritySweep,
			StartServer,
		),
	).Run()
}
