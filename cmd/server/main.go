package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/formdrop/internal/config"
	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/handlers"
	"github.com/benvon/formdrop/internal/logger"
	"github.com/benvon/formdrop/internal/middleware"
	"github.com/benvon/formdrop/internal/queue"
	"github.com/benvon/formdrop/internal/server"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/benvon/formdrop/internal/storage"
	"github.com/benvon/formdrop/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("formdrop: %v", err)
	}
}

// run wires the server and blocks until it stops. Every startup or serve failure is
// returned after deferred cleanup, so main can exit non-zero.
func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	debugFlag := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.IsProduction(), debugMode)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync(zapLogger)

	fail := func(event string, err error) error {
		zapLogger.Error(event, zap.Error(err))
		return fmt.Errorf("%s: %w", event, err)
	}

	zapLogger.Info("starting_server",
		zap.String("env", cfg.Environment),
		zap.Int("port", cfg.Port),
		zap.Bool("debug_mode", debugMode),
		zap.Bool("demo_endpoints", cfg.EnableDemoEndpoints),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, telemetry.ServiceName, cfg.OTELEndpoint, cfg.Environment, cfg.IsProduction())
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	// The server never listens without a working database.
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail("failed_to_connect_to_database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	if cfg.RunMigrations {
		version, err := db.Migrate()
		if err != nil {
			return fail("failed_to_run_migrations", err)
		}
		zapLogger.Info("migrations_applied", zap.Uint("version", version))
	}

	health := handlers.NewHealthChecker()
	health.AddCheck("database", db.Ping)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail("invalid_redis_url", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail("failed_to_connect_to_redis", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		zapLogger.Info("connected_to_redis")
	} else {
		zapLogger.Info("rate_limit_store_in_memory")
	}

	rateLimitStore, err := middleware.NewRateLimitStore(redisClient)
	if err != nil {
		return fail("failed_to_create_rate_limit_store", err)
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := queue.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			return fail("failed_to_connect_to_rabbitmq", err)
		}
		publisher = p
		health.AddCheck("queue", p.HealthCheck)
		zapLogger.Info("connected_to_rabbitmq")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	if err != nil {
		return fail("failed_to_create_session_manager", err)
	}

	store, err := storage.NewLocal(cfg.UploadsDir)
	if err != nil {
		return fail("failed_to_prepare_uploads_directory", err)
	}
	zapLogger.Info("uploads_directory_ready", zap.String("dir", store.Dir()))

	srv, err := server.New(cfg, server.Deps{
		Users:          database.NewUserRepository(db),
		Submissions:    database.NewSubmissionRepository(db),
		Store:          store,
		Sessions:       sessions,
		Publisher:      publisher,
		RateLimitStore: rateLimitStore,
		Health:         health,
		Logger:         zapLogger,
	})
	if err != nil {
		return fail("failed_to_build_server", err)
	}

	if err := srv.Run(ctx); err != nil {
		return fail("server_failed", err)
	}
	return nil
}
