package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/course_booking/internal/app"
	"github.com/Freeeeeet/course_booking/internal/config"
	httpapi "github.com/Freeeeeet/course_booking/internal/controller/http"
	"github.com/Freeeeeet/course_booking/internal/idempotency"
	"github.com/Freeeeeet/course_booking/internal/notify"
	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/Freeeeeet/course_booking/internal/repository"
	"github.com/Freeeeeet/course_booking/internal/service"
	"github.com/Freeeeeet/course_booking/migrations"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting course booking API",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("db_name", cfg.DBName))

	otel.SetTextMapPropagator(propagation.TraceContext{})

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		return err
	}

	courseRepo := repository.NewCourseRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	engine := service.NewReservationEngine(courseRepo, logger)
	orderService := service.NewOrderService(engine, orderRepo, notifier, logger)
	courseService := service.NewCourseService(courseRepo, logger)

	opts := httpapi.RouterOptions{
		SeedEnabled: cfg.SeedEnabled,
		CORSOrigins: cfg.CORSOrigins,
		ImagesDir:   cfg.ImagesDir,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, idempotency will degrade per request", zap.Error(err))
		}
		opts.Idempotency = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	}

	var relay *outbox.Relay
	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer writer.Close()

		dispatcher := outbox.NewDispatcher(logger, writer, cfg.OrdersTopic)
		relay = outbox.NewRelay(logger, outboxRepo, dispatcher, relayID())
	}

	scheduler := app.NewScheduler(courseRepo, relay, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := httpapi.NewHandler(orderService, courseService, pool, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, opts, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (service.Notifier, error) {
	if !cfg.TelegramAlertsEnabled() {
		logger.Info("Telegram alerts disabled, compensation failures go to the log")
		return notify.NewLogNotifier(logger), nil
	}

	b, err := notify.NewTelegramBot(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	return notify.NewTelegramNotifier(b, cfg.TelegramAlertChatID, logger), nil
}

func relayID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "relay"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
