package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-placement-service/internal/config"
	httpctl "order-placement-service/internal/controllers/http"
	mmysql "order-placement-service/internal/infra/mysql"
	"order-placement-service/internal/infra/rabbitmq"
	rcache "order-placement-service/internal/infra/redis"
	"order-placement-service/internal/observability"
	mysqlrepo "order-placement-service/internal/repository/mysql"
	"order-placement-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}

	logger := observability.NewLogger(cfg.ServiceName)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.Setup(ctx, cfg)
	if err != nil {
		// Telemetry is best effort; the service still takes orders without it.
		logger.Warn("OpenTelemetry setup failed", zap.Error(err))
		shutdownOtel = func(context.Context) error { return nil }
	}

	db, err := mmysql.NewMySQL(ctx, cfg.MySQL, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.Exchange, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	svc := services.NewOrderService(
		mysqlrepo.NewStore(db),
		mysqlrepo.NewOrderRepository(db),
		publisher,
		services.WithLogger(logger),
		services.WithMaxConflictRetries(cfg.MaxConflictRetries),
	)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DB:           0,
			PoolSize:     200,
			MinIdleConns: 20,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		defer rdb.Close()

		cache := rcache.NewOrderCache(rdb, cfg.OrdersCacheTTL, logger)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, order listings served uncached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			svc.SetCache(cache)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpctl.RequestLogger(logger))
	httpctl.NewHandler(svc, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting order service", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// Let in-flight event publishes drain before the channel closes.
		svc.Wait()
		if otelErr := shutdownOtel(shutdownCtx); otelErr != nil {
			logger.Error("OpenTelemetry shutdown failed", zap.Error(otelErr))
		}
		return err
	})

	return g.Wait()
}
