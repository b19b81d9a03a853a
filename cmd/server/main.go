package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agriconnect/market-core/internal/adapter/handler"
	"github.com/agriconnect/market-core/internal/adapter/storage/memory"
	"github.com/agriconnect/market-core/internal/adapter/storage/mysql"
	"github.com/agriconnect/market-core/internal/adapter/storage/redis"
	"github.com/agriconnect/market-core/internal/config"
	"github.com/agriconnect/market-core/internal/core/service"
	"github.com/agriconnect/market-core/internal/port"
	"github.com/agriconnect/market-core/internal/telemetry"
)

func main() {
	logger := telemetry.InitLogger()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		listings      port.ListingStore
		orders        port.OrderLedger
		notifications port.NotificationSink
		sessions      port.SessionStore
		guard         port.IdempotencyGuard
		closers       []func()
	)

	switch cfg.StorageBackend {
	case "mysql":
		db, err := mysql.Connect(ctx, &cfg.Database)
		if err != nil {
			logger.Error("connect mysql", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() { db.Close() })
		if err := mysql.EnsureSchema(ctx, db); err != nil {
			logger.Error("ensure schema", "error", err)
			os.Exit(1)
		}
		store := mysql.NewStore(db)
		listings, orders, notifications = store, store, store.NotificationSink()
		logger.Info("storage ready", "backend", "mysql")

		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func() { rdb.Close() })
		adapter := redis.NewAdapter(rdb)
		sessions, guard = adapter, adapter
		logger.Info("redis ready", "addr", cfg.Redis.Addr)
	default:
		store := memory.NewStore()
		listings, orders, notifications = store, store, store.NotificationSink()
		sessions = memory.NewSessionStore()
		guard = memory.NewIdempotencyGuard()
		logger.Info("storage ready", "backend", "memory")
	}

	coordinator := service.NewCoordinator(listings, orders, notifications,
		service.WithIdempotencyGuard(guard),
		service.WithLogger(logger),
		service.WithMaxRetries(cfg.Orders.MaxRetries),
		service.WithAttemptTimeout(cfg.Orders.AttemptTimeout),
	)

	httpHandler := handler.NewHTTPHandler(coordinator, sessions, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	logger.Info("stopped")
}
