package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/glowora/cart-core/internal/adapter/handler"
	"github.com/glowora/cart-core/internal/adapter/storage"
	"github.com/glowora/cart-core/internal/config"
	"github.com/glowora/cart-core/internal/core/cache"
	"github.com/glowora/cart-core/internal/core/service"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logrus.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logrus.Fatalf("failed to ping mysql: %v", err)
	}
	logrus.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("failed to connect redis: %v", err)
	}
	logrus.Info("connected to redis")

	// Initialize adapters and core
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	kv := cache.New(redisAdapter, cfg.SweepInterval)
	validator := service.NewCouponValidator(mysqlAdapter)
	carts := service.NewCartService(kv, mysqlAdapter, validator, cfg.CartTTL)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(carts)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logrus.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logrus.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logrus.Info("HTTP server stopped")

	kv.Close()
	logrus.Info("cache sweeper stopped")

	rdb.Close()
	db.Close()
	logrus.Info("connections closed")
}
