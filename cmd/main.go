// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/config"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/database"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/handler"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/notify"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/ratelimit"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/repository"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/service"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/sweeper"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to a YAML config file")
	migrate := flag.Bool("migrate", true, "apply the database schema on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info("Connected to PostgreSQL")

	if *migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.WithError(err).Fatal("Failed to apply schema")
		}
	}

	// ── 2. Optional collaborators ─────────────────────────────────────────
	store := repository.NewStore(pool)
	sinks := []notify.Sink{notify.NewStoreSink(store)}

	if cfg.RabbitMQ.URL != "" {
		amqpSink, err := notify.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, notifications stay local")
		} else {
			defer amqpSink.Close()
			sinks = append(sinks, amqpSink)
		}
	}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.WithError(err).Warn("Telegram unavailable, ops chat disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}

	var limiter handler.Limiter
	if cfg.Redis.Addr != "" {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("Invalid Redis configuration")
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis ping failed, checkout limiter will fail open until it recovers")
		}
		limiter = ratelimit.New(rdb, "checkout", cfg.Redis.CheckoutLimit, cfg.Redis.CheckoutWindow)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	inventory := service.NewInventoryService(store)
	transactions := service.NewTransactionService(store, inventory, notify.NewMulti(sinks...))

	router := handler.NewRouter(handler.Deps{
		Inventory:       inventory,
		Transactions:    transactions,
		Auth:            handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		CheckoutLimiter: limiter,
		Ping:            store.Ping,
		Metrics:         promhttp.Handler(),
		CORS:            cfg.CORS,
	})

	if cfg.Transactions.ExpireAfter > 0 {
		sw := sweeper.New(transactions, cfg.Transactions.ExpireAfter,
			cfg.Transactions.SweepInterval, cfg.Transactions.SweepBatch)
		go sw.Run(ctx)
	}

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	<-ctx.Done()
	stop()

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}
	log.Info("Server stopped")
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.Contains(cfg.Addr, "://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
