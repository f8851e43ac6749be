package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/handler"
	"github.com/efreitasn/marketsim/internal/publish"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/store"
)

const publishQueueSize = 256

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ledger, err := openLedger(cfg)
	if err != nil {
		logger.Error("failed to open ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ledger.Close()

	behaviors, redisClient := openBehaviorStore(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("simulation seed", slog.Uint64("seed", seed))

	// Publishers: the WebSocket hub inline (it never blocks), Kafka and the
	// webhook behind an async dispatcher when configured.
	hub := handler.NewHub(logger)
	var sinks publish.Fanout
	var kafkaPub *publish.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaPub)
		logger.Info("kafka publishing enabled", slog.String("topic", cfg.KafkaTopic))
	}
	if cfg.TickWebhookURL != "" {
		sinks = append(sinks, publish.NewWebhookPublisher(cfg.TickWebhookURL, cfg.WebhookTimeout))
		logger.Info("webhook publishing enabled", slog.String("url", cfg.TickWebhookURL))
	}
	publishers := publish.Fanout{hub}
	var dispatcher *publish.Async
	if len(sinks) > 0 {
		dispatcher = publish.NewAsync(sinks, publishQueueSize, cfg.WebhookTimeout, logger)
		publishers = append(publishers, dispatcher)
	}

	agentSvc := service.NewAgentService(ledger, seed)
	simSvc := service.NewSimulationService(ledger, engine.NewGenerator(seed), publishers, cfg.GeneratorWorkers, logger)
	behaviorSvc := service.NewBehaviorService(behaviors)

	router := handler.NewRouter(agentSvc, simSvc, behaviorSvc, hub, cfg.CORSOrigins, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var schedulerDone <-chan struct{}
	if cfg.TickInterval > 0 {
		schedulerDone = service.NewTickScheduler(cfg.TickInterval, simSvc, logger).Start(ctx)
		logger.Info("tick scheduler started", slog.Duration("interval", cfg.TickInterval))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop the scheduler first so no tick starts against a closing ledger.
	cancel()
	if schedulerDone != nil {
		<-schedulerDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Error("publish queue drain error", slog.String("error", err.Error()))
		}
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka writer close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func openLedger(cfg *config.Config) (store.Ledger, error) {
	if cfg.StoreBackend == config.BackendPebble {
		l, err := store.NewPebbleLedger(cfg.DataDir, nil)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return store.NewMemoryLedger(), nil
}

// openBehaviorStore returns a Redis-backed store when REDIS_ADDR is set and
// reachable, and the in-memory store otherwise.
func openBehaviorStore(cfg *config.Config, logger *slog.Logger) (store.BehaviorStore, *redis.Client) {
	if cfg.RedisAddr == "" {
		return store.NewMemoryBehaviorStore(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory behavior store",
			slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
		client.Close()
		return store.NewMemoryBehaviorStore(), nil
	}
	logger.Info("redis behavior store enabled", slog.String("addr", cfg.RedisAddr))
	return store.NewRedisBehaviorStore(client, "marketsim:behaviors"), client
}
