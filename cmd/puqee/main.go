package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/config"
	"github.com/vnmchuo/puqee/internal/agent"
	"github.com/vnmchuo/puqee/internal/agent/chatbot"
	"github.com/vnmchuo/puqee/internal/api"
	"github.com/vnmchuo/puqee/internal/gateway"
	"github.com/vnmchuo/puqee/internal/metrics"
	"github.com/vnmchuo/puqee/internal/telemetry"
	"github.com/vnmchuo/puqee/pkg/ratelimit"
)

func main() {
	mode := flag.String("mode", "http", "run mode: http or chat")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init logger
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("puqee", cfg, logger)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	// 4. Init LLM gateway
	collector := metrics.NewCollector("puqee", logger)
	tracer := otel.GetTracerProvider().Tracer("puqee")
	gw := gateway.NewFromConfig(cfg, logger,
		gateway.WithTracer(tracer),
		gateway.WithObserver(gateway.NewLogObserver(logger)),
		gateway.WithObserver(collector),
	)
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("failed to close llm gateway", zap.Error(err))
		}
	}()

	// 5. Init agents
	manager := agent.NewManager(logger, agent.WithRecorder(collector))
	manager.RegisterType(chatbot.TypeName, chatbot.Factory(cfg.ChatHistorySize, logger))
	manager.InjectDependencies(agent.Deps{LLM: gw})

	ctx := context.Background()
	if _, err := manager.CreateAgent(ctx, chatbot.TypeName, chatbot.DefaultAgentID, "ChatBot", "Default conversational assistant"); err != nil {
		logger.Fatal("failed to create default chatbot", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		manager.ShutdownAll(shutdownCtx)
	}()

	switch *mode {
	case "http":
		err = serveHTTP(cfg, logger, gw, manager, collector)
	case "chat":
		err = runChat(ctx, os.Stdin, os.Stdout, manager, gw)
	default:
		err = fmt.Errorf("unknown mode %q (want http or chat)", *mode)
	}
	if err != nil {
		logger.Error("puqee exited with error", zap.Error(err))
	}
}

func serveHTTP(cfg *config.Config, logger *zap.Logger, gw *gateway.Gateway, manager *agent.Manager, collector *metrics.Collector) error {
	// Rate limiting is enabled only when Redis is configured.
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimitPerMinute)
	}

	handler := api.NewHandler(gw, manager, limiter, otel.GetTracerProvider().Tracer("puqee"), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, collector),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Puqee starting", zap.String("port", cfg.Port), zap.Strings("providers", gw.Providers()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
