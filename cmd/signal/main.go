package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"telemeet/internal/core/ports"
	"telemeet/internal/core/services"
	handlers "telemeet/internal/handlers/http"
	"telemeet/internal/infrastructure/archive"
	"telemeet/internal/infrastructure/directory"
	"telemeet/internal/infrastructure/middleware"
	"telemeet/internal/infrastructure/monitoring"
	signalws "telemeet/internal/infrastructure/signal"
	"telemeet/internal/infrastructure/translate"
	"telemeet/pkg/config"
	"telemeet/pkg/logger"
	"telemeet/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}

	var metrics ports.Metrics = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	dir := directory.NewMemoryDirectory()

	var sink ports.TranscriptSink
	if cfg.Redis.Enabled {
		redisSink, err := archive.NewRedisSink(archive.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, sugar)
		if err != nil {
			sugar.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisSink.Close()
		sink = redisSink
	} else {
		sink = archive.NewMemorySink()
	}

	var translator ports.Translator
	if cfg.Translation.Enabled {
		translator = translate.NewHTTPTranslator(cfg.Translation.Endpoint, cfg.Translation.Timeout, sugar)
	}

	registry := services.NewRegistry(dir, sink, translator, metrics, services.SessionConfig{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		SweepInterval:    cfg.Session.SweepInterval,
		InboundQueueSize: cfg.Session.InboundQueueSize,
		AllowReconnect:   cfg.Session.AllowReconnect,
	}, sugar)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	wsCfg := signalws.Config{
		PingInterval: cfg.Signal.PingInterval,
		PongTimeout:  cfg.Signal.PongTimeout,
		WriteTimeout: cfg.Signal.WriteTimeout,
		OutboxSize:   cfg.Signal.OutboxSize,
	}
	if cfg.RateLimiting.Enabled {
		wsCfg.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsCfg.Burst = cfg.RateLimiting.WebSocket.Burst
		wsCfg.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	wsServer := signalws.NewWebSocketServer(registry, authService, wsCfg, sugar)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.ErrorHandlerMiddleware(sugar))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/health", handlers.HealthHandler(registry))
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	api := router.Group("/api/v1")
	handlers.NewAuthHandler(authService).SetupRoutes(api)

	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(authService))
	handlers.NewMeetingHandler(registry, dir).SetupRoutes(protected)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		sugar.Infow("signaling server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	sugar.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Warnw("http shutdown failed", "error", err)
	}
	if err := registry.Shutdown(ctx); err != nil {
		sugar.Warnw("registry shutdown incomplete", "error", err)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		sugar.Warnw("tracer shutdown failed", "error", err)
	}
}

func configPath() string {
	if path := os.Getenv("TELEMEET_CONFIG"); path != "" {
		return path
	}
	return "configs/config.yaml"
}
