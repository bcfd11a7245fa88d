package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-presence/internal/chat"
	"chat-presence/internal/config"
	"chat-presence/internal/handlers"
	"chat-presence/internal/middleware"
	"chat-presence/internal/observability"
	"chat-presence/internal/rabbitmq"
	"chat-presence/internal/telemetry"
	"chat-presence/internal/ws"
)

func main() {
	cfg, err := config.Load(os.Args[1:], env.ToMap(os.Environ()))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		"mode", rabbitmq.PublisherMode(publisher),
		"noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Environment, logger)

	hub := ws.NewHub(logger)
	go hub.Run()

	service := chat.NewService(hub, chat.Options{
		DefaultRoom: cfg.DefaultRoom,
		HistoryCap:  cfg.HistoryCap,
		Logger:      logger,
	})

	origins := ws.NewOriginPolicy(cfg.AllowedOrigins, logger)
	wsHandler := ws.NewHandler(hub, service, ws.Options{
		Origins:        origins,
		MaxMessageSize: cfg.MaxMessageSize,
		RateBurst:      cfg.RateLimit.Burst,
		RatePerSecond:  cfg.RateLimit.PerSecond,
		DefaultRoom:    cfg.DefaultRoom,
		Logger:         logger,
	})
	queryHandler := handlers.NewQueryHandler(service)

	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.AccessLog(logger))

	router.GET("/", handlers.Health)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", middleware.CORS(origins.Allowed))
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.GET("/messages/:room", queryHandler.GetRoomMessages)
	api.GET("/users", queryHandler.ListUsers)
	api.GET("/rooms", queryHandler.ListRooms)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, service, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("chat server listening", "addr", srv.Addr, "default_room", cfg.DefaultRoom, "origins", cfg.AllowedOrigins)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	audit.Emit(context.Background(), "INFO", "chat server started", "")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				return hub.Shutdown(ctx)
			},
			"tracer": func(ctx context.Context) error {
				return shutdownTracer(ctx)
			},
			"amqp": func(ctx context.Context) error {
				audit.Emit(ctx, "INFO", "chat server stopping", "")
				return publisher.Close()
			},
		},
	)

	exitCode := <-wait
	logger.Info("chat server exited", "code", exitCode)
	os.Exit(exitCode)
}
