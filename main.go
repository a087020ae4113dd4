package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"condo-chat/internal/auth"
	"condo-chat/internal/chat"
	"condo-chat/internal/config"
	"condo-chat/internal/db"
	"condo-chat/internal/events"
	grpcserver "condo-chat/internal/grpc"
	"condo-chat/internal/handlers"
	"condo-chat/internal/logger"
	"condo-chat/internal/middleware"
	"condo-chat/internal/models"
	"condo-chat/internal/observability"
	"condo-chat/internal/rabbitmq"
	"condo-chat/internal/repositories"
	"condo-chat/internal/telemetry"
	"condo-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Service: cfg.ServiceName,
		Version: cfg.Version,
		Env:     cfg.LogEnv,
		Level:   cfg.LogLevel,
		Backend: logger.Backend(cfg.LogBackend),
	})

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Version, cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}

	store, database, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	var broker *rabbitmq.Broker
	if cfg.AMQPURL != "" {
		broker, err = rabbitmq.Dial(ctx, cfg.AMQPURL, 30*time.Second, log)
		if err != nil {
			log.Error("rabbitmq unavailable, events disabled", slog.Any("error", err))
			broker = nil
		}
	}

	publisher := rabbitmq.NewPublisher(ctx, broker, cfg.AMQPExchange, log)
	log.Info("publisher configured",
		slog.String("mode", rabbitmq.PublisherMode(publisher)),
		slog.String("reason", rabbitmq.PublisherNoopReason(publisher)))

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, log)
	hub := ws.NewHub(publisher, log)
	service := chat.NewService(store, publisher, hub, log, chat.Options{AutoProvisionSenders: cfg.AutoProvisionSenders})
	validator := auth.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer)

	var workers sync.WaitGroup
	if broker != nil {
		consumer := rabbitmq.NewConsumer(broker, rabbitmq.ConsumerConfig{
			Exchange:           cfg.AMQPExchange,
			Queue:              cfg.AMQPQueue,
			RoutingKeys:        models.InboundRoutingKeys,
			DeadLetterExchange: cfg.DeadLetterExchange,
			MaxRedeliveries:    cfg.MaxRedeliveries,
			Tag:                cfg.ServiceName,
		}, events.NewHandler(service, publisher, log), log)

		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("consumer exited", slog.Any("error", err))
			}
		}()
	}

	router := newRouter(cfg, log, service, validator, hub, audit)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(cfg).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpcserver.NewServer(cfg.GRPCAddr, log)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcSrv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcSrv.SetServing(false)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.Any("error", err))
	}
	grpcSrv.Shutdown(shutdownCtx)
	workers.Wait()
	hub.Close()
	if err := publisher.Close(); err != nil {
		log.Warn("publisher close", slog.Any("error", err))
	}
	if broker != nil {
		if err := broker.Close(); err != nil {
			log.Warn("rabbitmq close", slog.Any("error", err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", slog.Any("error", err))
	}
	log.Info("shutdown complete")
	return runErr
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (chat.Store, *sqlx.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return chat.MemoryStore(repositories.NewMemStore()), nil, nil
	}

	database, err := db.Connect(ctx, cfg.DBDSN, log)
	if err != nil {
		return chat.Store{}, nil, err
	}
	return chat.Store{
		Conversations: repositories.NewConversationRepo(database),
		Participants:  repositories.NewParticipantRepo(database),
		Messages:      repositories.NewMessageRepo(database),
		Users:         repositories.NewUserRepo(database),
	}, database, nil
}

func newRouter(cfg config.Config, log *slog.Logger, service *chat.Service, validator auth.TokenValidator, hub *ws.Hub, audit *telemetry.AuditEmitter) *gin.Engine {
	if cfg.LogEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		observability.HTTPMetricsMiddleware(),
		middleware.AccessLog(log),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsHandler := ws.NewConversationWebSocketHandler(hub, service, validator, nil)
	router.GET("/api/chat/ws/conversations/:conversation_id", wsHandler.Handle)

	api := router.Group("/api/chat", middleware.AuthMiddleware(validator))
	handlers.NewChatHandler(service, audit).Register(api)
	handlers.RegisterDebugRoutes(api, audit, hub, cfg.DebugRoutes)

	return router
}

func corsHandler(cfg config.Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", observability.RequestIDHeader},
		ExposedHeaders: []string{observability.RequestIDHeader},
		MaxAge:         300,
	})
}
