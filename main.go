package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"dm-service/internal/auth"
	"dm-service/internal/config"
	"dm-service/internal/db"
	grpcserver "dm-service/internal/grpc"
	"dm-service/internal/handlers"
	"dm-service/internal/logging"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/push"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/services"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEnabled)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	health := grpcserver.NewHealthServer(cfg.ServiceName, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			log.Error(ctx, "grpc health server failed", "error", err)
		}
	}()
	defer health.Stop()

	database, err := db.Connect(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info(ctx, "event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment, log)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenValidity)

	var sender push.Sender
	if cfg.PushEnabled() {
		sender = push.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, cfg.PushTTL, &http.Client{Timeout: cfg.PushTimeout})
	}
	dispatcher := push.NewDispatcher(userRepo, sender, cfg.PushTimeout, log)

	hub := ws.NewHub()
	lifecycle := ws.NewLifecycle(hub, tokens, userRepo, log)
	messageService := services.NewMessageService(userRepo, messageRepo, dispatcher, hub, log)

	production := cfg.Environment == "production"
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	authHandler := handlers.NewAuthHandler(userRepo, tokens, audit, production)
	messageHandler := handlers.NewMessageHandler(messageService, audit)
	notificationHandler := handlers.NewNotificationHandler(userRepo, dispatcher, cfg.VAPIDPublicKey)
	wsHandler := ws.NewHandler(lifecycle, cfg.ClientURL, cfg.AuthTimeout, cfg.SendBufferSize, log)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.CORS(cfg.ClientURL))

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authRoutes := router.Group("/api/auth")
	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/logout", authHandler.Logout)
	authRoutes.GET("/me", authMiddleware, authHandler.Me)

	messageRoutes := router.Group("/api/messages", authMiddleware)
	messageRoutes.GET("/users", messageHandler.ListUsers)
	messageRoutes.GET("/conversation/:recipientId", messageHandler.Conversation)
	messageRoutes.POST("/send", messageHandler.Send)
	messageRoutes.GET("/unread-count", messageHandler.UnreadCount)

	notificationRoutes := router.Group("/api/notifications")
	notificationRoutes.GET("/vapid-public-key", notificationHandler.VAPIDPublicKey)
	notificationRoutes.POST("/subscribe", authMiddleware, notificationHandler.Subscribe)
	notificationRoutes.POST("/unsubscribe", authMiddleware, notificationHandler.Unsubscribe)

	handlers.RegisterDebugRoutes(router, audit, notificationHandler, authMiddleware, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "http server listening", "addr", cfg.HTTPAddr, "push_enabled", dispatcher.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	health.SetServing(true)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info(context.Background(), "shutting down")
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Close()
	err = srv.Shutdown(shutdownCtx)
	dispatcher.Wait()
	lifecycle.Wait()
	return err
}
