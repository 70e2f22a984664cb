package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing := telemetry.SetupTracing(context.Background(), serviceName, cfg.Environment, cfg.Tracing.OTLPEndpoint)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "messaging.audit", serviceName, cfg.Environment)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	registry := presence.NewRegistry()
	relay := ws.NewRelay()
	messaging := service.NewMessagingService(conversationRepo, messageRepo, userRepo, registry, relay)

	validator := middleware.NewJWTValidator(cfg.JWT.Secret)
	messageHandler := handlers.NewMessageHandler(messaging, audit)
	conversationHandler := handlers.NewConversationHandler(messaging, audit)
	socketHandler := ws.NewSocketHandler(relay, registry, conversationRepo, validator, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(validator)
	sendLimiter := middleware.NewSendLimiter(redisClient, 60, time.Minute)

	router.POST("/messages/send/:user_id", authMiddleware, sendLimiter.Limit(), messageHandler.Send)
	router.GET("/messages/:user_id", authMiddleware, messageHandler.History)
	router.GET("/conversations", authMiddleware, conversationHandler.List)
	router.POST("/conversations/start", authMiddleware, conversationHandler.Start)

	router.GET("/ws", socketHandler.Handle)

	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
