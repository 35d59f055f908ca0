package main

import (
	"context"
	"log"
	"time"

	"ripple/config"
	"ripple/internal/events"
	"ripple/internal/handler"
	ripple_redis "ripple/internal/redis"
	"ripple/internal/repository"
	"ripple/internal/server"
	"ripple/internal/services"
	"ripple/internal/websocket"
	"ripple/pkg/database"
	"ripple/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := ripple_redis.NewClient(cfg)

	// Realtime fan-out: hub + redis bridge, stopped with the server.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	bridge := websocket.NewRedisBridge(ripple_redis.NewSubscriber(redisClient), hub)
	go func() {
		for {
			if err := bridge.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				l.Errorf("redis bridge stopped: %s, reconnecting", err)
				time.Sleep(time.Second)
			}
		}
	}()

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	cache := ripple_redis.NewCacheStore(redisClient, ripple_redis.DefaultCacheConfig())
	identity := services.NewIdentityService(userRepo, cache, l)
	authService := services.NewAuthService(userRepo, cfg)
	publisher := events.NewRedisPublisher(redisClient)
	messagingService := services.NewMessagingService(db, convRepo, msgRepo, identity, publisher, l)

	limitCfg := ripple_redis.DefaultRateLimitConfig()
	if cfg.SendRatePerMin > 0 {
		limitCfg.MessageLimit = cfg.SendRatePerMin
	}
	limiter := ripple_redis.NewRateLimiter(redisClient, limitCfg)

	handlers := &server.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Message:  handler.NewMessageHandler(messagingService),
		Realtime: websocket.NewHandler(authService, hub, ripple_redis.NewPublisher(redisClient), l),
	}

	srv := server.New(cfg, l, db)
	srv.SetupRoutes(handlers, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
