package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"geminichat-backend/internal/auth"
	"geminichat-backend/internal/chat"
	"geminichat-backend/internal/chatroom"
	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/config"
	"geminichat-backend/internal/countries"
	"geminichat-backend/internal/history"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/responder"
	"geminichat-backend/internal/store"
	"geminichat-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig(".env")
	if config.Cfg == nil {
		lg := logger.L()
		lg.Fatal().Msg("Configuration not loaded")
	}

	logger.Init(logger.Config{
		Level:       config.Cfg.LogLevel,
		Pretty:      config.Cfg.LogPretty,
		ServiceName: "geminichat-backend",
	})
	log := logger.L()

	log.Info().
		Str("port", config.Cfg.ServerPort).
		Str("storage", config.Cfg.StorageDriver).
		Str("storage_target", storageTarget(config.Cfg)).
		Msg("Chat Backend Starting...")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	kv, err := store.Open(startCtx, store.DriverConfig{
		Driver:      config.Cfg.StorageDriver,
		Dir:         config.Cfg.StorageDir,
		DatabaseURL: config.Cfg.DatabaseURL,
		Redis: store.RedisConfig{
			Address:  config.Cfg.RedisAddr,
			Password: config.Cfg.RedisPassword,
			DB:       config.Cfg.RedisDB,
			Prefix:   config.Cfg.RedisPrefix,
		},
	})
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to open storage backend")
	}
	defer kv.Close()
	log.Info().Msgf("Storage initialized: %T", kv)

	clk := clock.Real{}
	persistence := store.NewPersistence(kv, clk)

	chatStore := chat.NewStore(persistence, clk)
	chatStore.Restore(context.Background())

	replies := responder.New(chatStore, clk, responder.Config{
		MinDelay: config.Cfg.ReplyMinDelay,
		MaxDelay: config.Cfg.ReplyMaxDelay,
	})
	defer replies.Stop()

	loader := history.NewLoader(chatStore, clk, config.Cfg.HistoryDelay)
	defer loader.Stop()

	chatService := chatroom.NewService(chatStore, replies, loader)

	wsHub := websocket.NewHub(chatService, chatStore)
	chatStore.SetNotifier(wsHub)
	go wsHub.Run()
	defer wsHub.Stop()
	log.Info().Msg("WebSocket Hub initialized and running.")

	authHandler, err := auth.NewAuthHandler(persistence, clk, auth.Options{
		OTPCode:    config.Cfg.OTPCode,
		SendDelay:  config.Cfg.OTPSendWait,
		BcryptCost: config.Cfg.BcryptCost,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to initialize auth handler")
	}

	chatRestHandler := chatroom.NewRestHandler(chatStore, chatService)
	countryHandler := countries.NewHandler(countries.NewClient(config.Cfg.CountriesURL, config.Cfg.CountriesTimeout, config.Cfg.CountriesCacheTTL))
	wsHandler := websocket.NewWSHandler(wsHub, persistence, config.Cfg.CORSOrigins)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(logger.GinMiddleware(logger.Component("http")))
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.Cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = config.Cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Upgrade", "Connection", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	r.GET("/", authHandler.RootRedirect)
	r.GET("/ws", wsHandler.HandleWebSocketConnection)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/countries", countryHandler.ListCountries)

		publicAuthRoutes := apiV1.Group("/auth")
		{
			publicAuthRoutes.POST("/otp/send", authHandler.SendOTP)
			publicAuthRoutes.POST("/otp/verify", authHandler.VerifyOTP)
		}

		protected := apiV1.Group("/")
		protected.Use(middleware.AuthMiddleware(persistence))
		{
			protected.GET("/auth/me", authHandler.GetMe)
			protected.POST("/auth/logout", authHandler.Logout)

			protected.GET("/chat/state", chatRestHandler.GetState)
			protected.POST("/chatrooms", chatRestHandler.CreateChatroom)
			protected.PUT("/chatrooms/active", chatRestHandler.SetActiveChatroom)
			protected.DELETE("/chatrooms/:id", chatRestHandler.DeleteChatroom)
			protected.POST("/chatrooms/:id/clear", chatRestHandler.ClearChatroom)
			protected.POST("/chatrooms/:id/sample", chatRestHandler.SeedChatroom)
			protected.GET("/chatrooms/:id/messages", chatRestHandler.GetMessages)
			protected.POST("/chatrooms/:id/history", chatRestHandler.RequestHistory)
			protected.POST("/messages", chatRestHandler.PostMessage)
		}
	}

	srv := &http.Server{
		Addr:    ":" + config.Cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Msgf("Listening and serving HTTP on :%s", config.Cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// storageTarget describes where chat data lives without leaking credentials.
func storageTarget(cfg *config.AppConfig) string {
	switch strings.ToLower(cfg.StorageDriver) {
	case "file":
		return cfg.StorageDir
	case "postgres":
		return getDBHost(cfg.DatabaseURL)
	case "redis":
		return cfg.RedisAddr
	default:
		return "in-memory"
	}
}

func getDBHost(dbURL string) string {
	if i := strings.Index(dbURL, "@"); i != -1 {
		postAt := dbURL[i+1:]
		if j := strings.Index(postAt, "/"); j != -1 {
			return postAt[:j]
		}
		return postAt
	}
	if strings.HasPrefix(dbURL, "postgres://") {
		urlPart := dbURL[len("postgres://"):]
		if j := strings.Index(urlPart, "/"); j != -1 {
			return urlPart[:j]
		}
		return urlPart
	}
	return "unknown"
}
