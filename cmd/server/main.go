package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Liberatex/Rotation/internal/config"
	"github.com/Liberatex/Rotation/internal/database"
	"github.com/Liberatex/Rotation/internal/handlers"
	"github.com/Liberatex/Rotation/internal/middleware"
	"github.com/Liberatex/Rotation/internal/services"
	"github.com/Liberatex/Rotation/internal/ws"
)

// @title           Rotation API
// @version         1.0
// @description     Turn-based rotation sessions with realtime updates
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	hub := ws.NewHub()

	authService := services.NewAuthService(db, cfg.JWTSecret)
	userService := services.NewUserService(db)
	sessionService := services.NewSessionService(db, hub)
	rotationService := services.NewRotationService(db, hub)

	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	rotationHandler := handlers.NewRotationHandler(rotationService)
	wsHandler := handlers.NewWSHandler(hub, authService, sessionService)

	r := gin.Default()

	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws", wsHandler.HandleWebSocket)

	apiLimit := middleware.RateLimit(rdb, "api", cfg.RateLimitMax,
		time.Duration(cfg.RateLimitWindowSec)*time.Second)
	authLimit := middleware.RateLimit(rdb, "auth", cfg.AuthRateLimitMax,
		time.Duration(cfg.AuthRateLimitWindow)*time.Second)

	api := r.Group("/api/v1")
	api.Use(apiLimit)
	{
		auth := api.Group("/auth")
		auth.Use(authLimit)
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
		}

		users := api.Group("/users")
		users.Use(middleware.JWTAuth(authService))
		{
			users.GET("/me", userHandler.Me)
			users.PUT("/me", userHandler.UpdateMe)
		}

		sessions := api.Group("/sessions")
		sessions.Use(middleware.JWTAuth(authService))
		{
			sessions.GET("", sessionHandler.ListSessions)
			sessions.POST("", sessionHandler.CreateSession)
			sessions.POST("/join", sessionHandler.JoinByCode)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.PUT("/:id", sessionHandler.UpdateSession)
			sessions.DELETE("/:id", sessionHandler.DeleteSession)
			sessions.POST("/:id/join", sessionHandler.JoinSession)
			sessions.POST("/:id/leave", sessionHandler.LeaveSession)
			sessions.GET("/:id/participants", sessionHandler.ListParticipants)
			sessions.POST("/:id/participants", sessionHandler.AddParticipant)
			sessions.DELETE("/:id/participants/:user_id", sessionHandler.RemoveParticipant)
			sessions.GET("/:id/rotations", rotationHandler.ListRotations)
			sessions.POST("/:id/rotations", rotationHandler.CreateRotation)
		}

		rotations := api.Group("/rotations")
		rotations.Use(middleware.JWTAuth(authService))
		{
			rotations.GET("/:id", rotationHandler.GetRotation)
			rotations.PUT("/:id", rotationHandler.UpdateRotation)
			rotations.DELETE("/:id", rotationHandler.DeleteRotation)
			rotations.POST("/:id/start", rotationHandler.Start)
			rotations.POST("/:id/pause", rotationHandler.Pause)
			rotations.POST("/:id/resume", rotationHandler.Resume)
			rotations.POST("/:id/pass", rotationHandler.Pass)
			rotations.POST("/:id/timeout", rotationHandler.Timeout)
			rotations.POST("/:id/end", rotationHandler.End)
			rotations.GET("/:id/turns", rotationHandler.ListTurns)
			rotations.GET("/:id/history", rotationHandler.ListHistory)
		}
	}

	logrus.WithField("port", cfg.ServerPort).Info("server starting")
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}
}
