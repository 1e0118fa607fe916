// Package main runs the live-session API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/acadlive/backend/config"
	"github.com/acadlive/backend/internal/auth"
	"github.com/acadlive/backend/internal/conference"
	"github.com/acadlive/backend/internal/courses"
	"github.com/acadlive/backend/internal/middleware"
	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/internal/participants"
	"github.com/acadlive/backend/internal/sessions"
	"github.com/acadlive/backend/pkg/database"
	"github.com/acadlive/backend/pkg/queue"
	"github.com/acadlive/backend/pkg/redis"
	"github.com/acadlive/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	secret, dedicated := cfg.Conference.SigningSecret(cfg.JWT.Secret)
	if !dedicated {
		logger.Warn("CONFERENCE_TOKEN_SECRET not set, falling back to JWT_SECRET; configure a dedicated key")
	}
	tokenIssuer, err := conference.NewTokenIssuer(cfg.Conference.Issuer, cfg.Conference.Audience, secret)
	if err != nil {
		logger.Fatal("conference token issuer", zap.Error(err))
	}
	roomNamer := conference.NewRoomNamer(cfg.Conference.RoomPrefix)

	// Identity
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Course/enrollment read side
	courseRepo := courses.NewRepository(pool)

	// Participants
	sessionRepo := sessions.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	tracker := participants.NewTracker(participantRepo, sessionRepo, courseRepo, tokenIssuer, logger)
	participantHandler := participants.NewHandler(tracker, logger)

	// Sessions
	jobQueue := queue.NewQueue(rdb.Client, logger)
	sessionSvc := sessions.NewService(sessionRepo, courseRepo, roomNamer, tokenIssuer, participantRepo, jobQueue, cfg.Conference.ServerURL, logger)
	sessionHandler := sessions.NewHandler(sessionSvc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/courses/:id/sessions",
			middleware.RequireRole(models.UserRoleInstructor, models.UserRoleAdmin),
			sessionHandler.Create)
		api.GET("/courses/:id/sessions", sessionHandler.ListByCourse)

		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.PATCH("/sessions/:id", sessionHandler.Update)
		api.DELETE("/sessions/:id", sessionHandler.Delete)
		api.POST("/sessions/:id/start", sessionHandler.Start)
		api.POST("/sessions/:id/end", sessionHandler.End)

		api.POST("/sessions/:id/join", participantHandler.Join)
		api.POST("/sessions/:id/leave", participantHandler.Leave)
		api.POST("/sessions/:id/token", participantHandler.IssueToken)
		api.GET("/sessions/:id/participants", participantHandler.Roster)

		api.GET("/me/sessions", sessionHandler.MySessions)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
