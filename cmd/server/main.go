// Package main runs the roomsense access-control and membership API
// server with graceful shutdown.
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

	"github.com/roomsense/backend/config"
	"github.com/roomsense/backend/internal/devices"
	"github.com/roomsense/backend/internal/feed"
	"github.com/roomsense/backend/internal/geofences"
	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/memberships"
	"github.com/roomsense/backend/internal/middleware"
	"github.com/roomsense/backend/internal/users"
	"github.com/roomsense/backend/pkg/database"
	"github.com/roomsense/backend/pkg/redis"
	"github.com/roomsense/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	tokens := identity.NewTokenService(cfg.Identity.Secret, cfg.Identity.Issuer)

	// Change feed: in-process broker plus Redis outbox for external
	// delivery collaborators.
	outbox := feed.NewRedisOutbox(rdb.Client, logger)
	broker := feed.NewBroker(outbox, logger)

	// Users
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo, logger)

	// Memberships (also the policy-exempt membership directory)
	membershipRepo := memberships.NewRepository(pool, broker)

	// Geofences
	geofenceRepo := geofences.NewRepository(pool, membershipRepo, broker)
	geofenceHandler := geofences.NewHandler(geofenceRepo, logger)
	membershipHandler := memberships.NewHandler(membershipRepo, geofenceRepo, logger)

	// Device bindings
	deviceRepo := devices.NewRepository(pool, broker)
	deviceHandler := devices.NewHandler(deviceRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API: every route resolves the principal from the
	// identity provider's token and threads it explicitly.
	api := router.Group("")
	api.Use(middleware.Auth(tokens))
	{
		// Self
		api.PUT("/me", userHandler.Upsert)
		api.GET("/me", userHandler.GetSelf)
		api.PATCH("/me", userHandler.UpdateSelf)

		// Geofences
		api.POST("/geofences", geofenceHandler.Create)
		api.GET("/geofences", geofenceHandler.List)
		api.POST("/geofences/join", membershipHandler.Join)
		api.GET("/geofences/:id", geofenceHandler.GetByID)
		api.PATCH("/geofences/:id", geofenceHandler.Update)
		api.DELETE("/geofences/:id", geofenceHandler.Delete)

		// Memberships and presence
		api.GET("/geofences/:id/members", membershipHandler.ListByGeofence)
		api.POST("/geofences/:id/leave", membershipHandler.Leave)
		api.DELETE("/geofences/:id/members/:userID", membershipHandler.Remove)
		api.PUT("/geofences/:id/presence", membershipHandler.UpdatePresence)

		// Device binding
		api.PUT("/device", deviceHandler.Bind)
		api.GET("/device", deviceHandler.Get)
		api.PATCH("/device", deviceHandler.Toggle)
		api.DELETE("/device", deviceHandler.Unbind)
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
