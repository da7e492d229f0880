package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/kendall-kelly/storefront-api/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Flush()

	if err := logger.EnableSentry(cfg.SentryDSN, cfg.GoEnv); err != nil {
		logger.Warn("Sentry disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, serviceName, cfg.GoEnv)
	if err != nil {
		logger.L().Fatal("Failed to initialize tracing", zap.Error(err))
	}

	logger.Info("Starting Storefront API server...", zap.String("env", cfg.GoEnv))

	if err := config.ConnectDatabase(cfg.DatabaseURL, cfg.IsDevelopment()); err != nil {
		logger.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := config.GetDB().AutoMigrate(models.All()...); err != nil {
		logger.L().Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migration completed successfully")

	services.InitCarrierClient()
	services.InitPaymentGateway()
	services.InitMailer()
	if _, err := services.InitOTPStore(ctx); err != nil {
		logger.L().Fatal("Failed to initialize OTP store", zap.Error(err))
	}
	if _, err := services.InitObjectStore(ctx); err != nil {
		logger.L().Fatal("Failed to initialize image storage", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server is running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("Tracer shutdown failed", zap.Error(err))
	}
}
