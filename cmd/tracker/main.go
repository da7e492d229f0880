// Command tracker runs one shipment tracking poll and exits. It is meant to
// be scheduled by cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/services"
	"go.uber.org/zap"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Upper bound for the whole poll")
	flag.Parse()

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

	if err := config.ConnectDatabase(cfg.DatabaseURL, false); err != nil {
		logger.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db := config.GetDB()
	orders := services.NewOrderService(services.OrderServiceDeps{
		DB:               db,
		Pricing:          services.PricingFromConfig(cfg),
		Gateway:          services.InitPaymentGateway(),
		Mailer:           services.InitMailer(),
		PaymentKeyID:     cfg.PaymentKeyID,
		PaymentKeySecret: cfg.PaymentKeySecret,
		WebhookSecret:    cfg.PaymentWebhookSecret,
	})
	tracker := services.NewTrackingService(db, services.InitCarrierClient(), orders,
		cfg.TrackingConcurrency, cfg.CarrierTimeout)

	summary, err := tracker.PollShipments(ctx)
	if err != nil {
		logger.Report("Tracking poll failed", err)
		logger.Flush()
		os.Exit(1)
	}

	logger.Info("Tracking poll finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("orders_updated", summary.OrdersUpdated),
		zap.Int("failed", summary.Failed))
}
