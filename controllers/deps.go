package controllers

import (
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/services"
)

func imageService() *services.ImageService {
	return services.NewImageService(config.GetDB(), services.GetObjectStore())
}

func catalogService() *services.CatalogService {
	return services.NewCatalogService(config.GetDB(), imageService())
}

func orderService() *services.OrderService {
	cfg := config.GetConfig()
	return services.NewOrderService(services.OrderServiceDeps{
		DB:               config.GetDB(),
		Pricing:          services.PricingFromConfig(cfg),
		Gateway:          services.GetPaymentGateway(),
		Mailer:           services.GetMailer(),
		PaymentKeyID:     cfg.PaymentKeyID,
		PaymentKeySecret: cfg.PaymentKeySecret,
		WebhookSecret:    cfg.PaymentWebhookSecret,
	})
}

func authService() *services.AuthService {
	return services.NewAuthService(config.GetDB(), services.GetOTPStore(), services.GetMailer(),
		services.AuthSettingsFromConfig(config.GetConfig()))
}

func shipmentService() *services.ShipmentService {
	return services.NewShipmentService(config.GetDB(), services.GetCarrierClient(), config.GetConfig().CarrierPickupLocation)
}

func trackingService() *services.TrackingService {
	cfg := config.GetConfig()
	return services.NewTrackingService(config.GetDB(), services.GetCarrierClient(), orderService(),
		cfg.TrackingConcurrency, cfg.CarrierTimeout)
}
