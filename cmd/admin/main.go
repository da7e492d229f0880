// Command admin creates a back office administrator.
//
//	ADMIN_PASSWORD=... go run ./cmd/admin -name "Store Owner" -email owner@example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/services"
	"go.uber.org/zap"
)

func main() {
	var name, email string
	flag.StringVar(&name, "name", "", "Display name of the administrator")
	flag.StringVar(&email, "email", "", "Login email of the administrator")
	flag.Parse()

	password := os.Getenv("ADMIN_PASSWORD")
	if name == "" || email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: ADMIN_PASSWORD=... admin -name NAME -email EMAIL")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.IsProduction()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Flush()

	if err := config.ConnectDatabase(cfg.DatabaseURL, false); err != nil {
		logger.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	db := config.GetDB()
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.L().Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	auth := services.NewAuthService(db, nil, services.InitMailer(), services.AuthSettingsFromConfig(cfg))
	admin, err := auth.CreateAdmin(ctx, name, email, password)
	if err != nil {
		logger.Flush()
		log.Fatalf("Failed to create administrator: %v", err)
	}

	fmt.Printf("Administrator %s created (id %d)\n", admin.Email, admin.ID)
}
