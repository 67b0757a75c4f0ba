package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/eventbooking-core/internal/app"
	"github.com/iliyamo/eventbooking-core/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, continuing with process environment")
	}

	cfg := config.Load() // Load environment config

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("app init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("app run: %v", err)
	}
}
