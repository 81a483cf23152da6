package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hray3182/calendard/internal/app"
	"github.com/hray3182/calendard/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	log.Printf("Starting calendard (data dir %s)", cfg.DataDir)
	if err := a.Run(ctx); err != nil {
		log.Printf("Stopped with error: %v", err)
		a.Close()
		os.Exit(1)
	}
}
