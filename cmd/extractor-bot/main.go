// Package main is the entry point for the extractor bot.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nat-king-15/Master-Extractor-Bot/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer application.Shutdown()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bot error: %v", err)
		os.Exit(1)
	}
}
