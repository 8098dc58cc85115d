package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pollroom/internal/app"
	"pollroom/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("pollroom: %v", err)
	}
}

func run() error {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Println("Signal received, shutting down")
		return application.Stop()
	case err := <-errCh:
		if err != nil {
			_ = application.Stop()
			return err
		}
		return nil
	}
}
