package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"booking_server/config"
	"booking_server/internal/bootstrap"
	"booking_server/pkg/logger"

	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional outside local development
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "run mode: api, worker, all")
	flag.Parse()

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "booking-sync",
	})
	if envErr != nil {
		logger.Debug("no .env file, reading the process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context, *config.Config)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx, cfg)
			logger.Info("%s stopped", name)
		}()
	}

	switch *mode {
	case "api":
		run("api", serveAPI)
	case "worker":
		run("worker", serveWorker)
	case "all":
		run("worker", serveWorker)
		run("api", serveAPI)
	default:
		logger.Fatal("unknown mode %q (want api, worker or all)", *mode)
	}

	wg.Wait()
}

func serveAPI(ctx context.Context, cfg *config.Config) {
	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("api init: %v", err)
	}
	defer cleanup()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api (timeout %v)", shutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).Error("api shutdown")
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("api listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("api listen: %v", err)
	}
}

func serveWorker(ctx context.Context, cfg *config.Config) {
	w, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("worker init: %v", err)
	}
	defer cleanup()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker (timeout %v)", shutdownTimeout)

		done := make(chan struct{})
		go func() {
			w.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logger.Warn("worker shutdown timed out, in-flight passes release their locks by TTL")
			os.Exit(1)
		}
	}()

	w.Start()
}
