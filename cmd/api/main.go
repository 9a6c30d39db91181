package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fourkind-server/internal/server"
)

func gracefulShutdown(log *logrus.Logger, customServer *server.Server, httpServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first so no pass is half handled when the store closes.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server forced to shutdown")
	}

	if err := customServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Error during server shutdown")
	}

	done <- true
}

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log := server.NewLogger(cfg)

	ctx := context.Background()
	customServer, err := server.NewServer(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize server")
	}
	if err := customServer.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start background tasks")
	}
	httpServer := customServer.HTTPServer()

	done := make(chan bool, 1)
	go gracefulShutdown(log, customServer, httpServer, done)

	log.WithField("addr", httpServer.Addr).Info("Listening")
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("HTTP server error")
		os.Exit(1)
	}

	<-done
	log.Info("Graceful shutdown complete.")
}
