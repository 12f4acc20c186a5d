package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/manahiliqbal/chat-room/internal/server"
	"github.com/manahiliqbal/chat-room/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Error loading .env file, using environment variables directly")
	}

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := server.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting chat room server...")

	st, err := store.Open(cfg.DatabasePath, cfg.DatabaseDebug)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	logger.WithField("path", cfg.DatabasePath).Info("Store ready")

	hub := server.NewHub(*cfg, st, logger)
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, st, logger))
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Stop accepting requests first, then drop live connections, then close
	// the store they were writing to.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				httpErr := server.ShutdownServer(ctx, httpServer, logger)
				hubErr := hub.Shutdown(cfg.ShutdownTimeout)
				storeErr := st.Close()
				return errors.Join(httpErr, hubErr, storeErr)
			},
		},
	)

	exitCode := <-wait
	logger.WithField("code", exitCode).Info("Server exited")
	os.Exit(exitCode)
}
