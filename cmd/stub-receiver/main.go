// Command stub-receiver serves local stand-ins for the webhook and
// Conversions API endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/conversion-replay/internal/config"
	"github.com/JonMunkholm/conversion-replay/internal/logging"
	"github.com/JonMunkholm/conversion-replay/internal/receiver"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	server := receiver.NewServer(receiver.Options{FailEvery: cfg.Receiver.FailEvery})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Receiver.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Receiver.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}

	stats := server.Stats()
	slog.Info("receiver totals",
		"requests", stats.Requests,
		"elements", stats.Elements,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
	)
}
