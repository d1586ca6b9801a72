package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatrelay "github.com/MegaGrindStone/chat-relay"
	"github.com/MegaGrindStone/chat-relay/internal/handlers"
	"github.com/MegaGrindStone/chat-relay/internal/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Relay stopped", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "chatrelay")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	cfg, err := loadConfig(chatrelay.DefaultConfig, filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		return err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}

	var journal handlers.Journal
	if path := cfg.journalFile(cfgPath); path != "" {
		boltDB, err := services.NewBoltDB(path)
		if err != nil {
			return err
		}
		defer boltDB.Close()
		journal = boltDB
		logger.Info("Recording exchanges", slog.String("path", path))
	}

	m := handlers.NewMain(llm, journal, logger,
		handlers.WithSystemPrompt(cfg.SystemPrompt),
		handlers.WithAllowedOrigin(cfg.AllowedOrigin),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", m.HandleChat)
	mux.HandleFunc("/exchanges", m.HandleExchanges)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.CORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown streams", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", "http://localhost:"+cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	return nil
}
