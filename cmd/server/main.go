package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/orivon/pagerelay/internal/platform"
	"github.com/orivon/pagerelay/internal/processor"
	"github.com/orivon/pagerelay/internal/reply"
	"github.com/orivon/pagerelay/internal/storage"
	"github.com/orivon/pagerelay/internal/tenant"
	"github.com/orivon/pagerelay/internal/token"
	"github.com/orivon/pagerelay/internal/webhook"
	"github.com/orivon/pagerelay/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env if present, then configuration
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file, using platform environment")
	}
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Provider client, credential lifecycle, background sweep
	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.AppID, cfg.Platform.AppSecret, logger)
	tokens := token.NewManager(store, client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := token.NewSweeper(store, tokens, cfg.Token.SweepInterval, logger)
	sweeper.Start(ctx)

	// Webhook pipeline
	resolver := tenant.NewResolver(store)
	replies := reply.NewGPTGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature, logger)
	proc := processor.New(store, tokens, client, replies, logger)
	router := webhook.NewRouter(cfg.Platform.VerifyToken, cfg.Platform.AppSecret, resolver, store, proc, cfg.Token.EventTimeout, logger)

	mux := http.NewServeMux()
	mux.Handle("/webhook", router)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()
	sweeper.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	} else {
		logger.Info("Server stopped gracefully")
	}
}
