package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/adapter/propertydata"
	"github.com/maisonhq/chatcore/internal/adapter/refsync"
	"github.com/maisonhq/chatcore/internal/config"
	store "github.com/maisonhq/chatcore/internal/repository"
	"github.com/maisonhq/chatcore/internal/service"
	transport "github.com/maisonhq/chatcore/internal/transport/http"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg := config.Load()

	xlog.Info("Starting chat engine", "port", cfg.HTTPPort, "database", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize adapters
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	propertyClient := propertydata.NewClient(cfg.PropertyServiceURL)
	refSyncClient := refsync.NewClient(cfg.RefSyncServiceURL)

	// Initialize service
	svc := service.New(db, llmClient, propertyClient, refSyncClient, cfg)

	// Schedule the session sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		if _, err := svc.SweepExpiredSessions(context.Background()); err != nil {
			xlog.Error("Session sweep failed", "error", err.Error())
		}
	}); err != nil {
		log.Fatalf("Failed to schedule session sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create the HTTP server
	server := transport.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	xlog.Info("Chat engine started", "port", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	xlog.Info("Shutting down chat engine")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Chat engine stopped")
}
