package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"binance-dip-bot-go/internal/config"
	"binance-dip-bot-go/internal/database"
	"binance-dip-bot-go/internal/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configDir := pflag.String("config", "./configs", "directory containing config.yml")
	pflag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	handler := NewAPIHandler(log, database.NewTradeLedger(db), database.NewPositionStore(db))
	router := NewRouter(handler, strings.EqualFold(cfg.Logger.Format, "json"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, stopping web server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Web server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting web server", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
