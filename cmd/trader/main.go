package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-dip-bot-go/internal/account"
	"binance-dip-bot-go/internal/binance"
	"binance-dip-bot-go/internal/config"
	"binance-dip-bot-go/internal/database"
	"binance-dip-bot-go/internal/logger"
	"binance-dip-bot-go/internal/notifier"
	"binance-dip-bot-go/internal/trader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("trader", pflag.ExitOnError)
	configDir := flags.String("config", "./configs", "directory containing config.yml")
	config.TradingFlags(flags)
	_ = flags.Parse(os.Args[1:])

	// Load application configuration
	cfg, err := config.LoadConfig(*configDir, flags)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Exchange keys come from a stored account when one is configured
	if cfg.Account.Username != "" {
		accounts, err := account.NewService(db, cfg.Account.EncryptionKey, cfg.Account.BcryptCost)
		if err != nil {
			log.Fatal("Failed to open account store", zap.Error(err))
		}
		creds, err := accounts.Authenticate(context.Background(), cfg.Account.Username, cfg.Account.Password)
		if err != nil {
			log.Fatal("Login failed", zap.String("username", cfg.Account.Username), zap.Error(err))
		}
		cfg.Binance.ApiKey = creds.APIKey
		cfg.Binance.SecretKey = creds.SecretKey
		log.Info("Logged in", zap.String("username", cfg.Account.Username))
	}

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	timeout := cfg.Trading.RequestTimeout
	pingCtx, cancelPing := context.WithTimeout(context.Background(), timeout)
	_, err = restClient.GetServerTime(pingCtx)
	cancelPing()
	if err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	params, err := trader.Setup(context.Background(), restClient, cfg.Trading.QuoteAsset,
		cfg.Trading.Asset, cfg.Trading.Capital, cfg.Trading.Interval, timeout)
	if err != nil {
		var cfgErr *trader.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatal("Invalid trading configuration", zap.String("field", cfgErr.Field), zap.String("reason", cfgErr.Reason))
		}
		log.Fatal("Could not reach Binance while validating the trading configuration", zap.Error(err))
	}

	balanceCtx, cancelBalance := context.WithTimeout(context.Background(), timeout)
	if balance, err := restClient.GetBalance(balanceCtx, cfg.Trading.QuoteAsset); err == nil {
		log.Info("Account balance",
			zap.String("asset", cfg.Trading.QuoteAsset),
			zap.Float64("free", balance),
			zap.Float64("max_trade_size", trader.MaxTradeSize(balance)))
	}
	cancelBalance()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize and run the trading engine
	tradeEngine := trader.NewEngine(log, &cfg.Trading, params, trader.Dependencies{
		Gateway:   restClient,
		Ledger:    database.NewTradeLedger(db),
		Positions: database.NewPositionStore(db),
		Notifier:  notifier.New(&cfg.Telegram, log),
		Metrics:   trader.NewMetrics(registry),
	})

	apiServer := trader.NewAPIServer(tradeEngine, cfg.Server.ApiPort, registry, log)
	apiServer.Start()

	if err := tradeEngine.Run(ctx); err != nil {
		log.Error("Trading engine stopped with error", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
