// Command account creates a local account holding encrypted exchange keys.
// The trader logs in with it when account.username is configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"binance-dip-bot-go/internal/account"
	"binance-dip-bot-go/internal/config"
	"binance-dip-bot-go/internal/database"
	"binance-dip-bot-go/internal/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("account", pflag.ExitOnError)
	configDir := flags.String("config", "./configs", "directory containing config.yml")
	username := flags.String("username", "", "account name")
	apiKey := flags.String("api-key", "", "Binance API key")
	secretKey := flags.String("secret-key", "", "Binance secret key")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(*configDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// The password is read from the environment so it does not end up in shell history.
	password := os.Getenv("ACCOUNT_PASSWORD")
	if *username == "" || password == "" || *apiKey == "" || *secretKey == "" {
		log.Fatal("--username, --api-key, --secret-key and ACCOUNT_PASSWORD are required")
	}

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	accounts, err := account.NewService(db, cfg.Account.EncryptionKey, cfg.Account.BcryptCost)
	if err != nil {
		log.Fatal("Failed to open account store", zap.Error(err))
	}

	err = accounts.CreateAccount(context.Background(), *username, password, account.Credentials{
		APIKey:    *apiKey,
		SecretKey: *secretKey,
	})
	if errors.Is(err, account.ErrUsernameTaken) {
		log.Fatal("Account already exists", zap.String("username", *username))
	}
	if err != nil {
		log.Fatal("Failed to create account", zap.Error(err))
	}
	log.Info("Account created", zap.String("username", *username))
}
