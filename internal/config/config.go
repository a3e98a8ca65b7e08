package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Trading  Trading  `mapstructure:"trading"`
	Account  Account  `mapstructure:"account"`
	Telegram Telegram `mapstructure:"telegram"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string        `mapstructure:"apiKey"`
	SecretKey      string        `mapstructure:"secretKey"`
	Testnet        bool          `mapstructure:"testnet"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Server holds the configuration for the web servers.
type Server struct {
	Port    int `mapstructure:"port"`
	ApiPort int `mapstructure:"api_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the trade parameters and the loop timings.
type Trading struct {
	Asset      string  `mapstructure:"asset"`
	QuoteAsset string  `mapstructure:"quote_asset"`
	Capital    float64 `mapstructure:"capital"`
	Interval   string  `mapstructure:"interval"`
	DryRun     bool    `mapstructure:"dry_run"`

	ExitPollInterval time.Duration `mapstructure:"exit_poll_interval"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxExitAttempts  int           `mapstructure:"max_exit_attempts"`
}

// Account selects a stored account whose exchange keys replace the binance section.
type Account struct {
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	EncryptionKey string `mapstructure:"encryption_key"`
	BcryptCost    int    `mapstructure:"bcrypt_cost"`
}

// Telegram holds the alert channel used when an open position cannot be closed.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TradingFlags registers the command-line overrides for the trading section.
func TradingFlags(fs *pflag.FlagSet) {
	fs.String("trading.asset", "", "symbol to trade, e.g. BNBBTC")
	fs.Float64("trading.capital", 0, "amount of quote asset to commit per trade")
	fs.String("trading.interval", "", "kline interval: 15m, 30m, 1h, 2h, 4h, 6h, 12h, 1d")
	fs.Bool("trading.dry_run", false, "simulate orders instead of sending them")
}

// LoadConfig reads configuration from file, environment variables and any bound flags.
func LoadConfig(path string, flags *pflag.FlagSet) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.timeout", 15*time.Second)
	v.SetDefault("trading.quote_asset", "BTC")
	v.SetDefault("trading.interval", "1h")
	v.SetDefault("trading.exit_poll_interval", 10*time.Second)
	v.SetDefault("trading.max_backoff", 32*time.Second)
	v.SetDefault("trading.request_timeout", 20*time.Second)
	v.SetDefault("trading.max_exit_attempts", 30)
	v.SetDefault("account.bcrypt_cost", 12)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_port", 8081)
	v.SetDefault("database.dsn", "trade_bot.db")

	if flags != nil {
		if err = v.BindPFlags(flags); err != nil {
			return
		}
	}

	err = v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
