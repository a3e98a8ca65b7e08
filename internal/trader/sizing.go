package trader

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"binance-dip-bot-go/internal/binance"
)

// MaxUtilization is the share of the balance a trade may commit; the rest is kept in reserve.
const MaxUtilization = 0.92

// SizeOrder converts capital into a whole number of units at price. Fractions are truncated.
func SizeOrder(capital, price float64) int64 {
	if price <= 0 || capital <= 0 {
		return 0
	}
	return int64(math.Floor(capital / price))
}

// MaxTradeSize is the largest capital amount allowed against balance.
func MaxTradeSize(balance float64) float64 {
	return balance * MaxUtilization
}

// Setup validates a requested configuration against the exchange and the current
// balance of quoteAsset, and returns the parameters the engine runs with.
// Each exchange call gets its own requestTimeout.
func Setup(ctx context.Context, gateway binance.Gateway, quoteAsset, asset string, capital float64, interval string, requestTimeout time.Duration) (TradeParameters, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return TradeParameters{}, &ConfigurationError{Field: "asset", Reason: "symbol is required"}
	}

	iv, err := ParseInterval(interval)
	if err != nil {
		return TradeParameters{}, err
	}

	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return TradeParameters{}, &ConfigurationError{Field: "capital", Reason: fmt.Sprintf("%v must be a positive amount", capital)}
	}

	symbolsCtx, cancel := withTimeout(ctx, requestTimeout)
	symbols, err := gateway.ListSymbols(symbolsCtx)
	cancel()
	if err != nil {
		return TradeParameters{}, &DataFetchError{Op: "list symbols", Err: err}
	}
	if _, ok := symbols[asset]; !ok {
		return TradeParameters{}, &ConfigurationError{Field: "asset", Reason: fmt.Sprintf("no symbol %s on the exchange", asset)}
	}

	balanceCtx, cancel := withTimeout(ctx, requestTimeout)
	balance, err := gateway.GetBalance(balanceCtx, quoteAsset)
	cancel()
	if err != nil {
		return TradeParameters{}, &DataFetchError{Op: "balance", Err: err}
	}
	if maxSize := MaxTradeSize(balance); capital > maxSize {
		return TradeParameters{}, &ConfigurationError{
			Field:  "capital",
			Reason: fmt.Sprintf("%v exceeds the maximum trade size %v (%.0f%% of %v %s)", capital, maxSize, MaxUtilization*100, balance, quoteAsset),
		}
	}

	return TradeParameters{Asset: asset, CapitalAmount: capital, Interval: iv}, nil
}
