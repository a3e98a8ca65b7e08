package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"binance-dip-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL         = "https://api.binance.com/api/v3"
	testnetBaseURL  = "https://testnet.binance.vision/api/v3"
	recvWindow      = "5000" // How long a request is valid in milliseconds
	OrderTypeMarket = "MARKET"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"

	maxRetries = 3
)

// ErrNotFilled is returned when a market order is accepted but nothing executed.
var ErrNotFilled = errors.New("order was not filled")

// Gateway is the market data and order execution surface the trader consumes.
type Gateway interface {
	// GetRecentCloses returns the closing prices of the last count klines, oldest first.
	GetRecentCloses(ctx context.Context, symbol, interval string, count int) ([]float64, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	// GetBalance returns the free balance of a single asset, e.g. "BTC".
	GetBalance(ctx context.Context, asset string) (float64, error)
	ListSymbols(ctx context.Context) (map[string]struct{}, error)
	// SubmitMarketOrder places a market order and returns the average fill price.
	SubmitMarketOrder(ctx context.Context, symbol, side string, quantity int64) (float64, error)
}

// RestClient is a client for the Binance spot REST API.
// It implements the Gateway.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	retryBase time.Duration
}

// ensure RestClient implements the interface
var _ Gateway = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().SetBaseURL(url)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("binance"),
		limiter:   limiter,
		retryBase: time.Second,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedParams stamps params with a timestamp and receive window and appends the signature.
func (c *RestClient) signedParams(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	return c.execute(ctx, method, url, req, maxRetries)
}

// doOnce sends a request that must not be repeated, such as an order: after a 5xx
// or a network error its outcome is unknown and a resend could fill twice.
func (c *RestClient) doOnce(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	return c.execute(ctx, method, url, req, 1)
}

func (c *RestClient) execute(ctx context.Context, method, url string, req *resty.Request, attempts int) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	req.SetContext(ctx)

	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, err
		}
		if i == attempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x the retry base
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryBase
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
}

// GetAllTickerPrices fetches the latest price for all symbols.
func (c *RestClient) GetAllTickerPrices(ctx context.Context) (map[string]string, error) {
	var prices []*TickerPrice

	req := c.client.R().
		SetResult(&prices)

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get all ticker prices: %w", err)
	}

	result := resp.Result().(*[]*TickerPrice)
	priceMap := make(map[string]string, len(*result))
	for _, p := range *result {
		priceMap[p.Symbol] = p.Price
	}

	return priceMap, nil
}

// ListSymbols returns every symbol the exchange currently quotes.
func (c *RestClient) ListSymbols(ctx context.Context) (map[string]struct{}, error) {
	prices, err := c.GetAllTickerPrices(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make(map[string]struct{}, len(prices))
	for s := range prices {
		symbols[s] = struct{}{}
	}
	return symbols, nil
}

// GetCurrentPrice fetches the latest trade price of one symbol.
func (c *RestClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	ticker := resp.Result().(*TickerPrice)
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q for %s: %w", ticker.Price, symbol, err)
	}
	return price, nil
}

// GetRecentCloses fetches the last count klines of symbol and returns their closes.
func (c *RestClient) GetRecentCloses(ctx context.Context, symbol, interval string, count int) ([]float64, error) {
	req := c.client.R().
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(count),
		})

	resp, err := c.doRequest(ctx, http.MethodGet, "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}

	// Each kline is a positional array; index 4 is the close price as a string.
	var raw [][]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse klines for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(raw))
	for i, k := range raw {
		if len(k) < 5 {
			return nil, fmt.Errorf("kline %d for %s has %d fields", i, symbol, len(k))
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			return nil, fmt.Errorf("failed to parse close of kline %d for %s: %w", i, symbol, err)
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse close %q for %s: %w", closeStr, symbol, err)
		}
		closes = append(closes, closePrice)
	}

	return closes, nil
}

// AccountResponse is the subset of the /account response the bot reads.
type AccountResponse struct {
	Balances []Balance `json:"balances"`
}

// Balance is one asset line of the account.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// GetBalance returns the free balance of asset. A missing asset has a zero balance.
func (c *RestClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedParams(url.Values{})).
		SetResult(&AccountResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/account", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get account balance: %w", err)
	}

	for _, b := range resp.Result().(*AccountResponse).Balances {
		if b.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s balance %q: %w", asset, b.Free, err)
		}
		return free, nil
	}
	return 0, nil
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// AveragePrice is the quote spent per executed unit.
func (r *CreateOrderResponse) AveragePrice() (float64, error) {
	executed, err := strconv.ParseFloat(r.ExecutedQuantity, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse executed quantity %q: %w", r.ExecutedQuantity, err)
	}
	quote, err := strconv.ParseFloat(r.CummulativeQuoteQty, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse quote quantity %q: %w", r.CummulativeQuoteQty, err)
	}
	if executed <= 0 {
		return 0, ErrNotFilled
	}
	return quote / executed, nil
}

// CreateOrder places a new MARKET order on Binance.
func (c *RestClient) CreateOrder(ctx context.Context, symbol, side string, quantity int64) (*CreateOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", strconv.FormatInt(quantity, 10))
	params.Set("newClientOrderId", uuid.NewString())
	params.Set("newOrderRespType", "RESULT")

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signedParams(params)).
		SetResult(&CreateOrderResponse{})

	resp, err := c.doOnce(ctx, http.MethodPost, "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("side", side),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*CreateOrderResponse)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}

// SubmitMarketOrder places a market order and returns its average fill price.
func (c *RestClient) SubmitMarketOrder(ctx context.Context, symbol, side string, quantity int64) (float64, error) {
	order, err := c.CreateOrder(ctx, symbol, side, quantity)
	if err != nil {
		return 0, err
	}
	price, err := order.AveragePrice()
	if err != nil {
		return 0, fmt.Errorf("order %d for %s: %w", order.OrderID, symbol, err)
	}
	return price, nil
}
