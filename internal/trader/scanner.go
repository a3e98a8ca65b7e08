package trader

import (
	"context"
	"fmt"
	"time"

	"binance-dip-bot-go/internal/binance"
	"binance-dip-bot-go/internal/indicator"
)

const (
	// EntryThresholdPercent is how far below the lower band the price must be to enter.
	EntryThresholdPercent = -4.0
	// closesWindow is how many klines are requested per scan.
	closesWindow = 25
)

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withTimeout bounds a single gateway call.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Backoff produces the scan cadence: it doubles after every poll and falls
// back to the initial delay once it passes max, e.g. 1,2,4,8,16,32,1,...
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at initial.
func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{initial: initial, max: maxDelay, current: initial}
}

// Next returns the delay to sleep now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.initial
	}
	return d
}

// Current returns the delay the next call to Next will return.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// SignalStatus is the outcome of one scan.
type SignalStatus struct {
	LowerBand    float64   `json:"lower_band"`
	CurrentPrice float64   `json:"current_price"`
	PercentDiff  float64   `json:"percent_diff"`
	Balance      float64   `json:"balance"`
	Triggered    bool      `json:"triggered"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// ShouldEnter reports whether a deviation from the lower band is an entry signal.
func ShouldEnter(percentDiff float64) bool {
	return percentDiff <= EntryThresholdPercent
}

// Scanner polls the gateway for the entry signal of one asset.
type Scanner struct {
	gateway    binance.Gateway
	asset      string
	interval   Interval
	quoteAsset string
	timeout    time.Duration
	backoff    *Backoff
	sleep      sleepFunc
	now        func() time.Time
}

// NewScanner creates a scanner for params. Balances are read in quoteAsset.
func NewScanner(gateway binance.Gateway, params TradeParameters, quoteAsset string, requestTimeout, maxBackoff time.Duration) *Scanner {
	if maxBackoff <= 0 {
		maxBackoff = 32 * time.Second
	}
	return &Scanner{
		gateway:    gateway,
		asset:      params.Asset,
		interval:   params.Interval,
		quoteAsset: quoteAsset,
		timeout:    requestTimeout,
		backoff:    NewBackoff(time.Second, maxBackoff),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// ScanOnce fetches closes, price and balance and evaluates the entry signal.
// Gateway failures come back as *DataFetchError; short series wrap indicator.ErrInsufficientData.
func (s *Scanner) ScanOnce(ctx context.Context) (SignalStatus, error) {
	closes, err := s.fetchCloses(ctx)
	if err != nil {
		return SignalStatus{}, &DataFetchError{Op: "klines", Err: err}
	}

	band, err := indicator.ComputeBollinger(closes)
	if err != nil {
		return SignalStatus{}, fmt.Errorf("scan %s: %w", s.asset, err)
	}

	price, err := s.fetchPrice(ctx)
	if err != nil {
		return SignalStatus{}, &DataFetchError{Op: "price", Err: err}
	}

	balance, err := s.fetchBalance(ctx)
	if err != nil {
		return SignalStatus{}, &DataFetchError{Op: "balance", Err: err}
	}

	if band.LowerBand <= 0 {
		return SignalStatus{}, fmt.Errorf("scan %s: lower band %v is not positive", s.asset, band.LowerBand)
	}
	diff := indicator.PercentChange(band.LowerBand, price)

	return SignalStatus{
		LowerBand:    band.LowerBand,
		CurrentPrice: price,
		PercentDiff:  diff,
		Balance:      balance,
		Triggered:    ShouldEnter(diff),
		ScannedAt:    s.now().UTC(),
	}, nil
}

// Wait sleeps for the current backoff and advances it.
func (s *Scanner) Wait(ctx context.Context) error {
	return s.sleep(ctx, s.backoff.Next())
}

func (s *Scanner) fetchCloses(ctx context.Context) ([]float64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.gateway.GetRecentCloses(ctx, s.asset, string(s.interval), closesWindow)
}

func (s *Scanner) fetchPrice(ctx context.Context) (float64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.gateway.GetCurrentPrice(ctx, s.asset)
}

func (s *Scanner) fetchBalance(ctx context.Context) (float64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.gateway.GetBalance(ctx, s.quoteAsset)
}
