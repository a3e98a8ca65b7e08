package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-dip-bot-go/internal/binance"
	"binance-dip-bot-go/internal/config"
	"binance-dip-bot-go/internal/indicator"
	"binance-dip-bot-go/internal/models"
	"binance-dip-bot-go/internal/notifier"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// TakeProfitPercent closes a position at or above this gain.
	TakeProfitPercent = 4.5
	// StopLossPercent closes a position strictly below this gain.
	StopLossPercent = -2.1
)

// State is the phase of the trading loop.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateInPosition
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateInPosition:
		return "in_position"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ExitReason says why a position was closed.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// EvaluateExit applies the take-profit and stop-loss thresholds to a gain.
// Take-profit is inclusive and checked first; stop-loss is strict.
func EvaluateExit(percentGain float64) ExitReason {
	if percentGain >= TakeProfitPercent {
		return ExitTakeProfit
	}
	if percentGain < StopLossPercent {
		return ExitStopLoss
	}
	return ExitNone
}

// FormatGain renders a gain the way the ledger stores it, e.g. "5.26%".
func FormatGain(percentGain float64) string {
	return fmt.Sprintf("%.2f%%", percentGain)
}

// ActivePosition is the position currently held.
type ActivePosition struct {
	Asset      string    `json:"asset"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// Ledger records completed trades.
type Ledger interface {
	AppendTrade(ctx context.Context, trade *models.Trade) error
}

// PositionStore keeps the open position across restarts.
type PositionStore interface {
	// AnyPosition returns the stored position whatever its symbol, or nil.
	AnyPosition(ctx context.Context) (*models.Position, error)
	SavePosition(ctx context.Context, pos *models.Position) error
	DeletePosition(ctx context.Context, symbol string) error
}

// logLedger is the fallback Ledger when none is wired: trades only reach the log.
type logLedger struct {
	logger *zap.Logger
}

func (l logLedger) AppendTrade(_ context.Context, trade *models.Trade) error {
	l.logger.Warn("No trade ledger configured, trade is only logged",
		zap.String("symbol", trade.Symbol),
		zap.Int64("size", trade.Size),
		zap.Float64("entry_price", trade.EntryPrice),
		zap.Float64("exit_price", trade.ExitPrice),
		zap.String("gain", trade.GainPercent),
		zap.String("reason", trade.Reason))
	return nil
}

// Dependencies are the collaborators an Engine drives. Ledger, Positions,
// Notifier and Metrics are optional.
type Dependencies struct {
	Gateway   binance.Gateway
	Ledger    Ledger
	Positions PositionStore
	Notifier  notifier.Notifier
	Metrics   *Metrics
}

// Engine runs the scan / enter / monitor / exit loop for a single asset.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger     *zap.Logger
	cfg        *config.Trading
	params     TradeParameters
	gateway    binance.Gateway
	ledger     Ledger
	positions  PositionStore
	notifier   notifier.Notifier
	metrics    *Metrics
	scanner    *Scanner
	sleep      sleepFunc
	now        func() time.Time

	mu         sync.RWMutex
	state      State
	position   *ActivePosition
	lastSignal *SignalStatus
}

// NewEngine creates a trading engine for params.
func NewEngine(logger *zap.Logger, cfg *config.Trading, params TradeParameters, deps Dependencies) *Engine {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.New(&config.Telegram{}, logger)
	}
	if deps.Ledger == nil {
		deps.Ledger = logLedger{logger: logger.Named("ledger")}
	}
	id := uuid.NewString()
	return &Engine{
		UUID:       id,
		Name:       fmt.Sprintf("dip-%s-%s", params.Asset, params.Interval),
		StartTime:  time.Now(),
		logger:     logger.Named("engine").With(zap.String("symbol", params.Asset), zap.String("run_id", id)),
		cfg:        cfg,
		params:     params,
		gateway:    deps.Gateway,
		ledger:     deps.Ledger,
		positions:  deps.Positions,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		scanner:    NewScanner(deps.Gateway, params, cfg.QuoteAsset, cfg.RequestTimeout, cfg.MaxBackoff),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled. It resumes a stored position first, then
// alternates between scanning and managing one position at a time.
func (e *Engine) Run(ctx context.Context) error {
	if !e.params.IsSet() {
		return ErrParametersNotSet
	}
	e.logger.Info("Starting trading engine",
		zap.String("interval", string(e.params.Interval)),
		zap.Float64("capital", e.params.CapitalAmount),
		zap.Bool("dry_run", e.cfg.DryRun))

	if err := e.resume(ctx); err != nil {
		return err
	}
	if e.currentPosition() != nil {
		if err := e.monitorPosition(ctx); err != nil {
			e.stopped()
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			e.stopped()
			return nil
		}

		e.setState(StateScanning)
		e.scanAndTrade(ctx)

		e.metrics.backoff.Set(e.scanner.backoff.Current().Seconds())
		if err := e.scanner.Wait(ctx); err != nil {
			e.stopped()
			return nil
		}
	}
}

func (e *Engine) stopped() {
	e.logger.Info("Stopping trading engine...", zap.String("state", e.State().String()))
}

// scanAndTrade runs one scanner iteration and, on a signal, the whole position lifecycle.
func (e *Engine) scanAndTrade(ctx context.Context) {
	status, err := e.scanner.ScanOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.metrics.scans.WithLabelValues("error").Inc()
		if errors.Is(err, indicator.ErrInsufficientData) {
			e.logger.Warn("Not enough klines for the bands yet", zap.Error(err))
		} else {
			e.logger.Error("Scan failed", zap.Error(err))
		}
		return
	}

	e.mu.Lock()
	e.lastSignal = &status
	e.mu.Unlock()
	e.metrics.percentDiff.Set(status.PercentDiff)

	e.logger.Info("Looking for trade",
		zap.Float64("balance", status.Balance),
		zap.Float64("lower_band", status.LowerBand),
		zap.Float64("current_price", status.CurrentPrice),
		zap.Float64("percent_diff", status.PercentDiff))

	if !status.Triggered {
		e.metrics.scans.WithLabelValues("ok").Inc()
		return
	}
	e.metrics.scans.WithLabelValues("triggered").Inc()
	e.logger.Info("Trade found", zap.Float64("percent_diff", status.PercentDiff))

	if err := e.enterPosition(ctx, status); err != nil {
		e.logger.Error("Failed to enter position", zap.Error(err))
		return
	}
	if err := e.monitorPosition(ctx); err != nil {
		e.logger.Warn("Position monitoring interrupted, position is kept", zap.Error(err))
	}
}

// resume loads the stored position. It refuses to start when that position belongs
// to another asset or was opened in the other trading mode.
func (e *Engine) resume(ctx context.Context) error {
	if e.positions == nil {
		return nil
	}
	stored, err := e.positions.AnyPosition(ctx)
	if err != nil {
		return fmt.Errorf("could not load stored position: %w", err)
	}
	if stored == nil {
		return nil
	}
	if stored.Symbol != e.params.Asset {
		return fmt.Errorf("%w: %d %s is open, configured asset is %s",
			ErrStoredPositionAsset, stored.Quantity, stored.Symbol, e.params.Asset)
	}
	if stored.Simulated != e.cfg.DryRun {
		return fmt.Errorf("%w: %s position simulated=%t, dry_run=%t",
			ErrStoredPositionMode, stored.Symbol, stored.Simulated, e.cfg.DryRun)
	}

	pos := &ActivePosition{
		Asset:      stored.Symbol,
		Quantity:   stored.Quantity,
		EntryPrice: stored.EntryPrice,
		EntryTime:  stored.EntryTime,
	}
	e.mu.Lock()
	e.position = pos
	e.state = StateInPosition
	e.mu.Unlock()
	e.metrics.inPosition.Set(1)

	e.logger.Warn("Resuming open position",
		zap.Int64("quantity", pos.Quantity),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Time("entry_time", pos.EntryTime))
	return nil
}

// enterPosition buys at the signal price and records the position.
func (e *Engine) enterPosition(ctx context.Context, status SignalStatus) error {
	if e.currentPosition() != nil {
		return ErrPositionOpen
	}

	quantity := SizeOrder(e.params.CapitalAmount, status.CurrentPrice)
	if quantity < 1 {
		return fmt.Errorf("%w: capital %v at price %v", ErrZeroQuantity, e.params.CapitalAmount, status.CurrentPrice)
	}

	fill, err := e.submitOrder(ctx, binance.OrderSideBuy, quantity, status.CurrentPrice)
	if err != nil {
		return err
	}

	pos := &ActivePosition{
		Asset:      e.params.Asset,
		Quantity:   quantity,
		EntryPrice: status.CurrentPrice,
		EntryTime:  e.now().UTC(),
	}
	e.mu.Lock()
	e.position = pos
	e.state = StateInPosition
	e.mu.Unlock()
	e.metrics.inPosition.Set(1)

	if e.positions != nil {
		err := e.positions.SavePosition(context.WithoutCancel(ctx), &models.Position{
			Symbol:     pos.Asset,
			Quantity:   pos.Quantity,
			Capital:    e.params.CapitalAmount,
			EntryPrice: pos.EntryPrice,
			EntryTime:  pos.EntryTime,
			Simulated:  e.cfg.DryRun,
		})
		if err != nil {
			// The buy has filled; the position stays managed in memory.
			e.logger.Error("Failed to persist open position", zap.Error(err))
		}
	}

	e.logger.Info("Market buy placed",
		zap.Int64("quantity", quantity),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("fill_price", fill))
	return nil
}

// monitorPosition polls the price at a fixed interval until the position is closed.
// It only returns an error when ctx is done; the position is then left open.
func (e *Engine) monitorPosition(ctx context.Context) error {
	failedExits := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.checkPosition(ctx, &failedExits) {
			return nil
		}

		if err := e.sleep(ctx, e.cfg.ExitPollInterval); err != nil {
			return err
		}
	}
}

// checkPosition runs one exit poll and reports whether the position was closed.
func (e *Engine) checkPosition(ctx context.Context, failedExits *int) bool {
	pos := e.currentPosition()
	if pos == nil {
		return true
	}

	price, err := e.fetchPrice(ctx, pos.Asset)
	if err != nil {
		e.logger.Warn("Failed to get price for open position", zap.Error(err))
		return false
	}

	gain := indicator.PercentChange(pos.EntryPrice, price)
	e.metrics.gain.Set(gain)
	e.logger.Info("Looking for trade exit",
		zap.Float64("current_price", price),
		zap.String("gain", FormatGain(gain)))

	reason := EvaluateExit(gain)
	if reason == ExitNone {
		return false
	}

	if err := e.exitPosition(ctx, pos, price, gain, reason); err != nil {
		*failedExits++
		e.logger.Error("Failed to exit position, retrying on next poll",
			zap.String("reason", string(reason)),
			zap.Int("attempt", *failedExits),
			zap.Error(err))
		if e.cfg.MaxExitAttempts > 0 && *failedExits >= e.cfg.MaxExitAttempts {
			e.escalate(ctx, pos, *failedExits, err)
			*failedExits = 0
		}
		return false
	}
	return true
}

// exitPosition sells the full quantity and appends the trade to the ledger.
func (e *Engine) exitPosition(ctx context.Context, pos *ActivePosition, price, gain float64, reason ExitReason) error {
	fill, err := e.submitOrder(ctx, binance.OrderSideSell, pos.Quantity, price)
	if err != nil {
		return err
	}

	trade := &models.Trade{
		Timestamp:    e.now().UTC(),
		Symbol:       pos.Asset,
		Size:         pos.Quantity,
		Capital:      e.params.CapitalAmount,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    price,
		GainPercent:  FormatGain(gain),
		Gain:         gain,
		Reason:       string(reason),
		IsSimulation: e.cfg.DryRun,
	}
	// The sell has filled: record it even during shutdown, and never retry it on a bookkeeping failure.
	bookCtx := context.WithoutCancel(ctx)
	if err := e.ledger.AppendTrade(bookCtx, trade); err != nil {
		e.logger.Error("Failed to record trade", zap.Error(err))
	}
	if e.positions != nil {
		if err := e.positions.DeletePosition(bookCtx, pos.Asset); err != nil {
			e.logger.Error("Failed to clear stored position", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.position = nil
	e.state = StateExited
	e.mu.Unlock()
	e.metrics.inPosition.Set(0)
	e.metrics.exits.WithLabelValues(string(reason)).Inc()

	e.logger.Info("Trade exited",
		zap.String("reason", string(reason)),
		zap.String("gain", trade.GainPercent),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("exit_price", price),
		zap.Float64("fill_price", fill))
	return nil
}

// escalate alerts the operator that a position cannot be closed. Selling is retried regardless.
func (e *Engine) escalate(ctx context.Context, pos *ActivePosition, attempts int, cause error) {
	e.metrics.escalations.Inc()
	msg := fmt.Sprintf("Unable to close %d %s after %d sell attempts (entry %v): %v",
		pos.Quantity, pos.Asset, attempts, pos.EntryPrice, cause)
	e.logger.Error("Escalating stuck position", zap.String("message", msg))
	if err := e.notifier.Notify(ctx, msg); err != nil {
		e.logger.Error("Failed to send alert", zap.Error(err))
	}
}

// submitOrder sends a market order, or simulates a fill at price in dry-run mode.
func (e *Engine) submitOrder(ctx context.Context, side string, quantity int64, price float64) (float64, error) {
	mode := "live"
	if e.cfg.DryRun {
		mode = "paper"
		e.logger.Warn("[Dry Run] Simulating market order",
			zap.String("side", side), zap.Int64("quantity", quantity), zap.Float64("price", price))
		e.metrics.orders.WithLabelValues(side, mode, "ok").Inc()
		return price, nil
	}

	callCtx, cancel := withTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	fill, err := e.gateway.SubmitMarketOrder(callCtx, e.params.Asset, side, quantity)
	if err != nil {
		e.metrics.orders.WithLabelValues(side, mode, "error").Inc()
		return 0, &OrderSubmissionError{Side: side, Symbol: e.params.Asset, Quantity: quantity, Err: err}
	}
	e.metrics.orders.WithLabelValues(side, mode, "ok").Inc()
	return fill, nil
}

func (e *Engine) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := withTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	price, err := e.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return 0, &DataFetchError{Op: "price", Err: err}
	}
	return price, nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) currentPosition() *ActivePosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// State returns the current phase of the loop.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot is a point-in-time view of the engine for the status API.
type Snapshot struct {
	State      string          `json:"state"`
	Params     TradeParameters `json:"params"`
	Position   *ActivePosition `json:"position,omitempty"`
	LastSignal *SignalStatus   `json:"last_signal,omitempty"`
}

// Snapshot copies the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{State: e.state.String(), Params: e.params}
	if e.position != nil {
		p := *e.position
		snap.Position = &p
	}
	if e.lastSignal != nil {
		s := *e.lastSignal
		snap.LastSignal = &s
	}
	return snap
}
