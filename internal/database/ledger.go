package database

import (
	"context"
	"fmt"
	"time"

	"binance-dip-bot-go/internal/models"
	"gorm.io/gorm"
)

// TradeLedger is the append-only log of completed trades.
type TradeLedger struct {
	db *gorm.DB
}

// NewTradeLedger creates a ledger on top of db.
func NewTradeLedger(db *gorm.DB) *TradeLedger {
	return &TradeLedger{db: db}
}

// AppendTrade stores a completed trade.
func (l *TradeLedger) AppendTrade(ctx context.Context, trade *models.Trade) error {
	if trade.ID != 0 {
		return fmt.Errorf("trade %d is already recorded", trade.ID)
	}
	if err := l.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to append trade for %s: %w", trade.Symbol, err)
	}
	return nil
}

// ListTrades returns trades newest first. A zero limit returns all of them.
func (l *TradeLedger) ListTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := l.db.WithContext(ctx).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalGainPercent float64 `json:"total_gain_percent"`
}

// Statistics summarises every trade at or after since.
func (l *TradeLedger) Statistics(ctx context.Context, since time.Time) (StatsDetail, error) {
	var trades []models.Trade
	if err := l.db.WithContext(ctx).Where("timestamp >= ?", since).Find(&trades).Error; err != nil {
		return StatsDetail{}, fmt.Errorf("failed to get trades for statistics: %w", err)
	}

	stats := StatsDetail{}
	for _, trade := range trades {
		stats.TotalTrades++
		if trade.Gain > 0 {
			stats.ProfitableTrades++
		}
		stats.TotalGainPercent += trade.Gain
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.TotalTrades)
	}
	return stats, nil
}
