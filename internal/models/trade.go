package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade represents a completed round trip in the ledger.
type Trade struct {
	gorm.Model
	Timestamp    time.Time `gorm:"index" json:"timestamp"` // UTC time of the exit
	Symbol       string    `gorm:"index" json:"symbol"`
	Size         int64     `json:"size"`
	Capital      float64   `json:"capital"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	GainPercent  string    `json:"gain_percent"` // e.g. "5.26%"
	Gain         float64   `json:"gain"`
	Reason       string    `json:"reason"` // "take_profit" or "stop_loss"
	IsSimulation bool      `json:"is_simulation"`
}
