package models

import (
	"time"

	"gorm.io/gorm"
)

// Position is the open position held by the bot.
// There should only ever be one row in this table.
type Position struct {
	gorm.Model
	Symbol     string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Quantity   int64     `gorm:"not null" json:"quantity"`
	Capital    float64   `json:"capital"`
	EntryPrice float64   `gorm:"not null" json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Simulated  bool      `json:"simulated"`
}
