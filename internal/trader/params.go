package trader

import (
	"fmt"
	"strings"
)

// Interval is a kline interval the bot can trade on.
type Interval string

const (
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
)

// Intervals lists every supported interval, shortest first.
var Intervals = []Interval{
	Interval15m, Interval30m, Interval1h, Interval2h,
	Interval4h, Interval6h, Interval12h, Interval1d,
}

// ParseInterval accepts an interval in any case, so "1H" and "1h" are the same.
func ParseInterval(s string) (Interval, error) {
	v := Interval(strings.ToLower(strings.TrimSpace(s)))
	for _, iv := range Intervals {
		if v == iv {
			return iv, nil
		}
	}
	return "", &ConfigurationError{
		Field:  "interval",
		Reason: fmt.Sprintf("%q is not one of %v", s, Intervals),
	}
}

// TradeParameters is the validated trading setup.
type TradeParameters struct {
	Asset         string   `json:"asset"`
	CapitalAmount float64  `json:"capital_amount"`
	Interval      Interval `json:"interval"`
}

// IsSet reports whether every field has been populated.
func (p TradeParameters) IsSet() bool {
	return p.Asset != "" && p.CapitalAmount > 0 && p.Interval != ""
}
