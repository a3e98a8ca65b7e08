package trader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus series the engine updates while it runs.
type Metrics struct {
	scans       *prometheus.CounterVec
	orders      *prometheus.CounterVec
	exits       *prometheus.CounterVec
	escalations prometheus.Counter
	inPosition  prometheus.Gauge
	percentDiff prometheus.Gauge
	gain        prometheus.Gauge
	backoff     prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_scans_total",
			Help: "Scanner polls by result (ok, triggered, error).",
		}, []string{"result"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Market orders by side, mode (live|paper) and result.",
		}, []string{"side", "mode", "result"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_exit_reasons_total",
			Help: "Closed positions by exit reason.",
		}, []string{"reason"}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "bot_exit_escalations_total",
			Help: "Alerts raised because an open position could not be sold.",
		}),
		inPosition: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_in_position",
			Help: "1 while a position is open.",
		}),
		percentDiff: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_lower_band_diff_percent",
			Help: "Last observed deviation of the price from the lower band.",
		}),
		gain: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_gain_percent",
			Help: "Last observed gain of the open position.",
		}),
		backoff: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_scan_backoff_seconds",
			Help: "Delay before the next scan.",
		}),
	}
}
