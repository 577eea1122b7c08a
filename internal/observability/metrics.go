package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the feed daemon's prometheus instruments.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec
	PublishErrors  prometheus.Counter
	StoreErrors    prometheus.Counter
	SessionReady   prometheus.Gauge
	ActiveSymbols  prometheus.Gauge
	LastTradePrice *prometheus.GaugeVec
}

// NewMetrics registers the daemon's metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dtc_feed_events_total",
			Help: "Feed events received from the DTC session, by kind.",
		}, []string{"kind"}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dtc_feed_publish_errors_total",
			Help: "Kafka publish failures.",
		}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dtc_feed_store_errors_total",
			Help: "Quote store write failures.",
		}),
		SessionReady: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dtc_feed_session_ready",
			Help: "1 while the DTC session is in the Ready state.",
		}),
		ActiveSymbols: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dtc_feed_active_symbols",
			Help: "Symbols with a live subscription.",
		}),
		LastTradePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dtc_feed_last_trade_price",
			Help: "Last trade price per symbol.",
		}, []string{"symbol"}),
	}
}
