package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's business collectors.
type Metrics struct {
	betsPlaced   prometheus.Counter
	cashOuts     prometheus.Counter
	settlements  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	feedUpdates  prometheus.Counter
	ledgerBusy   prometheus.Counter
	cashOutValue prometheus.Histogram
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		betsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bet_engine_bets_placed_total",
			Help: "Total bets placed",
		}),
		cashOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bet_engine_cashouts_total",
			Help: "Total bets cashed out",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bet_engine_settlements_total",
			Help: "Total bets settled by outcome",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bet_engine_rejections_total",
			Help: "Rejected placements, cash-outs and settlements by reason",
		}, []string{"reason"}),
		feedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bet_engine_feed_updates_total",
			Help: "Price updates read from the odds feed",
		}),
		ledgerBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bet_engine_ledger_busy_total",
			Help: "Account lock acquisitions that timed out",
		}),
		cashOutValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bet_engine_cashout_value",
			Help:    "Value paid out on cash-out",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	reg.MustRegister(
		m.betsPlaced,
		m.cashOuts,
		m.settlements,
		m.rejections,
		m.feedUpdates,
		m.ledgerBusy,
		m.cashOutValue,
	)
	return m
}

func (m *Metrics) BetPlaced() {
	m.betsPlaced.Inc()
}

func (m *Metrics) CashedOut(value float64) {
	m.cashOuts.Inc()
	m.cashOutValue.Observe(value)
}

func (m *Metrics) Settled(outcome string) {
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// FeedUpdate counts one price update; wired as the repricer's OnUpdate hook.
func (m *Metrics) FeedUpdate() {
	m.feedUpdates.Inc()
}

// LedgerBusy counts one lock timeout; wired as the ledger's busy hook.
func (m *Metrics) LedgerBusy() {
	m.ledgerBusy.Inc()
}
