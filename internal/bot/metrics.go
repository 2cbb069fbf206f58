package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bot's Prometheus collectors
type Metrics struct {
	// Outcomes counts recorded answers. Labels: quality
	Outcomes *prometheus.CounterVec
	// Sessions counts review sessions. Labels: event (started, completed, empty)
	Sessions *prometheus.CounterVec
	// SessionSize observes the number of items in started sessions
	SessionSize prometheus.Histogram
	// Reminders counts reminder messages sent
	Reminders prometheus.Counter
	// Errors counts failed operations. Labels: op
	Errors *prometheus.CounterVec
}

// NewMetrics registers the bot collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prepbot",
			Subsystem: "review",
			Name:      "outcomes_total",
			Help:      "Total recorded answers by quality",
		}, []string{"quality"}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prepbot",
			Subsystem: "review",
			Name:      "sessions_total",
			Help:      "Total review sessions by event",
		}, []string{"event"}),
		SessionSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prepbot",
			Subsystem: "review",
			Name:      "session_items",
			Help:      "Number of items in a review session",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 50},
		}),
		Reminders: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prepbot",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Total reminder messages sent",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prepbot",
			Subsystem: "bot",
			Name:      "errors_total",
			Help:      "Total failed bot operations by op",
		}, []string{"op"}),
	}
}
