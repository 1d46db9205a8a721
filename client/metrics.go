package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess         = "success"
	outcomeHTTPError       = "http_error"
	outcomeTransportError  = "transport_error"
	outcomeUnauthenticated = "unauthenticated"

	refreshOK     = "ok"
	refreshFailed = "failed"
)

// Metrics counts executor outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
}

// NewMetrics registers the walletauth counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_requests_total",
			Help: "Requests executed, by final outcome.",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_refresh_total",
			Help: "Refresh token exchanges, by result.",
		}, []string{"result"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletauth_retries_total",
			Help: "Requests resent after a successful refresh.",
		}),
	}
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
