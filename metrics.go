// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus collector for an [Orbiter].
//
// A nil *Metrics (the [Config] default) disables instrumentation entirely:
// every method on *Metrics is nil-receiver safe.
type Metrics struct {
	discoversSent     prometheus.Counter
	offersReceived    prometheus.Counter
	offersSent        prometheus.Counter
	requestsSent      prometheus.Counter
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	pendingExpired    prometheus.Counter
}

// NewMetrics constructs a [*Metrics] and registers its collectors with reg.
// Pass [prometheus.NewRegistry] or [prometheus.DefaultRegisterer].
func NewMetrics(reg prometheus.Registerer, orbiterID string) *Metrics {
	labels := prometheus.Labels{"orbiter_id": orbiterID}
	m := &Metrics{
		discoversSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "discovers_sent_total",
			Help:        "Number of DiscoverMessage published by this core.",
			ConstLabels: labels,
		}),
		offersReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "offers_received_total",
			Help:        "Number of OfferMessage received by this core.",
			ConstLabels: labels,
		}),
		offersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "offers_sent_total",
			Help:        "Number of OfferMessage published by this plugin.",
			ConstLabels: labels,
		}),
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "requests_sent_total",
			Help:        "Number of RequestOperationMessage published by this core.",
			ConstLabels: labels,
		}),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "connections_opened_total",
			Help:        "Number of connections promoted from a pending request.",
			ConstLabels: labels,
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "connections_closed_total",
			Help:        "Number of connections closed (graceful or graceless).",
			ConstLabels: labels,
		}),
		pendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "orbitalis",
			Name:        "pending_requests_expired_total",
			Help:        "Number of pending requests discarded by the periodic loop's age sweep.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(
		m.discoversSent, m.offersReceived, m.offersSent, m.requestsSent,
		m.connectionsOpened, m.connectionsClosed, m.pendingExpired,
	)
	return m
}

func (m *Metrics) incDiscoversSent() {
	if m == nil {
		return
	}
	m.discoversSent.Inc()
}

func (m *Metrics) incOffersReceived() {
	if m == nil {
		return
	}
	m.offersReceived.Inc()
}

func (m *Metrics) incOffersSent() {
	if m == nil {
		return
	}
	m.offersSent.Inc()
}

func (m *Metrics) incRequestsSent() {
	if m == nil {
		return
	}
	m.requestsSent.Inc()
}

func (m *Metrics) incConnectionsOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Inc()
}

func (m *Metrics) incConnectionsClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *Metrics) incPendingExpired() {
	if m == nil {
		return
	}
	m.pendingExpired.Inc()
}
