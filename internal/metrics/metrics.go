// Package metrics counts operations and failures as they pass through a client.
// A nil *Metrics is valid and counts nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eggclient"

// Failure kinds used as the "kind" label
const (
	KindNetwork = "network" // the transport failed
	KindGraphQL = "graphql" // the server returned GraphQL errors
)

// Metrics holds the counters shared by every client registered against the same registry
type Metrics struct {
	operations *prometheus.CounterVec // by transport (http/ws)
	failures   *prometheus.CounterVec // by kind (network/graphql)
}

// New creates the counters and registers them. If reg is nil the default registerer is used.
// Registering twice against one registry returns counters that share the earlier collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of operations sent, by transport",
	}, []string{"transport"}))
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Total number of results with failures, by kind of failure",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{operations: operations, failures: failures}, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			if existing, ok := alreadyRegErr.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Operation counts an operation sent over the named transport
func (m *Metrics) Operation(transport string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(transport).Inc()
}

// Failure counts a result with a failure of the given kind
func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}
