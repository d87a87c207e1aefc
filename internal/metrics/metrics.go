package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "ares_client"

const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultHandoff  = "handoff"
	ResultThrottle = "throttled"
)

type SessionMetrics interface {
	ConnectAttempt(provider, result string)
	SetIdentities(n int)
	RecordDropped(reason string)
	StorageError(op string)
}

type sessionMetrics struct {
	connects    *prometheus.CounterVec
	identities  prometheus.Gauge
	dropped     *prometheus.CounterVec
	storageErrs *prometheus.CounterVec
}

// InitMetrics registers the session collectors on registry. Collectors that
// another client already registered there are shared rather than rejected.
func InitMetrics(registry prometheus.Registerer) (SessionMetrics, error) {
	m := &sessionMetrics{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem, Name: "connect_attempts_total",
			Help: "Connect attempts by provider and result",
		}, []string{"provider", "result"}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem, Name: "identities",
			Help: "Delegated identities currently held",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem, Name: "dropped_records_total",
			Help: "Stored session records dropped on load",
		}, []string{"reason"}),
		storageErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem, Name: "storage_errors_total",
			Help: "Storage adapter failures by operation",
		}, []string{"op"}),
	}
	var err error
	if m.connects, err = register(registry, m.connects); err != nil {
		return nil, err
	}
	if m.identities, err = register(registry, m.identities); err != nil {
		return nil, err
	}
	if m.dropped, err = register(registry, m.dropped); err != nil {
		return nil, err
	}
	if m.storageErrs, err = register(registry, m.storageErrs); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	err := registry.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *sessionMetrics) ConnectAttempt(provider, result string) {
	m.connects.WithLabelValues(provider, result).Inc()
}

func (m *sessionMetrics) SetIdentities(n int) {
	m.identities.Set(float64(n))
}

func (m *sessionMetrics) RecordDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *sessionMetrics) StorageError(op string) {
	m.storageErrs.WithLabelValues(op).Inc()
}

type noop struct{}

// Noop is used by components constructed without a registry.
func Noop() SessionMetrics { return noop{} }

func (noop) ConnectAttempt(string, string) {}
func (noop) SetIdentities(int)             {}
func (noop) RecordDropped(string)          {}
func (noop) StorageError(string)           {}
