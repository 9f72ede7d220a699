// Package metrics instruments client operations with Prometheus collectors
// registered on a caller-supplied registry.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
)

const (
	namespace = "esdb"
	subsystem = "client"
)

// Outcome labels.
const (
	OutcomeOK               = "ok"
	OutcomeCanceled         = "canceled"
	OutcomeDeadlineExceeded = "deadline_exceeded"
	OutcomeBuildError       = "build_error"
	OutcomeConnectionError  = "connection_error"
	OutcomeDecodeError      = "decode_error"
	OutcomeDomainError      = "domain_error"
	OutcomeError            = "error"
)

// Metrics holds the client collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	liveStreams *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Time until an operation returned its result or opened its stream",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		liveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "live_streams",
				Help:      "Number of open read streams and subscriptions",
			},
			[]string{"operation"},
		),
	}
}

// Observe records one finished operation that started at start.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// StreamOpened counts a live stream and returns the callback that counts it
// closed. The callback also records the stream's terminal outcome.
func (m *Metrics) StreamOpened(op string) func(error) {
	if m == nil {
		return func(error) {}
	}
	g := m.liveStreams.WithLabelValues(op)
	g.Inc()
	return func(err error) {
		g.Dec()
		m.operations.WithLabelValues(op+".stream", Outcome(err)).Inc()
	}
}

// Outcome classifies err into a label value.
func Outcome(err error) string {
	var (
		buildErr  *esdberr.RequestBuildError
		connErr   *esdberr.ConnectionError
		decodeErr *esdberr.DecodeError
		domainErr *esdberr.DomainError
	)

	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, esdberr.ErrDeadlineExceeded):
		return OutcomeDeadlineExceeded
	case errors.As(err, &buildErr):
		return OutcomeBuildError
	case errors.As(err, &connErr):
		return OutcomeConnectionError
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.As(err, &domainErr):
		return OutcomeDomainError
	default:
		return OutcomeError
	}
}
