package client

import (
	"context"
	"errors"
	"time"

	"github.com/dermesser/zkmux/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "zkmux"

// clientMetrics holds the Prometheus metrics of one client.
type clientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pending         prometheus.Gauge
	reconnects      prometheus.Counter
	pings           prometheus.Counter
	watchEvents     prometheus.Counter
	watchDropped    prometheus.Counter
}

// newClientMetrics creates the client metrics and registers them with reg if it is not nil.
// Clients sharing a registry share the collectors.
func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	// Unregistered; see register() below.
	factory := promauto.With(nil)

	m := &clientMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of requests completed, by operation and status",
		}, []string{"op", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from submission to completion of a request",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests written to a connection and awaiting a reply",
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Total number of successful session resumptions on a new connection",
		}),

		pings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "pings_total",
			Help:      "Total number of heartbeats sent",
		}),

		watchEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "watch_events_total",
			Help:      "Total number of watch and session events delivered",
		}),

		watchDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "watch_events_dropped_total",
			Help:      "Total number of events dropped because the subscriber was not keeping up",
		}),
	}
	if reg == nil {
		return m
	}

	m.requestsTotal = register(reg, m.requestsTotal)
	m.requestDuration = register(reg, m.requestDuration)
	m.pending = register(reg, m.pending)
	m.reconnects = register(reg, m.reconnects)
	m.pings = register(reg, m.pings)
	m.watchEvents = register(reg, m.watchEvents)
	m.watchDropped = register(reg, m.watchDropped)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// statusLabel condenses an outcome into a low-cardinality label value.
func statusLabel(err error) string {
	var rqerr *RequestError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rqerr):
		return rqerr.Status()
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrClosing):
		return "closing"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, proto.ErrSessionExpired):
		return "session_expired"
	}
	return "error"
}

// A filter that counts requests and observes their latency.
func MetricsFilter(rq *Request, next int) Response {
	start := time.Now()
	rsp := rq.callNextFilter(next)

	op := rq.op.OpCode().String()
	rq.client.metrics.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	rq.client.metrics.requestsTotal.WithLabelValues(op, statusLabel(rsp.err)).Inc()
	return rsp
}
