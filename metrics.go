package remoting

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "remoting"

// 一次请求的结果，作为 requests_total 的标签
const (
	outcomeValue     = "value"
	outcomeNull      = "null"
	outcomeReference = "reference"
	outcomeNotFound  = "not_found"
	outcomeFault     = "fault"
)

// Collector is a prometheus.Collector that collects metrics about one
// server.
type Collector struct {
	connectedClients prometheus.Gauge
	requests         *prometheus.CounterVec
	requestDuration  prometheus.Histogram
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		connectedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "connected_clients",
				Help:      "The number of clients connected to the server.",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "The number of requests served, by outcome.",
			}, []string{"outcome"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "The time taken to decode, dispatch and answer a request.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.connectedClients.Describe(ch)
	c.requests.Describe(ch)
	c.requestDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.connectedClients.Collect(ch)
	c.requests.Collect(ch)
	c.requestDuration.Collect(ch)
}

func (c *Collector) served(outcome string, started time.Time) {
	c.requests.WithLabelValues(outcome).Inc()
	if outcome != outcomeFault {
		c.requestDuration.Observe(time.Since(started).Seconds())
	}
}
