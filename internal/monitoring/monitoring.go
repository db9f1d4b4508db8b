package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
)

const namespace = "sensorlog"

// Config holds monitoring configuration
type Config struct {
	// RuntimeCollectors adds the go and process collectors to the registry
	RuntimeCollectors bool
}

// Service provides monitoring functionality backed by a private prometheus registry
type Service struct {
	config   Config
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	requests *prometheus.HistogramVec
}

// NewService creates a new monitoring service
func NewService(config Config) *Service {
	s := &Service{
		config:   config,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events recorded by the service, by event name.",
		}, []string{"event"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	s.registry.MustRegister(s.events, s.requests)
	if config.RuntimeCollectors {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return s
}

// RecordEvent records a monitored event with labels. Only the event name
// becomes a metric label; the remaining labels go to the log.
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	s.events.WithLabelValues(eventName).Inc()
	nuts.L.Debugf("[Monitoring] Event %s recorded with labels: %v", eventName, labels)
}

// EventCount returns how many times eventName has been recorded
func (s *Service) EventCount(eventName string) float64 {
	families, err := s.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != namespace+"_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "event" && lp.GetValue() == eventName {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// ObserveRequest records the latency of one HTTP request
func (s *Service) ObserveRequest(route, method string, status int, d time.Duration) {
	s.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// RegisterPool exposes connection pool statistics as gauges read at scrape time
func (s *Service) RegisterPool(stats func() database.PoolStats) {
	gauge := func(name, help string, read func(database.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(stats()) })
	}
	s.registry.MustRegister(
		gauge("size", "Configured number of pooled connections.", func(p database.PoolStats) float64 { return float64(p.Size) }),
		gauge("open", "Currently open connections.", func(p database.PoolStats) float64 { return float64(p.Open) }),
		gauge("in_use", "Connections checked out by callers.", func(p database.PoolStats) float64 { return float64(p.InUse) }),
		gauge("idle", "Idle connections.", func(p database.PoolStats) float64 { return float64(p.Idle) }),
		gauge("wait_count", "Total acquisitions that had to wait.", func(p database.PoolStats) float64 { return float64(p.WaitCount) }),
		gauge("wait_seconds", "Total time spent waiting for a connection.", func(p database.PoolStats) float64 { return p.WaitDuration.Seconds() }),
	)
}

// Registry exposes the underlying registry
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the prometheus exposition format
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
