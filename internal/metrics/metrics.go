package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Nomes canônicos dos contadores emitidos pelos limiters
const (
	RequestsAllowed     = "ratelimiter.requests.allowed"
	RequestsRejected    = "ratelimiter.requests.rejected"
	CacheHits           = "ratelimiter.cache.hits"
	TokenBucketAllowed  = "ratelimiter.tokenbucket.allowed"
	TokenBucketRejected = "ratelimiter.tokenbucket.rejected"
)

// Sink recebe os contadores e as latências de armazenamento emitidos pelo core
type Sink interface {
	IncCounter(name string)
	ObserveStorageLatency(op string, d time.Duration)
}

// PrometheusSink expõe os contadores via Prometheus. Os nomes canônicos com
// pontos são convertidos para o formato do Prometheus (underscores)
type PrometheusSink struct {
	registerer prometheus.Registerer
	latency    *prometheus.HistogramVec

	mu       sync.Mutex
	counters map[string]prometheus.Counter
}

var promName = strings.NewReplacer(".", "_")

func NewPrometheusSink(registerer prometheus.Registerer) *PrometheusSink {
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ratelimiter_storage_latency_seconds",
		Help:    "Latency of shared storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	registerer.MustRegister(latency)

	return &PrometheusSink{
		registerer: registerer,
		latency:    latency,
		counters:   make(map[string]prometheus.Counter),
	}
}

func (s *PrometheusSink) IncCounter(name string) {
	s.counterFor(name).Inc()
}

func (s *PrometheusSink) ObserveStorageLatency(op string, d time.Duration) {
	s.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (s *PrometheusSink) counterFor(name string) prometheus.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName.Replace(name),
		Help: "Rate limiter counter " + name,
	})
	s.registerer.MustRegister(c)
	s.counters[name] = c
	return c
}

// NoopSink descarta todas as métricas. Útil em testes
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (*NoopSink) IncCounter(string) {}

func (*NoopSink) ObserveStorageLatency(string, time.Duration) {}
