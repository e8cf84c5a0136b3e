package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector raccoglie statistiche per-modello sulle richieste di inferenza.
// Mantiene aggregati in memoria per l'endpoint di monitoring ed esporta
// le stesse misure come metriche Prometheus.
type Collector struct {
	mu             sync.Mutex
	requestsTotal  int64
	requestsFailed int64
	totalLatencyMs float64
	models         map[string]*modelStats

	promRequests *prometheus.CounterVec
	promDuration *prometheus.HistogramVec
}

type modelStats struct {
	count          int64
	errors         int64
	totalLatencyMs float64
}

// GlobalStats aggregati globali
type GlobalStats struct {
	TotalRequests    int64   `json:"total_requests"`
	FailedRequests   int64   `json:"failed_requests"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// ModelStats aggregati per singolo modello
type ModelStats struct {
	Count            int64   `json:"count"`
	Errors           int64   `json:"errors"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Snapshot è la vista corrente delle statistiche
type Snapshot struct {
	Global GlobalStats           `json:"global"`
	Models map[string]ModelStats `json:"models"`
}

// NewCollector crea un nuovo collector. Se reg è nil usa il registry
// Prometheus di default.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "gocouncil"
	}

	factory := promauto.With(reg)

	return &Collector{
		models: make(map[string]*modelStats),
		promRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inference_requests_total",
				Help:      "Total number of inference requests by model and status",
			},
			[]string{"model", "status"},
		),
		promDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_request_duration_milliseconds",
				Help:      "Inference request duration in milliseconds",
				Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
			},
			[]string{"model"},
		),
	}
}

// Record registra l'esito di una richiesta di inferenza
func (c *Collector) Record(model string, elapsed time.Duration, success bool) {
	elapsedMs := float64(elapsed.Milliseconds())

	status := "success"
	if !success {
		status = "error"
	}
	c.promRequests.WithLabelValues(model, status).Inc()
	c.promDuration.WithLabelValues(model).Observe(elapsedMs)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestsTotal++
	if !success {
		c.requestsFailed++
	} else {
		c.totalLatencyMs += elapsedMs
	}

	m, ok := c.models[model]
	if !ok {
		m = &modelStats{}
		c.models[model] = m
	}
	m.count++
	if success {
		m.totalLatencyMs += elapsedMs
	} else {
		m.errors++
	}
}

// Snapshot restituisce la vista corrente delle statistiche
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Models: make(map[string]ModelStats, len(c.models)),
	}

	succeeded := c.requestsTotal - c.requestsFailed
	avg := 0.0
	if succeeded > 0 {
		avg = c.totalLatencyMs / float64(succeeded)
	}
	snap.Global = GlobalStats{
		TotalRequests:    c.requestsTotal,
		FailedRequests:   c.requestsFailed,
		AverageLatencyMs: round2(avg),
	}

	for model, m := range c.models {
		mSucceeded := m.count - m.errors
		mAvg := 0.0
		if mSucceeded > 0 {
			mAvg = m.totalLatencyMs / float64(mSucceeded)
		}
		snap.Models[model] = ModelStats{
			Count:            m.count,
			Errors:           m.errors,
			AverageLatencyMs: round2(mAvg),
		}
	}

	return snap
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
