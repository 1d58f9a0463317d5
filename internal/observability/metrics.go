package observability

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing float64.
type Counter struct {
	bits uint64
}

func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	for {
		old := atomic.LoadUint64(&c.bits)
		next := f2b(b2f(old) + v)
		if atomic.CompareAndSwapUint64(&c.bits, old, next) {
			return
		}
	}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Value() float64 { return b2f(atomic.LoadUint64(&c.bits)) }

func f2b(f float64) uint64 { return math.Float64bits(f) }

func b2f(b uint64) float64 { return math.Float64frombits(b) }

// CounterVec is a counter partitioned by label values.
type CounterVec struct {
	name   string
	help   string
	labels []string

	mu       sync.Mutex
	children map[string]*Counter
}

func NewCounterVec(name, help string, labels ...string) *CounterVec {
	return &CounterVec{
		name:     name,
		help:     help,
		labels:   labels,
		children: map[string]*Counter{},
	}
}

func (v *CounterVec) With(values ...string) *Counter {
	key := strings.Join(values, "\xff")
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.children[key]
	if !ok {
		c = &Counter{}
		v.children[key] = c
	}
	return c
}

func (v *CounterVec) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", v.name, v.help, v.name)
	v.mu.Lock()
	keys := make([]string, 0, len(v.children))
	for k := range v.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s} %g\n", v.name, formatLabels(v.labels, strings.Split(k, "\xff")), v.children[k].Value())
	}
	v.mu.Unlock()
}

// Histogram accumulates observations into fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	bounds  []float64
	counts  []uint64
	sum     float64
	samples uint64
}

func NewHistogram(bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{bounds: sorted, counts: make([]uint64, len(sorted)+1)}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := len(h.bounds)
	for i, b := range h.bounds {
		if v <= b {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += v
	h.samples++
}

// HistogramVec is a histogram partitioned by label values.
type HistogramVec struct {
	name   string
	help   string
	labels []string
	bounds []float64

	mu       sync.Mutex
	children map[string]*Histogram
}

func NewHistogramVec(name, help string, bounds []float64, labels ...string) *HistogramVec {
	return &HistogramVec{
		name:     name,
		help:     help,
		labels:   labels,
		bounds:   bounds,
		children: map[string]*Histogram{},
	}
}

func (v *HistogramVec) With(values ...string) *Histogram {
	key := strings.Join(values, "\xff")
	v.mu.Lock()
	defer v.mu.Unlock()
	h, ok := v.children[key]
	if !ok {
		h = NewHistogram(v.bounds)
		v.children[key] = h
	}
	return h
}

func (v *HistogramVec) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", v.name, v.help, v.name)
	v.mu.Lock()
	keys := make([]string, 0, len(v.children))
	for k := range v.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h := v.children[k]
		values := strings.Split(k, "\xff")
		h.mu.Lock()
		cum := uint64(0)
		for i, b := range h.bounds {
			cum += h.counts[i]
			fmt.Fprintf(w, "%s_bucket{%s,le=\"%g\"} %d\n", v.name, formatLabels(v.labels, values), b, cum)
		}
		cum += h.counts[len(h.bounds)]
		fmt.Fprintf(w, "%s_bucket{%s,le=\"+Inf\"} %d\n", v.name, formatLabels(v.labels, values), cum)
		fmt.Fprintf(w, "%s_sum{%s} %g\n", v.name, formatLabels(v.labels, values), h.sum)
		fmt.Fprintf(w, "%s_count{%s} %d\n", v.name, formatLabels(v.labels, values), h.samples)
		h.mu.Unlock()
	}
	v.mu.Unlock()
}

func formatLabels(names, values []string) string {
	parts := make([]string, 0, len(names))
	for i, n := range names {
		val := ""
		if i < len(values) {
			val = values[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", n, val))
	}
	return strings.Join(parts, ",")
}

var latencyBounds = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is the process-wide metric registry.
type Metrics struct {
	httpRequests       *CounterVec
	httpLatency        *HistogramVec
	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: NewCounterVec("http_requests_total",
			"HTTP requests by method, route and status.",
			"method", "route", "status"),
		httpLatency: NewHistogramVec("http_request_duration_seconds",
			"HTTP request latency.", latencyBounds,
			"method", "route"),
		aggregateOps: NewCounterVec("aggregate_operations_total",
			"Aggregate operations by name and outcome.",
			"operation", "status"),
		aggregateLatency: NewHistogramVec("aggregate_operation_duration_seconds",
			"Aggregate operation latency.", latencyBounds,
			"operation"),
		aggregateConflicts: NewCounterVec("aggregate_version_conflicts_total",
			"Optimistic-lock conflicts detected during saves.",
			"operation"),
		aggregateRetries: NewCounterVec("aggregate_merge_retries_total",
			"Saves recovered by merging new children and retrying.",
			"operation"),
	}
}

func (m *Metrics) ObserveHTTPRequest(method, route, status string, dur time.Duration) {
	m.httpRequests.With(method, route, status).Inc()
	m.httpLatency.With(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	m.aggregateOps.With(operation, status).Inc()
	m.aggregateLatency.With(operation).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(operation string) {
	m.aggregateConflicts.With(operation).Inc()
}

func (m *Metrics) IncAggregateRetry(operation string) {
	m.aggregateRetries.With(operation).Inc()
}

// WriteHTTP serves the registry as a prometheus scrape target.
func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m.WritePrometheus(w)
}

// WritePrometheus renders every metric in the prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.httpRequests.write(w)
	m.httpLatency.write(w)
	m.aggregateOps.write(w)
	m.aggregateLatency.write(w)
	m.aggregateConflicts.write(w)
	m.aggregateRetries.write(w)
}
