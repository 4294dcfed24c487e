package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// observe 累加到所有不小于 value 的桶；超过最后一个桶的值只计入 +Inf（即 count）。
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// labelSet 是按固定顺序排列的标签值，作为 map 键使用。
type labelSet string

func makeLabels(names []string, values ...string) labelSet {
	parts := make([]string, len(names))
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		parts[i] = fmt.Sprintf("%s=\"%s\"", name, escape(value))
	}
	return labelSet(strings.Join(parts, ","))
}

type counterVec struct {
	name   string
	help   string
	labels []string
	values map[labelSet]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[labelSet]uint64)}
}

func (c *counterVec) add(delta uint64, values ...string) {
	c.values[makeLabels(c.labels, values...)] += delta
}

func (c *counterVec) render(b *strings.Builder) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
	for _, key := range sortedKeys(c.values) {
		fmt.Fprintf(b, "%s{%s} %d\n", c.name, key, c.values[key])
	}
}

type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	values  map[labelSet]*histogram
}

func newHistogramVec(name, help string, buckets []float64, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, buckets: buckets, values: make(map[labelSet]*histogram)}
}

func (h *histogramVec) observe(value float64, values ...string) {
	key := makeLabels(h.labels, values...)
	hist := h.values[key]
	if hist == nil {
		hist = newHistogram(h.buckets)
		h.values[key] = hist
	}
	hist.observe(value)
}

func (h *histogramVec) render(b *strings.Builder) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for _, key := range sortedKeys(h.values) {
		hist := h.values[key]
		for idx, bound := range hist.buckets {
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", h.name, key, formatFloat(bound), hist.counts[idx])
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", h.name, key, hist.count)
		fmt.Fprintf(b, "%s_sum{%s} %s\n", h.name, key, formatFloat(hist.sum))
		fmt.Fprintf(b, "%s_count{%s} %d\n", h.name, key, hist.count)
	}
}

func sortedKeys[V any](m map[labelSet]V) []labelSet {
	keys := make([]labelSet, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type family interface {
	render(b *strings.Builder)
}

// collector 汇总进程内的全部指标，所有访问都在 mu 保护下进行。
type collector struct {
	mu       sync.Mutex
	families []family

	httpRequests   *counterVec
	httpErrors     *counterVec
	httpLatency    *histogramVec
	generations    *counterVec
	genLatency     *histogramVec
	estimatedToken *counterVec
	fallbacks      *counterVec
	indexingJobs   *counterVec
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var generationBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120}

func newCollector() *collector {
	c := &collector{
		httpRequests: newCounterVec("sailor_http_requests_total",
			"Total number of HTTP requests processed.", "handler", "method", "code"),
		httpErrors: newCounterVec("sailor_http_request_errors_total",
			"Total number of HTTP requests that resulted in a server error.", "handler", "method"),
		httpLatency: newHistogramVec("sailor_http_request_duration_seconds",
			"HTTP request duration in seconds.", latencyBuckets, "handler", "method"),
		generations: newCounterVec("sailor_generations_total",
			"Response generations by provider, model and outcome.", "provider", "model", "outcome"),
		genLatency: newHistogramVec("sailor_generation_duration_seconds",
			"Backend round trip duration in seconds.", generationBuckets, "provider"),
		estimatedToken: newCounterVec("sailor_generation_estimated_tokens_total",
			"Estimated tokens sent to and received from backends.", "provider", "direction"),
		fallbacks: newCounterVec("sailor_selection_fallbacks_total",
			"Requests served by the default provider, by reason.", "reason"),
		indexingJobs: newCounterVec("sailor_indexing_jobs_total",
			"Knowledge base indexing job operations by outcome.", "operation", "outcome"),
	}
	c.families = []family{
		c.httpRequests, c.httpErrors, c.httpLatency,
		c.generations, c.genLatency, c.estimatedToken, c.fallbacks, c.indexingJobs,
	}
	return c
}

var global = newCollector()

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(2048)
	for _, f := range c.families {
		f.render(&builder)
	}
	return builder.String()
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, global.render())
	})
}

// Reset discards every recorded sample. Intended for tests.
func Reset() {
	fresh := newCollector()
	global.mu.Lock()
	defer global.mu.Unlock()
	global.families = fresh.families
	global.httpRequests, global.httpErrors, global.httpLatency = fresh.httpRequests, fresh.httpErrors, fresh.httpLatency
	global.generations, global.genLatency = fresh.generations, fresh.genLatency
	global.estimatedToken, global.fallbacks, global.indexingJobs = fresh.estimatedToken, fresh.fallbacks, fresh.indexingJobs
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
