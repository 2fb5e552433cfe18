package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter），用于计算 QPS/错误率。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（用 pattern 而不是真实 path，避免高基数 label）
	// - status：状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// LinksCreated：成功创建的短链数。
	LinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "links_created_total",
			Help: "短链创建成功的总数",
		},
	)

	// LinkRedirects：成功跳转数（解析到有效短链并返回 Location）。
	LinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "link_redirects_total",
			Help: "短链跳转成功的总数",
		},
	)

	// LinksCleaned：清理掉的过期行数。
	LinksCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "links_cleaned_total",
			Help: "被清理的过期短链总数",
		},
	)

	// CacheOperations：缓存命中情况。
	// labels：layer（l1/l2）、result（hit/miss/hit_negative）
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "缓存操作计数",
		},
		[]string{"layer", "result"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LinksCreated,
			LinkRedirects,
			LinksCleaned,
			CacheOperations,
		)
	})
}
