package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 变更流事件计数
	FeedEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Change feed events received, by table and event type",
		},
		[]string{"table", "event_type"},
	)

	// 无法解码或被丢弃的变更流消息
	FeedDroppedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_dropped_total",
			Help: "Change feed messages dropped before reconciliation",
		},
		[]string{"reason"}, // reason: malformed, unwatched, duplicate
	)

	// 变更流订阅状态（1 = subscribed）
	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "Whether the change feed subscription is currently live",
		},
	)

	// 缓存失效计数
	CacheInvalidationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_invalidations_total",
			Help: "Query cache invalidations, by query key and result",
		},
		[]string{"query_key", "status"},
	)

	// 通知分发决策
	DispatchDecisionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Notification dispatch decisions, by category and decision",
		},
		[]string{"category", "decision"},
	)

	// 通知展示失败
	DisplayFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_display_failures_total",
			Help: "Notification display failures, by stage",
		},
		[]string{"stage"}, // stage: permission, show, panic
	)

	// 跨实例广播
	BroadcastCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Broadcast bus deliveries, by event name and path",
		},
		[]string{"event", "path"}, // path: local, remote, publish_failed
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordFeedEvent 记录一条变更流事件
func RecordFeedEvent(table, eventType string) {
	FeedEventCount.WithLabelValues(table, eventType).Inc()
}

// RecordFeedDropped 记录被丢弃的变更流消息
func RecordFeedDropped(reason string) {
	FeedDroppedCount.WithLabelValues(reason).Inc()
}

// SetFeedConnected 更新订阅状态
func SetFeedConnected(connected bool) {
	if connected {
		FeedConnected.Set(1)
		return
	}
	FeedConnected.Set(0)
}

// RecordCacheInvalidation 记录缓存失效结果
func RecordCacheInvalidation(queryKey string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CacheInvalidationCount.WithLabelValues(queryKey, status).Inc()
}

// RecordDispatchDecision 记录分发决策
func RecordDispatchDecision(category, decision string) {
	DispatchDecisionCount.WithLabelValues(category, decision).Inc()
}

// RecordDisplayFailure 记录展示失败
func RecordDisplayFailure(stage string) {
	DisplayFailureCount.WithLabelValues(stage).Inc()
}

// RecordBroadcast 记录广播投递
func RecordBroadcast(event, path string) {
	BroadcastCount.WithLabelValues(event, path).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
