// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部呼び出しの結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordUpstreamCall(service, outcome string, duration time.Duration)
	RecordCrisisDetected()
	RecordSyncFailure(store string)
	RecordHTTPStatus(statusCode int)
	RecordSummariesWritten(count int)
	RecordStubsRepaired(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	crisisDetected   prometheus.Counter
	syncFailures     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	summariesWritten prometheus.Counter
	stubsRepaired    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unwind_upstream_calls_total",
			Help: "外部API呼び出しの合計数（サービス・結果別）",
		}, []string{"service", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unwind_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		crisisDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unwind_crisis_detected_total",
			Help: "危機キーワードを検出したメッセージの合計数",
		}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unwind_identity_sync_failures_total",
			Help: "ユーザー同期で失敗したデータストア別の合計数",
		}, []string{"store"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unwind_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		summariesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unwind_session_summaries_written_total",
			Help: "ワーカーが作成したセッション要約の合計数",
		}),
		stubsRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unwind_user_stubs_repaired_total",
			Help: "整合ジョブが補完したユーザースタブの合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamLatency,
		c.crisisDetected,
		c.syncFailures,
		c.httpStatus,
		c.summariesWritten,
		c.stubsRepaired,
	)

	return c
}

// RecordUpstreamCall は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamCall(service, outcome string, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(service, outcome).Inc()
	c.upstreamLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCrisisDetected は危機キーワード検出を記録する。
func (c *Collector) RecordCrisisDetected() {
	c.crisisDetected.Inc()
}

// RecordSyncFailure はユーザー同期の失敗をストア別に記録する。
func (c *Collector) RecordSyncFailure(store string) {
	c.syncFailures.WithLabelValues(store).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSummariesWritten は作成した要約数を記録する。
func (c *Collector) RecordSummariesWritten(count int) {
	c.summariesWritten.Add(float64(count))
}

// RecordStubsRepaired は補完したスタブ数を記録する。
func (c *Collector) RecordStubsRepaired(count int) {
	c.stubsRepaired.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordUpstreamCall(string, string, time.Duration) {}
func (Nop) RecordCrisisDetected()                             {}
func (Nop) RecordSyncFailure(string)                          {}
func (Nop) RecordHTTPStatus(int)                              {}
func (Nop) RecordSummariesWritten(int)                        {}
func (Nop) RecordStubsRepaired(int)                           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewStatusMiddleware はレスポンスのステータスコードをCollectorに記録するミドルウェアを返す。
func NewStatusMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.status)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
