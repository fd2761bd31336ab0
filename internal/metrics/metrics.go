// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthTimeout は/healthでのストア疎通確認のタイムアウト。
const healthTimeout = 3 * time.Second

// 操作結果のラベル値
const (
	OutcomeSuccess        = "success"
	OutcomeNoop           = "noop"
	OutcomeError          = "error"
	OutcomePartialFailure = "partial_failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワークフロー、参照解決、監査ログ、ワーカーから利用する。
type MetricsCollector interface {
	RecordOperation(operation, outcome string)
	RecordDanglingReference(collection string)
	RecordAuditFailure(stage string)
	RecordStoreLatency(operation string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordLogsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations   *prometheus.CounterVec
	dangling     *prometheus.CounterVec
	auditFail    *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	httpStatus   *prometheus.CounterVec
	logsPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_operations_total",
			Help: "ワークフロー操作の実行数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		dangling: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_dangling_references_total",
			Help: "参照先が存在しなかったIDの数",
		}, []string{"collection"}),
		auditFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_audit_failures_total",
			Help: "監査ログの書き込み・配信に失敗した数",
		}, []string{"stage"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courseman_store_latency_seconds",
			Help:    "ストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courseman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		logsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courseman_audit_logs_purged_total",
			Help: "保持期間切れで削除された監査ログの数",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.dangling,
		c.auditFail,
		c.storeLatency,
		c.httpStatus,
		c.logsPurged,
	)

	return c
}

// RecordOperation は操作の結果を記録する。
func (c *Collector) RecordOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordDanglingReference は参照先が見つからなかったIDを記録する。
func (c *Collector) RecordDanglingReference(collection string) {
	c.dangling.WithLabelValues(collection).Inc()
}

// RecordAuditFailure は監査ログの失敗を記録する。stageは "write" または "publish"。
func (c *Collector) RecordAuditFailure(stage string) {
	c.auditFail.WithLabelValues(stage).Inc()
}

// RecordStoreLatency は操作のレイテンシを記録する。
func (c *Collector) RecordStoreLatency(operation string, duration time.Duration) {
	c.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLogsPurged は削除した監査ログの件数を記録する。
func (c *Collector) RecordLogsPurged(count int) {
	c.logsPurged.Add(float64(count))
}

// Discard は何も記録しないMetricsCollector。
var Discard MetricsCollector = discard{}

type discard struct{}

func (discard) RecordOperation(string, string) {}
func (discard) RecordDanglingReference(string) {}
func (discard) RecordAuditFailure(string) {}
func (discard) RecordStoreLatency(string, time.Duration) {}
func (discard) RecordHTTPStatus(int) {}
func (discard) RecordLogsPurged(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はAPIサーバーを持たないプロセス（worker）向けに
// /metrics と /health を提供するHTTPハンドラーを返す。
// healthがエラーを返す間、/health は503を返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer, health func(ctx context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if health != nil {
			if err := health(ctx); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
