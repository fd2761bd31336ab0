package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordOperation_LabelsByOutcome は操作・結果ラベルごとに集計されることを検証する。
func TestRecordOperation_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation("checkout", OutcomeSuccess)
	c.RecordOperation("checkout", OutcomeSuccess)
	c.RecordOperation("checkout", OutcomePartialFailure)
	c.RecordOperation("add_to_cart", OutcomeNoop)

	m := findMetric(t, reg, "courseman_operations_total", map[string]string{"operation": "checkout", "outcome": "success"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("operations_total{checkout,success} = %v, want 2", v)
	}
	m = findMetric(t, reg, "courseman_operations_total", map[string]string{"operation": "checkout", "outcome": "partial_failure"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("operations_total{checkout,partial_failure} = %v, want 1", v)
	}
	m = findMetric(t, reg, "courseman_operations_total", map[string]string{"operation": "add_to_cart", "outcome": "noop"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("operations_total{add_to_cart,noop} = %v, want 1", v)
	}
}

// TestRecordDanglingReference_IncrementsCounter は欠落参照カウンタが増加することを検証する。
func TestRecordDanglingReference_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDanglingReference("courses")
	c.RecordDanglingReference("courses")
	c.RecordDanglingReference("courses")

	m := findMetric(t, reg, "courseman_dangling_references_total", map[string]string{"collection": "courses"})
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("dangling_references_total = %v, want 3", v)
	}
}

func TestRecordAuditFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuditFailure("write")
	c.RecordAuditFailure("publish")

	m := findMetric(t, reg, "courseman_audit_failures_total", map[string]string{"stage": "write"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("audit_failures_total{write} = %v, want 1", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(409)

	m := findMetric(t, reg, "courseman_http_status_total", map[string]string{"status_code": "200"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", v)
	}
	m = findMetric(t, reg, "courseman_http_status_total", map[string]string{"status_code": "409"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("http_status_total{status_code=409} = %v, want 1", v)
	}
}

// TestRecordStoreLatency_ObservesHistogram はレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordStoreLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreLatency("checkout", 100*time.Millisecond)
	c.RecordStoreLatency("checkout", 2*time.Second)

	h := findMetric(t, reg, "courseman_store_latency_seconds", map[string]string{"operation": "checkout"}).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

func TestRecordLogsPurged_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogsPurged(10)
	c.RecordLogsPurged(5)

	m := findMetric(t, reg, "courseman_audit_logs_purged_total", nil)
	if v := m.GetCounter().GetValue(); v != 15 {
		t.Errorf("audit_logs_purged_total = %v, want 15", v)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation("checkout", OutcomeSuccess)
	c.RecordDanglingReference("courses")
	c.RecordHTTPStatus(200)
	c.RecordStoreLatency("checkout", 500*time.Millisecond)
	c.RecordLogsPurged(3)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"courseman_operations_total",
		"courseman_dangling_references_total",
		"courseman_http_status_total",
		"courseman_store_latency_seconds",
		"courseman_audit_logs_purged_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordLogsPurged(1)
	c2.RecordLogsPurged(2)

	if v := findMetric(t, reg1, "courseman_audit_logs_purged_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("reg1 logs_purged = %v, want 1", v)
	}
	if v := findMetric(t, reg2, "courseman_audit_logs_purged_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("reg2 logs_purged = %v, want 2", v)
	}
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	Discard.RecordOperation("x", OutcomeError)
	Discard.RecordDanglingReference("courses")
	Discard.RecordAuditFailure("write")
	Discard.RecordStoreLatency("x", time.Second)
	Discard.RecordHTTPStatus(500)
	Discard.RecordLogsPurged(1)
}
