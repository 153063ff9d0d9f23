package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goRemote "github.com/MrEthical07/goRemote"
)

type fakeSource struct {
	snapshot goRemote.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goRemote.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goRemote.MetricsSnapshot{
			Counters:   map[goRemote.MetricID]uint64{},
			Histograms: map[goRemote.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderNilExporter(t *testing.T) {
	var exp *Exporter
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goRemote.MetricsSnapshot{
			Counters: map[goRemote.MetricID]uint64{
				goRemote.MetricReconnect: 7,
			},
			Histograms: map[goRemote.MetricID][]uint64{
				goRemote.MetricOperationLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE goremote_reconnect_total counter",
		"goremote_reconnect_total 7",
		"goremote_ssh_connect_success_total 0",
		"goremote_operation_latency_seconds_bucket{le=\"0.01\"} 1",
		"goremote_operation_latency_seconds_bucket{le=\"+Inf\"} 36",
		"goremote_operation_latency_seconds_count 36",
		"goremote_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsDisabledHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goRemote.MetricsSnapshot{
			Counters: map[goRemote.MetricID]uint64{goRemote.MetricPoolHit: 1},
		},
	})

	if out := exp.Render(); strings.Contains(out, "goremote_operation_latency_seconds") {
		t.Fatalf("histogram should be absent when not collected:\n%s", out)
	}
}

func TestRenderFromEngine(t *testing.T) {
	e, err := goRemote.New().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	if _, err := e.SSHExec(t.Context(), "missing", "true", 0); err == nil {
		t.Fatal("expected unknown session error")
	}

	out := New(e).Render()
	if !strings.Contains(out, "goremote_session_unknown_total 1") {
		t.Fatalf("expected unknown session counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goRemote.MetricsSnapshot{
			Counters: map[goRemote.MetricID]uint64{goRemote.MetricPoolHit: 1},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: goRemote.MetricsSnapshot{
			Counters: map[goRemote.MetricID]uint64{
				goRemote.MetricSSHConnectSuccess: 1000,
				goRemote.MetricSSHConnectFailure: 40,
				goRemote.MetricPoolHit:           800,
				goRemote.MetricReconnect:         10,
				goRemote.MetricSessionExpired:    20,
			},
			Histograms: map[goRemote.MetricID][]uint64{
				goRemote.MetricOperationLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
