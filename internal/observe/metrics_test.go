package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CompletionDuration.Record(ctx, 1.5)
	m.ToolDispatchDuration.Record(ctx, 0.05)
	m.TurnDuration.Record(ctx, 4.2)

	rm := collect(t, reader)
	for _, name := range []string{
		"pharmagent.completion.duration",
		"pharmagent.tool_dispatch.duration",
		"pharmagent.turn.duration",
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %s not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %s is not a float64 histogram", name)
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
			t.Fatalf("metric %s: unexpected data points %+v", name, hist.DataPoints)
		}
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "check_stock_availability", "ok")
	m.RecordToolCall(ctx, "check_stock_availability", "ok")
	m.RecordToolCall(ctx, "no_such_tool", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "pharmagent.tool.calls")
	if met == nil {
		t.Fatal("tool.calls metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("tool.calls is not an int64 sum")
	}

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		tool, _ := dp.Attributes.Value(attribute.Key("tool"))
		counts[tool.AsString()] += dp.Value
	}
	if counts["check_stock_availability"] != 2 || counts["no_such_tool"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestRecordProviderRequestErrorIncrementsBothCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "ok")
	m.RecordProviderRequest(ctx, "openai", "error")

	rm := collect(t, reader)

	reqs := findMetric(rm, "pharmagent.provider.requests")
	if reqs == nil {
		t.Fatal("provider.requests metric not found")
	}
	var total int64
	for _, dp := range reqs.Data.(metricdata.Sum[int64]).DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Fatalf("provider.requests total = %d, want 2", total)
	}

	errs := findMetric(rm, "pharmagent.provider.errors")
	if errs == nil {
		t.Fatal("provider.errors metric not found")
	}
	var errTotal int64
	for _, dp := range errs.Data.(metricdata.Sum[int64]).DataPoints {
		errTotal += dp.Value
	}
	if errTotal != 1 {
		t.Fatalf("provider.errors total = %d, want 1", errTotal)
	}
}

func TestActiveStreamsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "pharmagent.active_streams")
	if met == nil {
		t.Fatal("active_streams metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("active_streams = %+v, want 1", sum.DataPoints)
	}
}
