package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/docstore/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

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

// pointAttrs returns the attributes of the single data point of m.
func pointAttrs(t *testing.T, m *metricdata.Metrics) attribute.Set {
	t.Helper()
	switch data := m.Data.(type) {
	case metricdata.Histogram[float64]:
		if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
			t.Fatalf("%s: want one point with count 1, got %+v", m.Name, data.DataPoints)
		}
		return data.DataPoints[0].Attributes
	case metricdata.Sum[int64]:
		if len(data.DataPoints) != 1 || data.DataPoints[0].Value != 1 {
			t.Fatalf("%s: want one point with value 1, got %+v", m.Name, data.DataPoints)
		}
		return data.DataPoints[0].Attributes
	default:
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
		return attribute.Set{}
	}
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		name       string
		op         func(t *testing.T) mw.Op
		err        error
		wantStatus string
		wantInTx   bool
	}{
		{"success in tx", newTestOp, nil, "ok", true},
		{"error in tx", newTestOp, errors.New("boom"), "error", true},
		{"stand-alone", func(*testing.T) mw.Op {
			return mw.Op{Name: mw.OpFindMany, Collection: "posts"}
		}, nil, "ok", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))
			op := tt.op(t)

			err := m(context.Background(), op, func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("middleware returned %v, want %v", err, tt.err)
			}

			rm := collectMetrics(t, reader)
			for _, name := range []string{"docstore.operation.duration", "docstore.operation.calls"} {
				metric := findMetric(rm, name)
				if metric == nil {
					t.Fatalf("%s not recorded", name)
				}
				attrs := pointAttrs(t, metric)

				want := map[attribute.Key]attribute.Value{
					"op":         attribute.StringValue(op.Name),
					"collection": attribute.StringValue("posts"),
					"status":     attribute.StringValue(tt.wantStatus),
					"in_tx":      attribute.BoolValue(tt.wantInTx),
				}
				for key, v := range want {
					got, ok := attrs.Value(key)
					if !ok {
						t.Errorf("%s: missing attribute %q", name, key)
						continue
					}
					if got != v {
						t.Errorf("%s: %s = %v, want %v", name, key, got.Emit(), v.Emit())
					}
				}
			}
		})
	}
}
