package server

import (
	"context"
	"testing"

	"github.com/amitngm/openlens-sub001/internal/metrics"
	"github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
	"github.com/amitngm/openlens-sub001/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonV1 "go.opentelemetry.io/proto/otlp/common/v1"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

type capturingBuffer struct {
	values []model.Span
}

func (c *capturingBuffer) WriteToBuffer(values []model.Span) {
	c.values = append(c.values, values...)
}

func (c *capturingBuffer) Flush(context.Context) error {
	return nil
}

func TestTraceServiceServerImpl_Export(t *testing.T) {
	t.Run("should map resource and span fields into the span store", func(t *testing.T) {
		spanStore := store.NewSpanStoreImpl(0)
		buffer := &capturingBuffer{}
		m := metrics.NewMetrics(prometheus.NewRegistry())
		srv := NewTraceServiceServerImpl(spanStore, buffer, m, zap.NewNop())

		req := &protoTrace.ExportTraceServiceRequest{
			ResourceSpans: []*v1.ResourceSpans{
				{
					Resource: &resourceV1.Resource{Attributes: []*commonV1.KeyValue{
						stringAttr("service.name", "checkout"),
						stringAttr("k8s.namespace.name", "shop"),
						stringAttr("k8s.pod.name", "checkout-7d9f-abcde"),
						stringAttr("service.version", "1.4.2"),
					}},
					ScopeSpans: []*v1.ScopeSpans{{Spans: []*v1.Span{
						{
							TraceId:           []byte{0xab, 0xcd},
							SpanId:            []byte{0x01},
							Name:              "POST /checkout",
							StartTimeUnixNano: 1_000,
							EndTimeUnixNano:   4_000,
							Attributes: []*commonV1.KeyValue{
								stringAttr("ui.event", "click:pay"),
								{Key: "http.status_code", Value: &commonV1.AnyValue{Value: &commonV1.AnyValue_IntValue{IntValue: 502}}},
							},
							Status: &v1.Status{Code: v1.Status_STATUS_CODE_ERROR},
						},
					}}},
				},
			},
		}

		_, err := srv.Export(context.Background(), req)
		require.NoError(t, err)

		spans := spanStore.Trace("abcd")
		require.Len(t, spans, 1)
		span := spans[0]
		assert.Equal(t, "01", span.SpanID)
		assert.Equal(t, "", span.ParentSpanID)
		assert.Equal(t, "checkout", span.ServiceName)
		assert.Equal(t, "shop", span.Namespace)
		assert.Equal(t, "checkout-7d9f-abcde", span.PodName)
		assert.Equal(t, int64(1_000), span.StartTime)
		assert.Equal(t, int64(3_000), span.Duration)
		assert.Equal(t, model.StatusError, span.Status)
		assert.Equal(t, "502", span.Attributes["http.status_code"])
		assert.Equal(t, "1.4.2", span.Attributes["service.version"])
		assert.Len(t, buffer.values, 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SpansReceived))
	})

	t.Run("should default missing pod and service names", func(t *testing.T) {
		spanStore := store.NewSpanStoreImpl(0)
		srv := NewTraceServiceServerImpl(spanStore, nil, metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

		req := &protoTrace.ExportTraceServiceRequest{
			ResourceSpans: []*v1.ResourceSpans{{
				Resource: &resourceV1.Resource{},
				ScopeSpans: []*v1.ScopeSpans{{Spans: []*v1.Span{
					{TraceId: []byte{0x01}, SpanId: []byte{0x02}, ParentSpanId: []byte{0x03}},
				}}},
			}},
		}
		_, err := srv.Export(context.Background(), req)
		require.NoError(t, err)

		spans := spanStore.Trace("01")
		require.Len(t, spans, 1)
		assert.Equal(t, model.UnknownPod, spans[0].PodName)
		assert.Equal(t, "unknown-service", spans[0].ServiceName)
		assert.Equal(t, "03", spans[0].ParentSpanID)
		assert.Equal(t, model.StatusSuccess, spans[0].Status)
	})
}

func stringAttr(key, value string) *commonV1.KeyValue {
	return &commonV1.KeyValue{Key: key, Value: &commonV1.AnyValue{Value: &commonV1.AnyValue_StringValue{StringValue: value}}}
}
