package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/amitngm/openlens-sub001/internal/metrics"
	"github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
	"github.com/amitngm/openlens-sub001/internal/store"
	"github.com/amitngm/openlens-sub001/internal/write_buffer"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonV1 "go.opentelemetry.io/proto/otlp/common/v1"
	v1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

const (
	serviceNameAttribute = "service.name"
	namespaceAttribute   = "k8s.namespace.name"
	podNameAttribute     = "k8s.pod.name"
	unknownService       = "unknown-service"
)

type resourceInfo struct {
	serviceName string
	namespace   string
	podName     string
	version     string
}

// TraceServiceServerImpl receives OTLP trace exports and feeds the span store.
// When a write buffer is configured spans are also indexed into Elasticsearch.
type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	spanStore   store.SpanStore
	writeBuffer write_buffer.DatabaseWriteBuffer[model.Span]
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewTraceServiceServerImpl(
	spanStore store.SpanStore,
	writeBuffer write_buffer.DatabaseWriteBuffer[model.Span],
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *TraceServiceServerImpl {
	return &TraceServiceServerImpl{
		spanStore:   spanStore,
		writeBuffer: writeBuffer,
		metrics:     metrics,
		logger:      logger,
	}
}

func (tss *TraceServiceServerImpl) Export(
	_ context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	var received []model.Span
	for _, resourceSpan := range req.GetResourceSpans() {
		info := getResourceInfo(resourceSpan)
		if info.serviceName == unknownService {
			tss.logger.Warn("Service name not found in resource span")
		}
		received = append(received, getTypedSpans(resourceSpan, info)...)
	}
	if len(received) == 0 {
		return &protoTrace.ExportTraceServiceResponse{}, nil
	}

	added := tss.spanStore.Add(received...)
	tss.metrics.SpansReceived.Add(float64(added))
	tss.metrics.StoredSpans.Set(float64(tss.spanStore.SpanCount()))
	if tss.writeBuffer != nil {
		tss.writeBuffer.WriteToBuffer(received)
	}
	tss.logger.Debug("Received spans",
		zap.Int("received", len(received)),
		zap.Int("added", added),
	)
	return &protoTrace.ExportTraceServiceResponse{}, nil
}

func getResourceInfo(resourceSpan *v1.ResourceSpans) resourceInfo {
	info := resourceInfo{serviceName: unknownService, podName: model.UnknownPod}
	for _, attr := range resourceSpan.GetResource().GetAttributes() {
		value := attributeValue(attr.GetValue())
		if value == "" {
			continue
		}
		switch attr.GetKey() {
		case serviceNameAttribute:
			info.serviceName = value
		case namespaceAttribute:
			info.namespace = value
		case podNameAttribute:
			info.podName = value
		case model.ServiceVersionAttribute:
			info.version = value
		}
	}
	return info
}

func getTypedSpans(resourceSpan *v1.ResourceSpans, info resourceInfo) []model.Span {
	var typedSpans []model.Span
	for _, scopeSpan := range resourceSpan.GetScopeSpans() {
		for _, span := range scopeSpan.GetSpans() {
			typedSpans = append(typedSpans, getTypedSpan(span, info))
		}
	}
	return typedSpans
}

func getTypedSpan(span *v1.Span, info resourceInfo) model.Span {
	start := int64(span.GetStartTimeUnixNano())
	duration := int64(span.GetEndTimeUnixNano()) - start
	if duration < 0 {
		duration = 0
	}
	status := model.StatusSuccess
	if span.GetStatus().GetCode() == v1.Status_STATUS_CODE_ERROR {
		status = model.StatusError
	}
	attributes := getAttributes(span.GetAttributes())
	if info.version != "" {
		if _, ok := attributes[model.ServiceVersionAttribute]; !ok {
			attributes[model.ServiceVersionAttribute] = info.version
		}
	}

	return model.Span{
		SpanID:        hex.EncodeToString(span.GetSpanId()),
		ParentSpanID:  hex.EncodeToString(span.GetParentSpanId()),
		TraceID:       hex.EncodeToString(span.GetTraceId()),
		OperationName: span.GetName(),
		ServiceName:   info.serviceName,
		Namespace:     info.namespace,
		PodName:       info.podName,
		StartTime:     start,
		Duration:      duration,
		Status:        status,
		Attributes:    attributes,
	}
}

func getAttributes(attributes []*commonV1.KeyValue) map[string]string {
	typed := make(map[string]string, len(attributes))
	for _, attribute := range attributes {
		typed[attribute.GetKey()] = attributeValue(attribute.GetValue())
	}
	return typed
}

func attributeValue(value *commonV1.AnyValue) string {
	switch v := value.GetValue().(type) {
	case *commonV1.AnyValue_StringValue:
		return v.StringValue
	case *commonV1.AnyValue_IntValue:
		return strconv.FormatInt(v.IntValue, 10)
	case *commonV1.AnyValue_BoolValue:
		return strconv.FormatBool(v.BoolValue)
	case *commonV1.AnyValue_DoubleValue:
		return strconv.FormatFloat(v.DoubleValue, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
