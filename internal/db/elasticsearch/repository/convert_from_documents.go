package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
)

func ConvertFromDocuments(docs []map[string]interface{}) ([]model.Span, error) {
	spans := make([]model.Span, 0, len(docs))
	for _, doc := range docs {
		span := model.Span{}

		var err error
		if span.SpanID, err = requiredString(doc, "spanId"); err != nil {
			return nil, err
		}
		if span.TraceID, err = requiredString(doc, "traceId"); err != nil {
			return nil, err
		}
		if span.StartTime, err = requiredInt(doc, "startTime"); err != nil {
			return nil, err
		}
		if span.Duration, err = requiredInt(doc, "duration"); err != nil {
			return nil, err
		}
		span.ParentSpanID = optionalString(doc, "parentSpanId")
		span.OperationName = optionalString(doc, "operationName")
		span.ServiceName = optionalString(doc, "serviceName")
		span.Namespace = optionalString(doc, "namespace")
		span.PodName = optionalString(doc, "podName")
		if span.PodName == "" {
			span.PodName = model.UnknownPod
		}
		span.Status = model.Status(optionalString(doc, "status"))
		if span.Status == "" {
			span.Status = model.StatusSuccess
		}
		if attributes, ok := doc["attributes"].(map[string]interface{}); ok {
			span.Attributes = typeAttributes(attributes)
		}

		spans = append(spans, span)
	}
	return spans, nil
}

func requiredString(doc map[string]interface{}, field string) (string, error) {
	value, ok := doc[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("failed to convert %s to string %v", field, doc[field])
	}
	return value, nil
}

func optionalString(doc map[string]interface{}, field string) string {
	value, _ := doc[field].(string)
	return value
}

func requiredInt(doc map[string]interface{}, field string) (int64, error) {
	switch value := doc[field].(type) {
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to convert %s to int64 %v: %w", field, value, err)
		}
		return parsed, nil
	case float64:
		return int64(value), nil
	case string:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to convert %s to int64 %v: %w", field, value, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("failed to convert %s to int64 %v", field, doc[field])
	}
}

func typeAttributes(attributes map[string]interface{}) map[string]string {
	typedAttributes := make(map[string]string, len(attributes))
	for k, v := range attributes {
		typedAttributes[k] = fmt.Sprintf("%v", v)
	}
	return typedAttributes
}
