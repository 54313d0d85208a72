package bootstrapper

const SpanIndexName = "span_index"

var keyword = map[string]interface{}{"type": "keyword"}

var spanIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"spanId":        keyword,
			"parentSpanId":  keyword,
			"traceId":       keyword,
			"operationName": keyword,
			"serviceName":   keyword,
			"namespace":     keyword,
			"podName":       keyword,
			"status":        keyword,
			"startTime": map[string]interface{}{
				"type": "long",
			},
			"duration": map[string]interface{}{
				"type": "long",
			},
			"attributes": map[string]interface{}{
				"type": "flattened",
			},
		},
	},
}
