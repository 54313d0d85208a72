package model

import "github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"

type NodeStatus string

const (
	NodeHealthy  NodeStatus = "healthy"
	NodeDegraded NodeStatus = "degraded"
	NodeDown     NodeStatus = "down"
)

// FlowGraph is the call graph of a single trace.
type FlowGraph struct {
	FlowID        string       `json:"flowId"`
	TraceID       string       `json:"traceId"`
	OperationName string       `json:"operationName"`
	UIEvent       string       `json:"uiEvent,omitempty"`
	StartTime     int64        `json:"startTime"`
	EndTime       int64        `json:"endTime"`
	Duration      int64        `json:"duration"`
	Nodes         []FlowNode   `json:"nodes"`
	Edges         []FlowEdge   `json:"edges"`
	SpanSequence  []model.Span `json:"spanSequence"`
	Metadata      FlowMetadata `json:"metadata"`
}

type FlowMetadata struct {
	TotalSpans          int                 `json:"totalSpans"`
	ServiceCount        int                 `json:"serviceCount"`
	ErrorCount          int                 `json:"errorCount"`
	Namespaces          []string            `json:"namespaces"`
	ServicesByNamespace map[string][]string `json:"servicesByNamespace"`
}

// ServiceRef identifies a pod running a service. Pod is empty once pods are
// collapsed into their service.
type ServiceRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Pod       string `json:"pod,omitempty"`
	Version   string `json:"version,omitempty"`
}

type NodeMetrics struct {
	RequestCount int     `json:"requestCount"`
	ErrorCount   int     `json:"errorCount"`
	AvgLatency   float64 `json:"avgLatency"`
	P50          int64   `json:"p50"`
	P95          int64   `json:"p95"`
	P99          int64   `json:"p99"`
}

type FlowNode struct {
	ID      string      `json:"id"`
	Service ServiceRef  `json:"service"`
	Metrics NodeMetrics `json:"metrics"`
	Status  NodeStatus  `json:"status"`
}

type FlowEdge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	CallCount  int     `json:"callCount"`
	ErrorCount int     `json:"errorCount"`
	ErrorRate  float64 `json:"errorRate"`
	AvgLatency float64 `json:"avgLatency"`
}

// FlowQuery narrows a flow listing. Zero values mean no constraint.
type FlowQuery struct {
	Operation string
	Namespace string
	StartTime int64
	EndTime   int64
	Limit     int
}

func NodeID(namespace, service, pod string) string {
	return namespace + "/" + service + "/" + pod
}

func ServiceID(namespace, service string) string {
	return namespace + "/" + service
}

func StatusFor(requests, errors int) NodeStatus {
	switch {
	case requests > 0 && errors == requests:
		return NodeDown
	case errors > 0:
		return NodeDegraded
	default:
		return NodeHealthy
	}
}
