package model

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// UnknownPod is recorded when a span carries no pod attribute. It is a regular
// pod value and takes part in node grouping like any other.
const UnknownPod = "unknown-pod"

const (
	UIEventAttribute        = "ui.event"
	ServiceVersionAttribute = "service.version"
)

// Span is a single timed unit of work. StartTime and Duration are in nanoseconds.
type Span struct {
	SpanID        string            `json:"spanId"`
	ParentSpanID  string            `json:"parentSpanId,omitempty"`
	TraceID       string            `json:"traceId"`
	OperationName string            `json:"operationName"`
	ServiceName   string            `json:"serviceName"`
	Namespace     string            `json:"namespace"`
	PodName       string            `json:"podName"`
	StartTime     int64             `json:"startTime"`
	Duration      int64             `json:"duration"`
	Status        Status            `json:"status"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

func (s Span) EndTime() int64 {
	return s.StartTime + s.Duration
}

func (s Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

func (s Span) IsError() bool {
	return s.Status == StatusError
}
