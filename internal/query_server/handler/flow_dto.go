package handler

import (
	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
)

// FlowListResponseDTO represents the flows matching a query
// @swagger:model FlowListResponseDTO
type FlowListResponseDTO struct {
	Flows []flowModel.FlowGraph `json:"flows"`
}

// OperationDTO names a root operation seen in the collected traces
// @swagger:model OperationDTO
type OperationDTO struct {
	Name string `json:"name"`
}

// OperationsResponseDTO represents the known root operations
// @swagger:model OperationsResponseDTO
type OperationsResponseDTO struct {
	Operations []OperationDTO `json:"operations"`
}

// CollectRequestDTO asks for spans of a namespace to be pulled into the store
// @swagger:model CollectRequestDTO
type CollectRequestDTO struct {
	Namespace string `json:"namespace"`
}

// PodTargetDTO names a pod whose logs should be correlated
// @swagger:model PodTargetDTO
type PodTargetDTO struct {
	Namespace   string `json:"namespace"`
	PodName     string `json:"podName"`
	ServiceName string `json:"serviceName,omitempty"`
}

// FlowLogsRequestDTO represents a log correlation request for a flow
// @swagger:model FlowLogsRequestDTO
type FlowLogsRequestDTO struct {
	// Optional free text counted in every pod's logs
	SearchTerm string `json:"searchTerm,omitempty"`
	// Optional restriction to the flow's pods in this namespace
	Namespace string `json:"namespace,omitempty"`
	// Optional explicit pods, replacing the pods taken from the flow
	Pods []PodTargetDTO `json:"pods,omitempty"`
}

// WindowDTO is a time range in nanoseconds since the epoch
// @swagger:model WindowDTO
type WindowDTO struct {
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// FlowLogsResponseDTO represents the correlated logs of a flow, most relevant pod first
// @swagger:model FlowLogsResponseDTO
type FlowLogsResponseDTO struct {
	TraceID string                  `json:"traceId"`
	Window  WindowDTO               `json:"window"`
	Pods    []logModel.PodLogBundle `json:"pods"`
}

// SearchRequestDTO represents a search over flows and pods
// @swagger:model SearchRequestDTO
type SearchRequestDTO struct {
	Term      string `json:"term"`
	Namespace string `json:"namespace,omitempty"`
	// Optional log content keyed by pod name, searched along with pod metadata
	Logs map[string]string `json:"logs,omitempty"`
}

// SearchResponseDTO represents the flows and pods matching a search
// @swagger:model SearchResponseDTO
type SearchResponseDTO struct {
	MatchingFlows []flowModel.FlowGraph `json:"matchingFlows"`
	MatchingPods  []logModel.PodInfo    `json:"matchingPods"`
}

// DeploymentsResponseDTO represents the deployments of a namespace
// @swagger:model DeploymentsResponseDTO
type DeploymentsResponseDTO struct {
	Deployments []logModel.DeploymentInfo `json:"deployments"`
}

// HealthResponseDTO reports whether the server and its tracing backend are ready
// @swagger:model HealthResponseDTO
type HealthResponseDTO struct {
	Status  string `json:"status"`
	Tracing string `json:"tracing"`
}

// SnapshotResponseDTO represents the latest background refresh
// @swagger:model SnapshotResponseDTO
type SnapshotResponseDTO struct {
	// The namespace currently refreshed, empty when refresh is suspended
	Namespace    string                           `json:"namespace"`
	Flows        []flowModel.FlowGraph            `json:"flows"`
	Dependencies flowModel.ServiceDependencyGraph `json:"dependencies"`
}

// NamespaceRequestDTO selects the namespace refreshed in the background
// @swagger:model NamespaceRequestDTO
type NamespaceRequestDTO struct {
	Namespace string `json:"namespace"`
}

// SessionRequestDTO represents a keystroke in the interactive search
// @swagger:model SessionRequestDTO
type SessionRequestDTO struct {
	Namespace string `json:"namespace"`
	Term      string `json:"term"`
}
