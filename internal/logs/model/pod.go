package model

import (
	"strings"
	"time"
)

// PodTarget names a pod whose logs take part in a correlation.
type PodTarget struct {
	Namespace   string `json:"namespace"`
	PodName     string `json:"podName"`
	ServiceName string `json:"serviceName,omitempty"`
}

// Window is a time range, both ends inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Buffered(buffer time.Duration) Window {
	return Window{Start: w.Start.Add(-buffer), End: w.End.Add(buffer)}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// PodLogBundle is the correlated log output of one pod. Logs follow the pod's
// container order, and lines keep the order they were received in.
type PodLogBundle struct {
	PodName          string   `json:"podName"`
	Namespace        string   `json:"namespace"`
	Logs             []string `json:"logs"`
	ErrorCount       int      `json:"errorCount"`
	HasTraceIDMatch  bool     `json:"hasTraceIdMatch"`
	SearchMatchCount int      `json:"searchMatchCount"`
	Containers       []string `json:"containers,omitempty"`
}

type Container struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// PodInfo is pod metadata used for search and display.
type PodInfo struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	IP         string            `json:"ip,omitempty"`
	Deployment string            `json:"deployment,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Containers []Container       `json:"containers,omitempty"`
	Phase      string            `json:"phase,omitempty"`
}

// DeploymentName returns the owning deployment, or the pod name without its
// replica set hash and pod suffix when the owner is unknown.
func (p PodInfo) DeploymentName() string {
	if p.Deployment != "" {
		return p.Deployment
	}
	parts := strings.Split(p.Name, "-")
	if len(parts) <= 2 {
		return p.Name
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

type DeploymentInfo struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Replicas  int32  `json:"replicas"`
	Ready     int32  `json:"ready"`
}
