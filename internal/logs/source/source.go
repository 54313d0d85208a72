package source

import (
	"context"
	"errors"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
)

// AllLines requests the complete log instead of a tail.
const AllLines = 0

type PodLogSource interface {
	// ListContainers returns the container names of a pod. An empty list means the
	// pod's default container should be used.
	ListContainers(ctx context.Context, namespace, pod string) ([]string, error)
	// FetchLogs returns log lines in the order received. An empty container selects
	// the default container, tailLines <= 0 fetches everything.
	FetchLogs(ctx context.Context, namespace, pod, container string, tailLines int) ([]string, error)
}

type PodLister interface {
	ListPods(ctx context.Context, namespace string) ([]model.PodInfo, error)
}

type DeploymentLister interface {
	ListDeployments(ctx context.Context, namespace string) ([]model.DeploymentInfo, error)
}

// ClusterSource is everything the engine reads from the cluster.
type ClusterSource interface {
	PodLogSource
	PodLister
	DeploymentLister
}

var (
	ErrPodNotFound = errors.New("pod not found")
)
