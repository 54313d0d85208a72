package kube

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const maxLineSize = 1024 * 1024

// Client reads pods, deployments and container logs straight from the Kubernetes API.
type Client struct {
	clientset kubernetes.Interface
	logger    *zap.Logger
}

func NewClient(clientset kubernetes.Interface, logger *zap.Logger) *Client {
	return &Client{clientset: clientset, logger: logger}
}

// NewClientset uses the in-cluster config when kubeconfig is empty.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}

func (c *Client) ListContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	p, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", namespace, pod, source.ErrPodNotFound)
		}
		return nil, fmt.Errorf("failed to get pod %s/%s: %w", namespace, pod, err)
	}
	names := make([]string, 0, len(p.Spec.Containers))
	for _, container := range p.Spec.Containers {
		names = append(names, container.Name)
	}
	return names, nil
}

func (c *Client) FetchLogs(ctx context.Context, namespace, pod, container string, tailLines int) ([]string, error) {
	// kubelet timestamps give plain text lines a time to filter on
	opts := &corev1.PodLogOptions{Container: container, Timestamps: true}
	if tailLines > 0 {
		tail := int64(tailLines)
		opts.TailLines = &tail
	}

	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	var lines []string
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read logs for %s/%s: %w", namespace, pod, err)
	}
	return lines, nil
}

func (c *Client) ListPods(ctx context.Context, namespace string) ([]model.PodInfo, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	pods := make([]model.PodInfo, 0, len(list.Items))
	for _, p := range list.Items {
		pods = append(pods, toPodInfo(p))
	}
	return pods, nil
}

func (c *Client) ListDeployments(ctx context.Context, namespace string) ([]model.DeploymentInfo, error) {
	list, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments in %s: %w", namespace, err)
	}
	deployments := make([]model.DeploymentInfo, 0, len(list.Items))
	for _, d := range list.Items {
		var replicas int32
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		deployments = append(deployments, model.DeploymentInfo{
			Name:      d.Name,
			Namespace: d.Namespace,
			Replicas:  replicas,
			Ready:     d.Status.ReadyReplicas,
		})
	}
	return deployments, nil
}

func toPodInfo(p corev1.Pod) model.PodInfo {
	containers := make([]model.Container, 0, len(p.Spec.Containers))
	for _, c := range p.Spec.Containers {
		containers = append(containers, model.Container{Name: c.Name, Image: c.Image})
	}
	return model.PodInfo{
		Name:       p.Name,
		Namespace:  p.Namespace,
		IP:         p.Status.PodIP,
		Deployment: deploymentFromOwners(p.OwnerReferences),
		Labels:     p.Labels,
		Containers: containers,
		Phase:      string(p.Status.Phase),
	}
}

// deploymentFromOwners strips the pod template hash from an owning ReplicaSet.
func deploymentFromOwners(owners []metav1.OwnerReference) string {
	for _, owner := range owners {
		if owner.Kind != "ReplicaSet" {
			continue
		}
		if i := strings.LastIndex(owner.Name, "-"); i > 0 {
			return owner.Name[:i]
		}
		return owner.Name
	}
	return ""
}

var _ source.ClusterSource = (*Client)(nil)
