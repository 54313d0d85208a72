// Package kubeproxy reads pods and logs through an HTTP proxy in front of the Kubernetes API.
package kubeproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/logs/source"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// listingTTL bounds how long a namespace listing answers container lookups.
const listingTTL = 5 * time.Second

type podListing struct {
	pods      []model.PodInfo
	fetchedAt time.Time
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	listingGroup singleflight.Group
	mu           sync.Mutex
	listings     map[string]podListing
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
		listings:   make(map[string]podListing),
	}
}

type podsResponse struct {
	Pods []model.PodInfo `json:"pods"`
}

type deploymentsResponse struct {
	Deployments []model.DeploymentInfo `json:"deployments"`
}

type logsResponse struct {
	Success bool   `json:"success"`
	Logs    string `json:"logs"`
	Error   string `json:"error,omitempty"`
}

func (c *Client) doRequest(ctx context.Context, apiPath string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + apiPath)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kubernetes proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, source.ErrPodNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from kubernetes proxy: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *Client) ListPods(ctx context.Context, namespace string) ([]model.PodInfo, error) {
	body, err := c.doRequest(ctx, "/k8s/pods", url.Values{"namespace": []string{namespace}})
	if err != nil {
		return nil, err
	}
	var res podsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse pods response: %w", err)
	}
	return res.Pods, nil
}

// ListContainers resolves the pod from the namespace listing since the proxy has
// no single pod endpoint. Concurrent lookups in one namespace share a listing.
func (c *Client) ListContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	pods, err := c.namespacePods(ctx, namespace)
	if err != nil {
		return nil, err
	}
	for _, p := range pods {
		if p.Name != pod {
			continue
		}
		names := make([]string, 0, len(p.Containers))
		for _, container := range p.Containers {
			names = append(names, container.Name)
		}
		return names, nil
	}
	return nil, fmt.Errorf("%s/%s: %w", namespace, pod, source.ErrPodNotFound)
}

func (c *Client) namespacePods(ctx context.Context, namespace string) ([]model.PodInfo, error) {
	if pods, ok := c.freshListing(namespace); ok {
		return pods, nil
	}

	result, err, _ := c.listingGroup.Do(namespace, func() (interface{}, error) {
		if pods, ok := c.freshListing(namespace); ok {
			return pods, nil
		}
		pods, err := c.ListPods(ctx, namespace)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.listings[namespace] = podListing{pods: pods, fetchedAt: c.now()}
		c.mu.Unlock()
		return pods, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.PodInfo), nil
}

func (c *Client) freshListing(namespace string) ([]model.PodInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	listing, ok := c.listings[namespace]
	if !ok || c.now().Sub(listing.fetchedAt) >= listingTTL {
		return nil, false
	}
	return listing.pods, true
}

func (c *Client) FetchLogs(ctx context.Context, namespace, pod, container string, tailLines int) ([]string, error) {
	params := url.Values{}
	if tailLines > 0 {
		params.Set("tailLines", strconv.Itoa(tailLines))
	} else {
		params.Set("tailLines", "all")
	}
	if container != "" {
		params.Set("container", container)
	}

	apiPath := fmt.Sprintf("/k8s/pods/%s/%s/logs", url.PathEscape(namespace), url.PathEscape(pod))
	body, err := c.doRequest(ctx, apiPath, params)
	if err != nil {
		c.logger.Debug("Failed to fetch logs",
			zap.String("namespace", namespace),
			zap.String("pod", pod),
			zap.String("container", container),
			zap.Error(err),
		)
		return nil, err
	}
	var res logsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse logs response: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("%s/%s %q: %w: %s", namespace, pod, container, ErrLogFetchFailed, res.Error)
	}
	return splitLines(res.Logs), nil
}

func (c *Client) ListDeployments(ctx context.Context, namespace string) ([]model.DeploymentInfo, error) {
	body, err := c.doRequest(ctx, "/k8s/deployments", url.Values{"namespace": []string{namespace}})
	if err != nil {
		return nil, err
	}
	var res deploymentsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse deployments response: %w", err)
	}
	return res.Deployments, nil
}

func splitLines(logs string) []string {
	trimmed := strings.TrimRight(logs, "\n")
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

var _ source.ClusterSource = (*Client)(nil)

var (
	ErrLogFetchFailed = errors.New("kubernetes proxy reported a failed log fetch")
)
