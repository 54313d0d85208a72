// Package tracing is an HTTP client for a remote flow source, such as another
// instance's query server.
package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	"go.uber.org/zap"
)

const DefaultHealthTimeout = 5 * time.Second

const readyStatus = "ready"

type Client struct {
	baseURL       string
	httpClient    *http.Client
	healthTimeout time.Duration
	logger        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, healthTimeout time.Duration, logger *zap.Logger) *Client {
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		healthTimeout: healthTimeout,
		logger:        logger,
	}
}

type flowsResponse struct {
	Flows []model.FlowGraph `json:"flows"`
}

type operation struct {
	Name string `json:"name"`
}

type operationsResponse struct {
	Operations []operation `json:"operations"`
}

type collectRequest struct {
	Namespace string `json:"namespace"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	apiPath string,
	params url.Values,
	payload interface{},
) ([]byte, error) {
	u, err := url.Parse(c.baseURL + apiPath)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrBackendUnavailable
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status code from tracing backend: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

func (c *Client) GetFlows(ctx context.Context, query model.FlowQuery) ([]model.FlowGraph, error) {
	params := url.Values{}
	if query.Operation != "" {
		params.Set("operation", query.Operation)
	}
	if query.Namespace != "" {
		params.Set("namespace", query.Namespace)
	}
	if query.StartTime > 0 {
		params.Set("startTime", strconv.FormatInt(query.StartTime, 10))
	}
	if query.EndTime > 0 {
		params.Set("endTime", strconv.FormatInt(query.EndTime, 10))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/flows", params, nil)
	if err != nil {
		c.logger.Error("Failed to fetch flows", zap.String("namespace", query.Namespace), zap.Error(err))
		return nil, err
	}
	var res flowsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse flows response: %w", err)
	}
	return res.Flows, nil
}

func (c *Client) GetFlow(ctx context.Context, traceID string) (model.FlowGraph, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/flows/"+url.PathEscape(traceID), nil, nil)
	if err != nil {
		return model.FlowGraph{}, err
	}
	var flow model.FlowGraph
	if err := json.Unmarshal(body, &flow); err != nil {
		return model.FlowGraph{}, fmt.Errorf("failed to parse flow response: %w", err)
	}
	return flow, nil
}

func (c *Client) GetOperations(ctx context.Context) ([]string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/flows/operations", nil, nil)
	if err != nil {
		return nil, err
	}
	var res operationsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse operations response: %w", err)
	}
	names := make([]string, 0, len(res.Operations))
	for _, op := range res.Operations {
		names = append(names, op.Name)
	}
	return names, nil
}

func (c *Client) GetDependencies(ctx context.Context, namespace string) (model.ServiceDependencyGraph, error) {
	var params url.Values
	if namespace != "" {
		params = url.Values{"namespace": []string{namespace}}
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/flows/dependencies", params, nil)
	if err != nil {
		return model.ServiceDependencyGraph{}, err
	}
	var graph model.ServiceDependencyGraph
	if err := json.Unmarshal(body, &graph); err != nil {
		return model.ServiceDependencyGraph{}, fmt.Errorf("failed to parse dependencies response: %w", err)
	}
	return graph, nil
}

// Collect triggers a collection on the backend without waiting for its outcome.
func (c *Client) Collect(ctx context.Context, namespace string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/flows/collect", nil, collectRequest{Namespace: namespace})
	return err
}

// Health asks healthURL whether backendURL is ready. Any failure or a status other
// than ready reports the backend as unavailable.
func (c *Client) Health(ctx context.Context, healthURL string, backendURL string) error {
	healthCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	u, err := url.Parse(strings.TrimRight(healthURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("invalid health URL: %w", err)
	}
	u.RawQuery = url.Values{"url": []string{backendURL}}.Encode()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrBackendUnavailable
	}

	var res healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("%w: invalid health response", ErrBackendUnavailable)
	}
	if res.Status != readyStatus {
		return ErrBackendUnavailable
	}
	return nil
}

// IsUnavailable reports whether err means the backend could not serve the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

var (
	ErrBackendUnavailable = errors.New("tracing backend unavailable")
	ErrNotFound           = errors.New("not found on tracing backend")
)
