package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/metrics"
	"github.com/amitngm/openlens-sub001/internal/pipeline/refresh"
	searchService "github.com/amitngm/openlens-sub001/internal/search/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFlowSource struct{}

func (stubFlowSource) GetFlows(ctx context.Context, query flowModel.FlowQuery) ([]flowModel.FlowGraph, error) {
	return []flowModel.FlowGraph{{TraceID: "t1", OperationName: "GET /cart"}}, nil
}

func (stubFlowSource) GetFlow(ctx context.Context, traceID string) (flowModel.FlowGraph, error) {
	if traceID != "t1" {
		return flowModel.FlowGraph{}, flowService.ErrEmptyTrace
	}
	return flowModel.FlowGraph{TraceID: "t1"}, nil
}

func (stubFlowSource) GetOperations(ctx context.Context) ([]string, error) {
	return []string{"GET /cart"}, nil
}

func (stubFlowSource) GetDependencies(ctx context.Context, namespace string) (flowModel.ServiceDependencyGraph, error) {
	return flowModel.ServiceDependencyGraph{}, nil
}

func (stubFlowSource) Collect(ctx context.Context, namespace string) error {
	return nil
}

type stubCorrelator struct{}

func (stubCorrelator) CorrelateLogs(
	ctx context.Context,
	pods []logModel.PodTarget,
	window logModel.Window,
	traceID string,
	searchTerm string,
) map[string]logModel.PodLogBundle {
	return map[string]logModel.PodLogBundle{}
}

type stubSelector struct{ namespace string }

func (s *stubSelector) SetNamespace(namespace string) { s.namespace = namespace }
func (s *stubSelector) Namespace() string { return s.namespace }

type stubSession struct{}

func (stubSession) Update(namespace, term string) {}
func (stubSession) Result() searchService.Result { return searchService.Result{} }

type stubCluster struct{}

func (stubCluster) ListContainers(ctx context.Context, namespace, pod string) ([]string, error) {
	return nil, nil
}

func (stubCluster) FetchLogs(ctx context.Context, namespace, pod, container string, tailLines int) ([]string, error) {
	return nil, nil
}

func (stubCluster) ListPods(ctx context.Context, namespace string) ([]logModel.PodInfo, error) {
	return nil, nil
}

func (stubCluster) ListDeployments(ctx context.Context, namespace string) ([]logModel.DeploymentInfo, error) {
	return nil, nil
}

func TestCreateRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.SpansReceived.Add(3)

	selector := &stubSelector{}
	r := CreateRouter(
		context.Background(),
		stubFlowSource{},
		stubCorrelator{},
		stubCluster{},
		nil,
		selector,
		refresh.NewSnapshot(zap.NewNop()),
		stubSession{},
		reg,
		zap.NewNop(),
	)

	cases := []struct {
		method   string
		path     string
		body     string
		status   int
		contains string
	}{
		{http.MethodGet, "/flows", "", http.StatusOK, `"traceId":"t1"`},
		{http.MethodGet, "/flows/operations", "", http.StatusOK, `{"name":"GET /cart"}`},
		{http.MethodGet, "/flows/dependencies", "", http.StatusOK, `"nodes"`},
		{http.MethodGet, "/flows/t1", "", http.StatusOK, `"traceId":"t1"`},
		{http.MethodGet, "/flows/t2", "", http.StatusNotFound, `"message"`},
		{http.MethodPost, "/flows/t1/logs", "{}", http.StatusOK, `"pods"`},
		{http.MethodPost, "/flows/collect", `{"namespace":"shop"}`, http.StatusAccepted, ""},
		{http.MethodPost, "/search", `{"term":"cart"}`, http.StatusOK, `"matchingFlows"`},
		{http.MethodPut, "/search/session", `{"term":"cart"}`, http.StatusAccepted, ""},
		{http.MethodGet, "/search/session", "", http.StatusOK, `"matchingPods"`},
		{http.MethodPut, "/snapshot/namespace", `{"namespace":"shop"}`, http.StatusNoContent, ""},
		{http.MethodGet, "/snapshot", "", http.StatusOK, `"namespace":"shop"`},
		{http.MethodGet, "/deployments", "", http.StatusOK, `"deployments"`},
		{http.MethodGet, "/health", "", http.StatusOK, `"ready"`},
		{http.MethodGet, "/metrics", "", http.StatusOK, "openlens_spans_received_total 3"},
		{http.MethodDelete, "/flows", "", http.StatusMethodNotAllowed, ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.contains != "" {
				assert.Contains(t, rec.Body.String(), tc.contains)
			}
		})
	}
}
