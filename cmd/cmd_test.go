package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/amitngm/openlens-sub001/internal/clients/tracing"
	"github.com/amitngm/openlens-sub001/internal/config"
	flowModel "github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	logModel "github.com/amitngm/openlens-sub001/internal/logs/model"
	"github.com/amitngm/openlens-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFlowSource struct {
	flow flowModel.FlowGraph
	err  error
}

func (s stubFlowSource) GetFlows(ctx context.Context, query flowModel.FlowQuery) ([]flowModel.FlowGraph, error) {
	return nil, s.err
}

func (s stubFlowSource) GetFlow(ctx context.Context, traceID string) (flowModel.FlowGraph, error) {
	return s.flow, s.err
}

func (s stubFlowSource) GetOperations(ctx context.Context) ([]string, error) {
	return nil, s.err
}

func (s stubFlowSource) GetDependencies(ctx context.Context, namespace string) (flowModel.ServiceDependencyGraph, error) {
	return flowModel.ServiceDependencyGraph{}, s.err
}

func (s stubFlowSource) Collect(ctx context.Context, namespace string) error {
	return s.err
}

type recordingCorrelator struct {
	pods []logModel.PodTarget
}

func (r *recordingCorrelator) CorrelateLogs(
	ctx context.Context,
	pods []logModel.PodTarget,
	window logModel.Window,
	traceID string,
	searchTerm string,
) map[string]logModel.PodLogBundle {
	r.pods = pods
	bundles := make(map[string]logModel.PodLogBundle, len(pods))
	for _, pod := range pods {
		bundles[pod.PodName] = logModel.PodLogBundle{PodName: pod.PodName, Namespace: pod.Namespace}
	}
	return bundles
}

func TestCorrelate(t *testing.T) {
	flow := flowModel.FlowGraph{
		TraceID:       "trace-1",
		OperationName: "POST /checkout",
		Nodes: []flowModel.FlowNode{
			{Service: flowModel.ServiceRef{Name: "frontend", Namespace: "shop", Pod: "frontend-1"}},
			{Service: flowModel.ServiceRef{Name: "payment", Namespace: "pay", Pod: "payment-1"}},
		},
	}

	t.Run("should print the ranked bundles of the flow pods", func(t *testing.T) {
		correlator := &recordingCorrelator{}
		var out bytes.Buffer
		err := correlate(context.Background(), stubFlowSource{flow: flow}, correlator, correlateRequest{
			traceID:   "trace-1",
			namespace: "shop",
		}, &out)
		require.NoError(t, err)

		assert.Equal(t, []logModel.PodTarget{{Namespace: "shop", PodName: "frontend-1", ServiceName: "frontend"}}, correlator.pods)
		var printed correlateOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
		assert.Equal(t, "trace-1", printed.TraceID)
		require.Len(t, printed.Pods, 1)
		assert.Equal(t, "frontend-1", printed.Pods[0].PodName)
	})

	t.Run("should fail when the flow cannot be fetched", func(t *testing.T) {
		var out bytes.Buffer
		err := correlate(context.Background(), stubFlowSource{err: tracing.ErrBackendUnavailable}, &recordingCorrelator{}, correlateRequest{traceID: "x"}, &out)
		assert.ErrorIs(t, err, tracing.ErrBackendUnavailable)
		assert.Empty(t, out.String())
	})
}

func TestWiring(t *testing.T) {
	t.Run("should build loggers for valid levels only", func(t *testing.T) {
		logger, err := newLogger(config.AppConfig{LogLevel: "debug", Development: true})
		require.NoError(t, err)
		assert.NotNil(t, logger)

		_, err = newLogger(config.AppConfig{LogLevel: "loud"})
		assert.Error(t, err)
	})

	t.Run("should leave span storage empty when elasticsearch is disabled", func(t *testing.T) {
		storage, err := newSpanStorage(config.ElasticsearchConfig{Enabled: false}, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, storage.writeBuffer)
		assert.Nil(t, storage.repository)
	})

	t.Run("should pick the flow source from the tracing url", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{FlowCacheMaxCost: 100}}
		local, err := newFlowSource(cfg, store.NewSpanStoreImpl(10), spanStorage{}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &flowService.FlowQueryServiceImpl{}, local)

		cfg.Tracing.URL = "http://tracing:8080"
		remote, err := newFlowSource(cfg, store.NewSpanStoreImpl(10), spanStorage{}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &tracing.Client{}, remote)
	})

	t.Run("should use the proxy cluster source in proxy mode", func(t *testing.T) {
		source, err := newClusterSource(config.KubernetesConfig{Mode: config.KubernetesModeProxy, ProxyURL: "http://proxy"}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, source)
	})

	t.Run("should build the default log cache without sizing it by cost", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		cfg, err := config.Load(path)
		require.NoError(t, err)

		var before, after runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&before)
		logCache, err := newSearchLogCache(cfg.Search, zap.NewNop())
		runtime.ReadMemStats(&after)
		require.NoError(t, err)

		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(32<<20))
		logCache.Put("shop", "cart-1", "first line")
		content, ok := logCache.Get("shop", "cart-1")
		assert.True(t, ok)
		assert.Equal(t, "first line", content)
	})

	t.Run("should map correlation settings", func(t *testing.T) {
		cc := newCorrelatorConfig(config.CorrelationConfig{Buffer: "2s", MaxConcurrency: 3, ContainerConcurrency: 2, TailLines: 50})
		assert.Equal(t, 3, cc.MaxConcurrency)
		assert.Equal(t, 2, cc.ContainerConcurrency)
		assert.Equal(t, 50, cc.TailLines)
		assert.Equal(t, "2s", cc.Buffer.String())
	})
}
