package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFlowSource struct {
	mu              sync.Mutex
	flowQueries     []model.FlowQuery
	dependencyCalls []string
}

func (f *fakeFlowSource) GetFlows(ctx context.Context, query model.FlowQuery) ([]model.FlowGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flowQueries = append(f.flowQueries, query)
	return []model.FlowGraph{{TraceID: query.Namespace + "-trace"}}, nil
}

func (f *fakeFlowSource) GetFlow(ctx context.Context, traceID string) (model.FlowGraph, error) {
	return model.FlowGraph{}, nil
}

func (f *fakeFlowSource) GetOperations(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeFlowSource) GetDependencies(ctx context.Context, namespace string) (model.ServiceDependencyGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dependencyCalls = append(f.dependencyCalls, namespace)
	return model.ServiceDependencyGraph{Nodes: []model.ServiceRef{{Name: "svc", Namespace: namespace}}}, nil
}

func (f *fakeFlowSource) Collect(ctx context.Context, namespace string) error {
	return nil
}

func (f *fakeFlowSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flowQueries), len(f.dependencyCalls)
}

func (f *fakeFlowSource) lastFlowQuery() model.FlowQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flowQueries[len(f.flowQueries)-1]
}

func testConfig() Config {
	return Config{
		FlowInterval:       10 * time.Millisecond,
		DependencyInterval: 30 * time.Millisecond,
		FlowLimit:          25,
	}
}

func TestRefresher(t *testing.T) {
	logger := zap.NewNop()

	t.Run("should not poll without a namespace", func(t *testing.T) {
		source := &fakeFlowSource{}
		refresher := NewRefresher(source, EventBus.New(), testConfig(), logger)
		cleanup, err := refresher.Start()
		require.NoError(t, err)
		defer cleanup()

		time.Sleep(60 * time.Millisecond)
		flows, deps := source.counts()
		assert.Equal(t, 0, flows)
		assert.Equal(t, 0, deps)
	})

	t.Run("should poll flows more often than dependencies", func(t *testing.T) {
		source := &fakeFlowSource{}
		refresher := NewRefresher(source, EventBus.New(), testConfig(), logger)
		cleanup, err := refresher.Start()
		require.NoError(t, err)

		refresher.SetNamespace("shop")
		time.Sleep(100 * time.Millisecond)
		cleanup()

		flows, deps := source.counts()
		assert.GreaterOrEqual(t, flows, 3)
		assert.GreaterOrEqual(t, deps, 1)
		assert.Greater(t, flows, deps)
		assert.Equal(t, model.FlowQuery{Namespace: "shop", Limit: 25}, source.lastFlowQuery())
	})

	t.Run("should suspend polling when the namespace is cleared", func(t *testing.T) {
		source := &fakeFlowSource{}
		refresher := NewRefresher(source, EventBus.New(), testConfig(), logger)
		cleanup, err := refresher.Start()
		require.NoError(t, err)
		defer cleanup()

		refresher.SetNamespace("shop")
		assert.Eventually(t, func() bool {
			flows, _ := source.counts()
			return flows >= 2
		}, time.Second, 5*time.Millisecond)

		refresher.SetNamespace("")
		time.Sleep(20 * time.Millisecond)
		before, _ := source.counts()
		time.Sleep(60 * time.Millisecond)
		after, _ := source.counts()
		assert.Equal(t, before, after)
		assert.Equal(t, "", refresher.Namespace())
	})

	t.Run("should reject non positive intervals", func(t *testing.T) {
		refresher := NewRefresher(&fakeFlowSource{}, EventBus.New(), Config{}, logger)
		_, err := refresher.Start()
		assert.Error(t, err)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("should hold the latest published flows and dependencies", func(t *testing.T) {
		logger := zap.NewNop()
		bus := EventBus.New()
		snapshot := NewSnapshot(logger)

		var mu sync.Mutex
		var heard []string
		snapshot.OnFlows(func(flows []model.FlowGraph) {
			mu.Lock()
			defer mu.Unlock()
			for _, flow := range flows {
				heard = append(heard, flow.TraceID)
			}
		})
		require.NoError(t, snapshot.Subscribe(bus))

		source := &fakeFlowSource{}
		refresher := NewRefresher(source, bus, testConfig(), logger)
		cleanup, err := refresher.Start()
		require.NoError(t, err)
		refresher.SetNamespace("shop")

		assert.Eventually(t, func() bool {
			return snapshot.Flows().Namespace == "shop" && snapshot.Dependencies().Namespace == "shop"
		}, time.Second, 5*time.Millisecond)
		cleanup()
		bus.WaitAsync()

		assert.Equal(t, "shop-trace", snapshot.Flows().Flows[0].TraceID)
		assert.Equal(t, "svc", snapshot.Dependencies().Graph.Nodes[0].Name)
		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, heard, "shop-trace")
	})
}
