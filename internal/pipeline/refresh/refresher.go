package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	flowService "github.com/amitngm/openlens-sub001/internal/flow/service"
	"github.com/amitngm/openlens-sub001/internal/pipeline/event_bus"
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

const (
	FlowsRefreshedTopic        = "flows_refreshed"
	DependenciesRefreshedTopic = "dependencies_refreshed"
)

const timeout = 10 * time.Second

type Config struct {
	FlowInterval       time.Duration
	DependencyInterval time.Duration
	FlowLimit          int
}

func DefaultConfig() Config {
	return Config{
		FlowInterval:       10 * time.Second,
		DependencyInterval: 30 * time.Second,
		FlowLimit:          100,
	}
}

type FlowsRefreshed struct {
	Namespace string            `json:"namespace"`
	Flows     []model.FlowGraph `json:"flows"`
}

type DependenciesRefreshed struct {
	Namespace string                       `json:"namespace"`
	Graph     model.ServiceDependencyGraph `json:"graph"`
}

// Refresher polls flows and dependencies for the active namespace and
// publishes every result. Nothing is polled while no namespace is active.
type Refresher struct {
	source  flowService.FlowSource
	flowBus event_bus.LensEventBus[any, FlowsRefreshed]
	depBus  event_bus.LensEventBus[any, DependenciesRefreshed]
	config  Config
	logger  *zap.Logger

	mu        sync.Mutex
	namespace string
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRefresher(
	source flowService.FlowSource,
	eventBus EventBus.Bus,
	config Config,
	logger *zap.Logger,
) *Refresher {
	return &Refresher{
		source:  source,
		flowBus: event_bus.NewLensEventBus[any, FlowsRefreshed](eventBus, logger),
		depBus:  event_bus.NewLensEventBus[any, DependenciesRefreshed](eventBus, logger),
		config:  config,
		logger:  logger,
	}
}

// Start begins polling for the active namespace, if any. The returned cleanup
// stops polling and waits for a refresh in progress to finish.
func (r *Refresher) Start() (func(), error) {
	if r.config.FlowInterval <= 0 || r.config.DependencyInterval <= 0 {
		return nil, fmt.Errorf("refresh intervals must be positive, got %s and %s",
			r.config.FlowInterval, r.config.DependencyInterval)
	}
	r.mu.Lock()
	r.started = true
	r.startLocked()
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.started = false
		r.stopLocked()
		r.mu.Unlock()
		r.wg.Wait()
	}, nil
}

// SetNamespace switches polling to namespace. An empty namespace suspends
// polling until a namespace is set again.
func (r *Refresher) SetNamespace(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if namespace == r.namespace {
		return
	}
	r.stopLocked()
	r.namespace = namespace
	if r.started {
		r.startLocked()
	}
}

func (r *Refresher) Namespace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namespace
}

func (r *Refresher) startLocked() {
	if r.namespace == "" || r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func(namespace string) {
		defer r.wg.Done()
		r.poll(ctx, namespace)
	}(r.namespace)
}

func (r *Refresher) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Refresher) poll(ctx context.Context, namespace string) {
	flowTicker := time.NewTicker(r.config.FlowInterval)
	defer flowTicker.Stop()
	depTicker := time.NewTicker(r.config.DependencyInterval)
	defer depTicker.Stop()

	r.logger.Info("Started refreshing flows", zap.String("namespace", namespace))
	r.refreshFlows(ctx, namespace)
	r.refreshDependencies(ctx, namespace)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopped refreshing flows", zap.String("namespace", namespace))
			return
		case <-flowTicker.C:
			r.refreshFlows(ctx, namespace)
		case <-depTicker.C:
			r.refreshDependencies(ctx, namespace)
		}
	}
}

func (r *Refresher) refreshFlows(ctx context.Context, namespace string) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	flows, err := r.source.GetFlows(queryCtx, model.FlowQuery{Namespace: namespace, Limit: r.config.FlowLimit})
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Failed to refresh flows", zap.String("namespace", namespace), zap.Error(err))
		}
		return
	}
	err = r.flowBus.Publish(FlowsRefreshedTopic, FlowsRefreshed{Namespace: namespace, Flows: flows})
	if err != nil {
		r.logger.Error("Failed to publish refreshed flows", zap.Error(err))
	}
}

func (r *Refresher) refreshDependencies(ctx context.Context, namespace string) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	graph, err := r.source.GetDependencies(queryCtx, namespace)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Failed to refresh dependencies", zap.String("namespace", namespace), zap.Error(err))
		}
		return
	}
	err = r.depBus.Publish(DependenciesRefreshedTopic, DependenciesRefreshed{Namespace: namespace, Graph: graph})
	if err != nil {
		r.logger.Error("Failed to publish refreshed dependencies", zap.Error(err))
	}
}
