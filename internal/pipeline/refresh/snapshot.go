package refresh

import (
	"fmt"
	"sync"

	"github.com/amitngm/openlens-sub001/internal/flow/model"
	"github.com/amitngm/openlens-sub001/internal/pipeline/event_bus"
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Snapshot keeps the latest refreshed flows and dependency graph.
type Snapshot struct {
	mu           sync.RWMutex
	flows        FlowsRefreshed
	dependencies DependenciesRefreshed
	listeners    []func([]model.FlowGraph)
	logger       *zap.Logger
}

func NewSnapshot(logger *zap.Logger) *Snapshot {
	return &Snapshot{logger: logger}
}

// OnFlows registers fn to be called with every refreshed flow list. Register
// listeners before calling Subscribe.
func (s *Snapshot) OnFlows(fn func([]model.FlowGraph)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Snapshot) Subscribe(eventBus EventBus.Bus) error {
	flowBus := event_bus.NewLensEventBus[FlowsRefreshed, any](eventBus, s.logger)
	err := flowBus.Subscribe(FlowsRefreshedTopic, func(input FlowsRefreshed) error {
		s.mu.Lock()
		s.flows = input
		listeners := s.listeners
		s.mu.Unlock()
		for _, listener := range listeners {
			listener(input.Flows)
		}
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("failed to subscribe snapshot to flows: %w", err)
	}

	depBus := event_bus.NewLensEventBus[DependenciesRefreshed, any](eventBus, s.logger)
	err = depBus.Subscribe(DependenciesRefreshedTopic, func(input DependenciesRefreshed) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dependencies = input
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("failed to subscribe snapshot to dependencies: %w", err)
	}
	return nil
}

func (s *Snapshot) Flows() FlowsRefreshed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flows
}

func (s *Snapshot) Dependencies() DependenciesRefreshed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dependencies
}
