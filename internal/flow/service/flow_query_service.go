package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/amitngm/openlens-sub001/internal/cache"
	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/repository"
	"github.com/amitngm/openlens-sub001/internal/flow/model"
	"github.com/amitngm/openlens-sub001/internal/store"
	"go.uber.org/zap"
)

// FlowSource answers flow queries. It is served locally from the span store or
// remotely by another instance over HTTP.
type FlowSource interface {
	GetFlows(ctx context.Context, query model.FlowQuery) ([]model.FlowGraph, error)
	GetFlow(ctx context.Context, traceID string) (model.FlowGraph, error)
	GetOperations(ctx context.Context) ([]string, error)
	GetDependencies(ctx context.Context, namespace string) (model.ServiceDependencyGraph, error)
	// Collect asks the source to pull spans for namespace from its backing storage.
	Collect(ctx context.Context, namespace string) error
}

type FlowQueryServiceImpl struct {
	spanStore  store.SpanStore
	repository repository.SpanRepository
	flowCache  cache.Cache[model.FlowGraph]
	logger     *zap.Logger
}

// NewFlowQueryService builds a local flow source. repository may be nil, in which
// case Collect has nothing to pull from.
func NewFlowQueryService(
	spanStore store.SpanStore,
	repository repository.SpanRepository,
	flowCache cache.Cache[model.FlowGraph],
	logger *zap.Logger,
) *FlowQueryServiceImpl {
	return &FlowQueryServiceImpl{
		spanStore:  spanStore,
		repository: repository,
		flowCache:  flowCache,
		logger:     logger,
	}
}

// GetFlows returns flows matching the query, most recent first.
func (fqs *FlowQueryServiceImpl) GetFlows(ctx context.Context, query model.FlowQuery) ([]model.FlowGraph, error) {
	traceIDs := fqs.spanStore.TraceIDs(store.TraceQuery{
		Namespace: query.Namespace,
		StartTime: query.StartTime,
		EndTime:   query.EndTime,
	})

	flows := make([]model.FlowGraph, 0, len(traceIDs))
	for _, traceID := range traceIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		flow, err := fqs.GetFlow(ctx, traceID)
		if err != nil {
			if errors.Is(err, ErrEmptyTrace) {
				continue
			}
			return nil, fmt.Errorf("failed to build flow for trace %s: %w", traceID, err)
		}
		if query.Operation != "" && flow.OperationName != query.Operation {
			continue
		}
		flows = append(flows, flow)
		if query.Limit > 0 && len(flows) >= query.Limit {
			break
		}
	}
	return flows, nil
}

// GetFlow builds the flow of a single trace. Built flows are memoised per trace
// and span count so a trace that is still receiving spans is rebuilt.
func (fqs *FlowQueryServiceImpl) GetFlow(_ context.Context, traceID string) (model.FlowGraph, error) {
	spans := fqs.spanStore.Trace(traceID)
	if len(spans) == 0 {
		return model.FlowGraph{}, ErrEmptyTrace
	}
	key := fmt.Sprintf("%s:%d", traceID, len(spans))
	if flow, err := fqs.flowCache.Get(key); err == nil {
		return flow, nil
	}

	flow, err := BuildFlow(spans)
	if err != nil {
		return model.FlowGraph{}, err
	}
	if err := fqs.flowCache.Put(key, flow, int64(len(spans))); err != nil {
		fqs.logger.Warn("Failed to cache flow", zap.String("trace_id", traceID), zap.Error(err))
	}
	return flow, nil
}

func (fqs *FlowQueryServiceImpl) GetOperations(_ context.Context) ([]string, error) {
	return fqs.spanStore.RootOperations(), nil
}

func (fqs *FlowQueryServiceImpl) GetDependencies(ctx context.Context, namespace string) (model.ServiceDependencyGraph, error) {
	flows, err := fqs.GetFlows(ctx, model.FlowQuery{Namespace: namespace})
	if err != nil {
		return model.ServiceDependencyGraph{}, fmt.Errorf("failed to get flows for dependencies: %w", err)
	}
	return BuildDependencies(flows, namespace), nil
}

func (fqs *FlowQueryServiceImpl) Collect(ctx context.Context, namespace string) error {
	if fqs.repository == nil {
		fqs.logger.Info("No span repository configured, skipping collect", zap.String("namespace", namespace))
		return nil
	}
	spans, err := fqs.repository.GetSpans(ctx, namespace, 0)
	if err != nil {
		return fmt.Errorf("failed to collect spans: %w", err)
	}
	added := fqs.spanStore.Add(spans...)
	fqs.logger.Info("Collected spans",
		zap.String("namespace", namespace),
		zap.Int("fetched", len(spans)),
		zap.Int("added", added),
	)
	return nil
}
