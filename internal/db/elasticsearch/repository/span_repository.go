package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/bootstrapper"
	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/client"
	"github.com/amitngm/openlens-sub001/internal/otel_server/trace/model"
	"go.uber.org/zap"
)

const timeout = 10 * time.Second

// SpanRepository reads spans that were indexed into Elasticsearch.
type SpanRepository interface {
	// GetSpans returns spans in namespace that started at or after since (ns).
	// An empty namespace or zero since is unbounded.
	GetSpans(ctx context.Context, namespace string, since int64) ([]model.Span, error)
}

type SpanRepositoryImpl struct {
	ac        client.LensClient
	index     string
	batchSize int
	logger    *zap.Logger
}

func NewSpanRepositoryImpl(ac client.LensClient, index string, batchSize int, logger *zap.Logger) *SpanRepositoryImpl {
	if index == "" {
		index = bootstrapper.SpanIndexName
	}
	return &SpanRepositoryImpl{
		ac:        ac,
		index:     index,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (r *SpanRepositoryImpl) GetSpans(ctx context.Context, namespace string, since int64) ([]model.Span, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query, err := json.Marshal(buildSpansQuery(namespace, since))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spans query: %w", err)
	}

	var size *int
	if r.batchSize > 0 {
		size = &r.batchSize
	}
	docs, err := r.ac.Search(queryCtx, string(query), []string{r.index}, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search spans: %w", err)
	}

	spans, err := ConvertFromDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to convert span documents: %w", err)
	}
	r.logger.Debug("Loaded spans from Elasticsearch",
		zap.String("namespace", namespace),
		zap.Int("count", len(spans)),
	)
	return spans, nil
}

func buildSpansQuery(namespace string, since int64) map[string]interface{} {
	filters := make([]map[string]interface{}, 0, 2)
	if namespace != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{
				"namespace": namespace,
			},
		})
	}
	if since > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"startTime": map[string]interface{}{
					"gte": since,
				},
			},
		})
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
		"sort": []map[string]interface{}{
			{"startTime": map[string]interface{}{"order": "asc"}},
		},
	}
}

// SpanDocumentID is the document id spans are indexed under.
func SpanDocumentID(span model.Span) string {
	return span.TraceID + ":" + span.SpanID
}
