package client

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8"
)

const SearchResultSize = 1000

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate refreshes the relevant primary and replica shards immediately after the operation occurs.
	Immediate RefreshRate = "true"
	// Async takes no refresh related actions.
	Async RefreshRate = "false"
)

type LensClient interface {
	// BulkIndex indexes (inserts) multiple documents in the same index
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-bulk.html
	BulkIndex(ctx context.Context, metaInfo []MetaMap, documentInfo []DocumentMap, index string) error
	// Search searches for documents in the index. Numbers in the returned
	// documents are json.Number so nanosecond timestamps keep full precision.
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/search-search.html
	Search(ctx context.Context, query string, indices []string, queryResultSize *int) ([]map[string]interface{}, error)
}

type LensClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewLensClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *LensClientImpl {
	return &LensClientImpl{es: es, refreshRate: string(refreshRate)}
}
