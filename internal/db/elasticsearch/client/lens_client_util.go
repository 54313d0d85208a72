package client

import (
	"encoding/json"
	"fmt"
)

type MetaMap map[string]interface{}
type DocumentMap map[string]interface{}

// ToMetaAndDataMap converts values into bulk index documents. When idOf is not
// nil its result becomes the document id, making re-indexing idempotent.
func ToMetaAndDataMap[T any](values []T, idOf func(T) string) ([]MetaMap, []DocumentMap, error) {
	dataMap := make([]DocumentMap, len(values))
	metaMap := make([]MetaMap, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal value to JSON: %w", err)
		}
		var doc DocumentMap
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal JSON to map: %w", err)
		}
		if idOf != nil {
			metaMap[i] = MetaMap{"index": map[string]interface{}{"_id": idOf(v)}}
		} else {
			metaMap[i] = MetaMap{"index": map[string]interface{}{}}
		}
		dataMap[i] = doc
	}
	return metaMap, dataMap, nil
}
