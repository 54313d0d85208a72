package write_buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amitngm/openlens-sub001/internal/db/elasticsearch/client"
	"go.uber.org/zap"
)

const WriteQueueSize = 30
const flushTimeOut = 10 * time.Second

type DatabaseWriteBuffer[ValueType any] interface {
	WriteToBuffer(values []ValueType)
	Flush(ctx context.Context) error
}

// DatabaseWriteBufferImpl batches values and bulk indexes them once more than
// WriteQueueSize are pending.
type DatabaseWriteBufferImpl[ValueType any] struct {
	writeQueue  []ValueType
	ac          client.LensClient
	esIndexName string
	idOf        func(ValueType) string
	logger      *zap.Logger
	mu          sync.Mutex
}

func NewDatabaseWriteBufferImpl[ValueType any](
	ac client.LensClient,
	esIndexName string,
	idOf func(ValueType) string,
	logger *zap.Logger,
) *DatabaseWriteBufferImpl[ValueType] {
	return &DatabaseWriteBufferImpl[ValueType]{
		writeQueue:  []ValueType{},
		ac:          ac,
		esIndexName: esIndexName,
		idOf:        idOf,
		logger:      logger,
	}
}

func (wb *DatabaseWriteBufferImpl[ValueType]) WriteToBuffer(values []ValueType) {
	wb.mu.Lock()
	wb.writeQueue = append(wb.writeQueue, values...)
	full := len(wb.writeQueue) > WriteQueueSize
	wb.mu.Unlock()
	if full {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeOut)
			defer cancel()
			if err := wb.Flush(ctx); err != nil {
				wb.logger.Error("Failed to flush to Elasticsearch", zap.Error(err))
			}
		}()
	}
}

// Flush indexes everything pending. Values are dropped when indexing fails.
func (wb *DatabaseWriteBufferImpl[ValueType]) Flush(ctx context.Context) error {
	wb.mu.Lock()
	pending := wb.writeQueue
	wb.writeQueue = []ValueType{}
	wb.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	metaMap, dataMap, err := client.ToMetaAndDataMap(pending, wb.idOf)
	if err != nil {
		return fmt.Errorf("error converting write queue to meta and data map: %w", err)
	}
	if err := wb.ac.BulkIndex(ctx, metaMap, dataMap, wb.esIndexName); err != nil {
		return fmt.Errorf("error bulk indexing to Elasticsearch: %w", err)
	}
	return nil
}
