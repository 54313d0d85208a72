package event_bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Namespace string   `json:"namespace"`
	TraceIDs  []string `json:"traceIds"`
}

func TestLensEventBus(t *testing.T) {
	logger := zap.NewNop()

	t.Run("should deliver a decoded copy of the published value", func(t *testing.T) {
		bus := EventBus.New()
		publisher := NewLensEventBus[any, payload](bus, logger)
		subscriber := NewLensEventBus[payload, any](bus, logger)

		var mu sync.Mutex
		var received []payload
		err := subscriber.Subscribe("flows_refreshed", func(input payload) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, input)
			return nil
		}, true)
		require.NoError(t, err)

		sent := payload{Namespace: "shop", TraceIDs: []string{"t1", "t2"}}
		require.NoError(t, publisher.Publish("flows_refreshed", sent))
		sent.TraceIDs[0] = "mutated"
		publisher.WaitAsync()

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, received, 1)
		assert.Equal(t, "shop", received[0].Namespace)
		assert.Equal(t, []string{"t1", "t2"}, received[0].TraceIDs)
	})

	t.Run("should keep delivering after a handler fails", func(t *testing.T) {
		bus := EventBus.New()
		publisher := NewLensEventBus[any, payload](bus, logger)
		subscriber := NewLensEventBus[payload, any](bus, logger)

		var mu sync.Mutex
		calls := 0
		err := subscriber.Subscribe("topic", func(input payload) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return errors.New("handler failed")
		}, true)
		require.NoError(t, err)

		require.NoError(t, publisher.Publish("topic", payload{}))
		require.NoError(t, publisher.Publish("topic", payload{}))
		publisher.WaitAsync()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, calls)
	})

	t.Run("should return an error for values that cannot be encoded", func(t *testing.T) {
		bus := EventBus.New()
		publisher := NewLensEventBus[any, any](bus, logger)
		err := publisher.Publish("topic", make(chan int))
		assert.Error(t, err)
	})
}
