package event_bus

import (
	"encoding/json"
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// LensEventBus carries JSON encoded payloads between pipeline stages, so that
// subscribers never share memory with the publisher.
type LensEventBus[InputType any, OutputType any] interface {
	Subscribe(topic string, handler func(input InputType) error, transactional bool) error
	Publish(topic string, arg OutputType) error
	// WaitAsync blocks until every asynchronous handler has returned.
	WaitAsync()
}

type LensEventBusImpl[InputType any, OutputType any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewLensEventBus[InputType any, OutputType any](
	eventBus EventBus.Bus,
	logger *zap.Logger,
) LensEventBus[InputType, OutputType] {
	return &LensEventBusImpl[InputType, OutputType]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (ev *LensEventBusImpl[InputType, OutputType]) Subscribe(
	topic string,
	handler func(input InputType) error,
	transactional bool,
) error {
	err := ev.eventBus.SubscribeAsync(
		topic,
		func(payload string) {
			var input InputType
			if err := json.Unmarshal([]byte(payload), &input); err != nil {
				ev.logger.Error("Failed to decode event",
					zap.String("topic", topic),
					zap.Error(err),
				)
				return
			}
			if err := handler(input); err != nil {
				ev.logger.Error("Failed to handle event",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		},
		transactional,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

func (ev *LensEventBusImpl[InputType, OutputType]) Publish(topic string, arg OutputType) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("failed to encode event for topic %s: %w", topic, err)
	}
	ev.eventBus.Publish(topic, string(payload))
	return nil
}

func (ev *LensEventBusImpl[InputType, OutputType]) WaitAsync() {
	ev.eventBus.WaitAsync()
}
