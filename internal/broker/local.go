package broker

import "context"

// LocalSink delivers events synchronously to an in-process handler. It is
// used when Kafka is disabled so the same handlers still run.
type LocalSink struct {
	handler *EventHandler
}

// NewLocalSink creates a sink that feeds handler directly
func NewLocalSink(handler *EventHandler) *LocalSink {
	return &LocalSink{handler: handler}
}

// PublishEvent encodes event exactly as the Kafka producer would and
// handles it before returning
func (s *LocalSink) PublishEvent(ctx context.Context, key string, event interface{}) error {
	msg, err := encodeMessage(key, event)
	if err != nil {
		return err
	}
	return s.handler.HandleMessage(ctx, msg)
}
