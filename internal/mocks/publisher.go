package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/telemetry"
)

// PublisherMock stands in for the AMQP publisher behind telemetry.Emitter.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

// Envelopes returns the lifecycle envelopes published so far, keyed by
// routing key in call order.
func (m *PublisherMock) Envelopes() map[string][]telemetry.Envelope {
	out := make(map[string][]telemetry.Envelope)
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		key, _ := call.Arguments.Get(1).(string)
		if env, ok := call.Arguments.Get(2).(telemetry.Envelope); ok {
			out[key] = append(out[key], env)
		}
	}
	return out
}

var _ telemetry.Publisher = (*PublisherMock)(nil)
