package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock records broker publishes. It satisfies chat.Publisher,
// telemetry.Publisher, ws.EventPublisher and rabbitmq.Publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published returns the events passed to Publish for routingKey, in call order.
func (m *PublisherMock) Published(routingKey string) []any {
	var out []any
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(1) == routingKey {
			out = append(out, call.Arguments.Get(2))
		}
	}
	return out
}
