package mq

import "context"

type MockPublisher struct {
	PublishFunc func(ctx context.Context, streamID string, payload []byte) error
	CloseFunc   func() error
}

func (m *MockPublisher) Publish(ctx context.Context, streamID string, payload []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, streamID, payload)
	}
	return nil
}

func (m *MockPublisher) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
