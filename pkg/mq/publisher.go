package mq

import "context"

type Publisher interface {
	Publish(ctx context.Context, streamID string, payload []byte) error
	Close() error
}
