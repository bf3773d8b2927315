package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockPublisher(t *testing.T) {
	var gotStream string
	var gotPayload []byte

	mock := &MockPublisher{
		PublishFunc: func(ctx context.Context, streamID string, payload []byte) error {
			gotStream = streamID
			gotPayload = payload
			return nil
		},
	}

	// MockPublisher satisfaz a interface Publisher
	var _ Publisher = mock

	err := mock.Publish(context.Background(), "cam1", []byte("frame"))
	assert.NoError(t, err)
	assert.Equal(t, "cam1", gotStream)
	assert.Equal(t, []byte("frame"), gotPayload)

	assert.NoError(t, mock.Close())
}

func TestMockPublisherDefaults(t *testing.T) {
	mock := &MockPublisher{}

	assert.NoError(t, mock.Publish(context.Background(), "cam1", nil))
	assert.NoError(t, mock.Close())
}

func TestMockPublisherError(t *testing.T) {
	wantErr := errors.New("broker indisponível")
	mock := &MockPublisher{
		PublishFunc: func(ctx context.Context, streamID string, payload []byte) error {
			return wantErr
		},
		CloseFunc: func() error {
			return wantErr
		},
	}

	assert.ErrorIs(t, mock.Publish(context.Background(), "cam1", nil), wantErr)
	assert.ErrorIs(t, mock.Close(), wantErr)
}
