package kafka

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestTopicErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		errs    map[string]error
		wantErr error
	}{
		{"all created", map[string]error{"a": nil, "b": nil}, nil},
		{"already exists", map[string]error{"a": kafkago.TopicAlreadyExists}, nil},
		{"one failed", map[string]error{"a": nil, "b": boom}, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := topicErrors(tt.errs)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWaitKafkaReady_GivesUp(t *testing.T) {
	// занимаем порт и сразу освобождаем - по нему никто не слушает
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	err = WaitKafkaReady(context.Background(), addr, 2, time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), addr)
}

func TestWaitKafkaReady_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitKafkaReady(ctx, "127.0.0.1:1", 5, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
