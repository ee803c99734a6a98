package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestWorker_handle(t *testing.T) {
	tests := []struct {
		name       string
		execErr    error
		wantCommit bool
	}{
		{"done", nil, true},
		{"not found", model.ErrEvolutionNotFound, true},
		{"bad id", model.ErrIncorrectID, true},
		{"db down", errors.New("db down"), false},
		{"interrupted", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cons := &mockCommitter{}
			w := NewWorkerInstance(&mockExecutor{
				executeFn: func(ctx context.Context, id string) error {
					require.Equal(t, "id1", id)
					return tt.execErr
				},
			}, nil, cons)

			w.handle(context.Background(), 0, kafkago.Message{Key: []byte("id1")})

			if tt.wantCommit {
				require.Equal(t, []string{"id1"}, cons.Committed())
			} else {
				require.Empty(t, cons.Committed())
			}
		})
	}
}

func TestWorker_handle_Panic(t *testing.T) {
	cons := &mockCommitter{}
	w := NewWorkerInstance(&mockExecutor{
		executeFn: func(ctx context.Context, id string) error { panic("boom") },
	}, nil, cons)

	require.NotPanics(t, func() {
		w.handle(context.Background(), 0, kafkago.Message{Key: []byte("id1")})
	})
	require.Empty(t, cons.Committed())
}

func TestWorker_handle_LoggerInContext(t *testing.T) {
	w := NewWorkerInstance(&mockExecutor{
		executeFn: func(ctx context.Context, id string) error {
			logger := mwlogger.LoggerFromContext(ctx)
			require.NotNil(t, logger)
			return nil
		},
	}, nil, &mockCommitter{})

	w.handle(context.Background(), 1, kafkago.Message{Key: []byte("id1")})
}

func TestWorker_StartWorkers_DrainsQueue(t *testing.T) {
	queue := make(chan kafkago.Message, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		queue <- kafkago.Message{Key: []byte(id)}
	}
	close(queue)

	var mu sync.Mutex
	var seen []string
	cons := &mockCommitter{}
	w := NewWorkerInstance(&mockExecutor{
		executeFn: func(ctx context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, id)
			return nil
		},
	}, queue, cons)

	w.StartWorkers(context.Background(), 3)

	committed := cons.Committed()
	sort.Strings(committed)
	sort.Strings(seen)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, committed)
	require.Equal(t, committed, seen)
}

func TestWorker_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorkerInstance(&mockExecutor{}, make(chan kafkago.Message), &mockCommitter{})
	w.StartWorker(ctx, 0)
}
