package worker

import (
	"context"
	"sync"

	kafkago "github.com/segmentio/kafka-go"
)

type mockExecutor struct {
	executeFn func(ctx context.Context, id string) error
}

func (m *mockExecutor) Execute(ctx context.Context, id string) error {
	return m.executeFn(ctx, id)
}

type mockCommitter struct {
	mu        sync.Mutex
	committed []string
	err       error
}

func (m *mockCommitter) Commit(_ context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.committed = append(m.committed, string(msg.Key))
	return nil
}

func (m *mockCommitter) Committed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.committed...)
}
