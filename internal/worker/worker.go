// Package worker consumes queued evolutions and runs them one by one
package worker

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

type EvolutionExecutor interface {
	Execute(ctx context.Context, id string) error
}

// Committer - подтверждение обработанного сообщения, *wbfkafka.Consumer подходит как есть
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Worker struct {
	service  EvolutionExecutor
	queue    <-chan kafkago.Message
	consumer Committer
	mu       sync.Mutex // commit from several goroutines
}

func NewWorkerInstance(svc EvolutionExecutor, q <-chan kafkago.Message, cons Committer) *Worker {
	return &Worker{service: svc, queue: q, consumer: cons}
}

// StartWorkers runs n consumers of the queue and blocks until all of them stop
func (w *Worker) StartWorkers(ctx context.Context, n int) {
	var wg sync.WaitGroup
	for i := range max(n, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.StartWorker(ctx, i)
		}()
	}
	wg.Wait()
}

func (w *Worker) StartWorker(ctx context.Context, num int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				log.Println("Queue channel closed, stopping worker...")
				return
			}
			w.handle(ctx, num, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, num int, msg kafkago.Message) {
	id := string(msg.Key)
	logger := zlog.Logger.With().Str("evolution_id", id).Int("worker", num).Logger()
	ctx = mwlogger.ContextWithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Evolution crashed")
		}
	}()

	err := w.service.Execute(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrEvolutionNotFound), errors.Is(err, model.ErrIncorrectID):
		// такую задачу повторять бессмысленно
		logger.Warn().Err(err).Msg("Dropping queue message")
	default:
		// не коммитим - сообщение вернётся после рестарта, запись подберёт recovery
		logger.Error().Err(err).Msg("Evolution task failed")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.consumer.Commit(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("Failed to commit queue-message")
	}
}
