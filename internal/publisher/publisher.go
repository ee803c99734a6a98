// Package publisher uploads processed artifacts to blob storage under caller-chosen names
package publisher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/backoff"
	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	"github.com/wb-go/wbf/retry"
)

// BlobStore - контракт для работы с хранилищем
type BlobStore interface {
	IsConfigured() bool
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	URL(key string) string
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// Стратегия ретрая загрузки - можно потом вынести значения в конфиг/env
var DefaultStrategy = retry.Strategy{
	Attempts: 4,
	Delay:    500 * time.Millisecond,
	Backoff:  2,
}

type Publisher struct {
	store    BlobStore
	prefix   string
	strategy retry.Strategy
	maxDelay time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPublisher - store may be nil, then the publisher reports itself as not configured
func NewPublisher(store BlobStore, prefix string, strategy retry.Strategy) *Publisher {
	return &Publisher{
		store:    store,
		prefix:   prefix,
		strategy: strategy,
		maxDelay: 10 * time.Second,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// IsConfigured is true only when the store has every parameter it needs to publish.
// Callers treat false as a disabled feature.
func (p *Publisher) IsConfigured() bool {
	return p != nil && p.store != nil && p.store.IsConfigured()
}

// Key returns object key for name, receipt URL is derived from it.
func (p *Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish writes the whole artifact under name. Repeated publishes with the same name overwrite
// one object. Transport failures are retried with exponential backoff, rejections are not.
func (p *Publisher) Publish(ctx context.Context, art *model.Artifact, name string) (*model.PublishReceipt, error) {
	if !p.IsConfigured() {
		return nil, &model.PublishError{Name: name, Reason: model.ReasonDisabled, Cause: model.ErrPublishDisabled}
	}
	if !safeName.MatchString(name) || name == "." || name == ".." {
		return nil, &model.PublishError{Name: name, Reason: model.ReasonInvalidName}
	}
	if art == nil || len(art.Data) == 0 {
		return nil, &model.PublishError{Name: name, Reason: model.ReasonEmpty}
	}

	logger := mwlogger.LoggerFromContext(ctx)
	key := p.Key(name)
	attempts := max(p.strategy.Attempts, 1)
	delays := backoff.FromStrategy(p.strategy, p.maxDelay)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &model.PublishError{Name: name, Reason: model.ReasonCanceled, Cause: err}
		}

		// каждый раз новый reader - иначе ретрай отправит пустое тело
		lastErr = p.store.Put(ctx, key, int64(len(art.Data)), art.ContentType, bytes.NewReader(art.Data))
		if lastErr == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Str("key", key).Msg("Upload succeeded after retry")
			}
			return &model.PublishReceipt{URL: p.store.URL(key), Name: name, PublishedAt: p.now().UTC()}, nil
		}

		if errors.Is(lastErr, model.ErrBlobRejected) {
			return nil, &model.PublishError{Name: name, Reason: model.ReasonRejected, Cause: lastErr}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &model.PublishError{Name: name, Reason: model.ReasonCanceled, Cause: errors.Join(ctxErr, lastErr)}
		}
		if attempt == attempts {
			break
		}

		wait := backoff.Exponential(attempt, delays)
		logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", wait).Str("key", key).Msg("Upload failed")
		if err := p.sleep(ctx, wait); err != nil {
			return nil, &model.PublishError{Name: name, Reason: model.ReasonCanceled, Cause: err}
		}
	}

	return nil, &model.PublishError{Name: name, Reason: model.ReasonNetwork, Cause: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
