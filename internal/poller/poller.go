// Package poller waits for asynchronous prediction jobs to reach terminal status
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/backoff"
	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
)

// StatusRefresher - контракт для запроса статуса задачи у бэкенда
type StatusRefresher interface {
	Refresh(ctx context.Context, id string) (*model.Job, error)
}

type Poller struct {
	client StatusRefresher
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPoller(client StatusRefresher) *Poller {
	return &Poller{client: client, now: time.Now, sleep: sleepCtx}
}

// Await polls job status until it is terminal. Failed and canceled jobs are returned without error:
// deciding whether they are an application error is up to the caller.
// Cancellation of ctx is checked at every sleep boundary; no request is sent after it is observed.
// MaxElapsed bounds the in-flight status requests too: a request still running at the deadline is abandoned.
func (p *Poller) Await(ctx context.Context, job *model.Job, policy model.PollPolicy) (*model.Job, error) {
	if job == nil || job.ID == "" {
		return nil, &model.PollError{Reason: model.ReasonMalformed, Detail: "job without id"}
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	logger := mwlogger.LoggerFromContext(ctx)
	policy = normalize(policy)
	delays := &backoff.Config{Initial: policy.Interval, Max: policy.MaxInterval, Multiplier: policy.Multiplier}

	current := job
	start := p.now()
	attempts := 0

	// запросы статуса и паузы между ретраями не должны пережить MaxElapsed
	reqCtx := ctx
	if policy.MaxElapsed > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, policy.MaxElapsed)
		defer cancel()
	}

	for round := 1; ; round++ {
		delay := backoff.Exponential(round, delays)

		if policy.MaxElapsed > 0 {
			remaining := policy.MaxElapsed - p.now().Sub(start)
			if delay >= remaining {
				// следующий опрос уже за дедлайном - дожидаемся дедлайна и выходим
				if remaining > 0 {
					if err := p.sleep(ctx, remaining); err != nil {
						return nil, canceled(current.ID, err)
					}
				}
				return nil, p.timeout(current, attempts, start)
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, canceled(current.ID, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, canceled(current.ID, err)
		}

		next, err := p.refresh(reqCtx, current.ID, policy)
		attempts++
		if err != nil {
			if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
				return nil, p.timeout(current, attempts, start)
			}
			return nil, err
		}

		if next.Status != current.Status {
			logger.Info().Str("job_id", next.ID).Str("from", string(current.Status)).Str("to", string(next.Status)).Msg("Job status changed")
		}
		current = next

		if current.Status.IsTerminal() {
			return current, nil
		}
		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			return nil, p.timeout(current, attempts, start)
		}
	}
}

// refresh makes one status request, repeating it on temporary errors according to policy.StatusRetry
func (p *Poller) refresh(ctx context.Context, id string, policy model.PollPolicy) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	maxTries := max(policy.StatusRetry.Attempts, 1)
	delays := backoff.FromStrategy(policy.StatusRetry, policy.MaxInterval)

	for try := 1; ; try++ {
		job, err := p.client.Refresh(ctx, id)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// ответ мог прийти, но отмена уже запрошена - результат отбрасываем
			return nil, canceled(id, ctxErr)
		}
		if err == nil {
			if job.ID != id {
				return nil, &model.PollError{JobID: id, Reason: model.ReasonMalformed, Detail: "response for another job"}
			}
			return job, nil
		}

		var pe *model.PollError
		if !errors.As(err, &pe) {
			pe = &model.PollError{JobID: id, Reason: model.ReasonNetwork, Cause: err}
		}
		if !pe.Temporary() || try >= maxTries {
			return nil, pe
		}

		wait := backoff.Exponential(try, delays)
		logger.Warn().Err(pe).Str("job_id", id).Int("try", try).Dur("backoff", wait).Msg("Status request failed, retrying")
		if err := p.sleep(ctx, wait); err != nil {
			return nil, canceled(id, err)
		}
	}
}

func (p *Poller) timeout(job *model.Job, attempts int, start time.Time) error {
	return &model.PollTimeoutError{JobID: job.ID, Attempts: attempts, Elapsed: p.now().Sub(start), Last: job.Status}
}

func canceled(id string, cause error) error {
	return &model.PollError{JobID: id, Reason: model.ReasonCanceled, Cause: cause}
}

func normalize(policy model.PollPolicy) model.PollPolicy {
	if policy.Interval <= 0 {
		policy.Interval = model.DefaultPollPolicy.Interval
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	switch {
	case policy.MaxInterval <= 0:
		policy.MaxInterval = max(policy.Interval, model.DefaultPollPolicy.MaxInterval)
	case policy.MaxInterval < policy.Interval:
		policy.MaxInterval = policy.Interval
	}
	if policy.StatusRetry.Delay <= 0 {
		policy.StatusRetry.Delay = policy.Interval
	}
	return policy
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
