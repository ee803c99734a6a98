// Package orchestrator runs one "submit → wait → process → publish" evolution end to end
package orchestrator

import (
	"context"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
)

type Submitter interface {
	Submit(ctx context.Context, input map[string]any) (*model.Job, error)
}

type Awaiter interface {
	Await(ctx context.Context, job *model.Job, policy model.PollPolicy) (*model.Job, error)
}

type Processor interface {
	Process(ctx context.Context, ref string, budget model.Budget) (*model.Artifact, error)
}

type Publisher interface {
	IsConfigured() bool
	Publish(ctx context.Context, art *model.Artifact, name string) (*model.PublishReceipt, error)
}

// Hook receives stage transitions of a run. It is called synchronously from Run.
type Hook func(ctx context.Context, p model.Progress)

type Orchestrator struct {
	submitter Submitter
	awaiter   Awaiter
	processor Processor
	publisher Publisher
	hook      Hook
	now       func() time.Time
}

func NewOrchestrator(s Submitter, a Awaiter, proc Processor, pub Publisher) *Orchestrator {
	return &Orchestrator{submitter: s, awaiter: a, processor: proc, publisher: pub, now: time.Now}
}

// WithHook returns a copy of orchestrator reporting progress to hook.
func (o *Orchestrator) WithHook(hook Hook) *Orchestrator {
	cp := *o
	cp.hook = hook
	return &cp
}

// Run performs one evolution. Stages are strictly sequential, every failure is returned
// as *model.OrchestrationError tagged with the stage that produced it.
func (o *Orchestrator) Run(ctx context.Context, input map[string]any, policy model.PollPolicy, budget model.Budget, name string) (*model.PublishReceipt, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	// без хранилища результат некуда деть - не тратим квоту бэкенда
	if o.publisher == nil || !o.publisher.IsConfigured() {
		return nil, o.fail(ctx, model.StagePublish, nil, model.ErrPublishDisabled)
	}

	o.emit(ctx, model.StageSubmit, model.EventStarted, nil, nil)
	job, err := o.submitter.Submit(ctx, input)
	if err != nil {
		return nil, o.fail(ctx, model.StageSubmit, nil, err)
	}
	o.emit(ctx, model.StageSubmit, model.EventFinished, job, nil)

	o.emit(ctx, model.StagePoll, model.EventStarted, job, nil)
	job, err = o.awaiter.Await(ctx, job, policy)
	if err != nil {
		return nil, o.fail(ctx, model.StagePoll, nil, err)
	}
	o.emit(ctx, model.StagePoll, model.EventFinished, job, nil)

	if job.Status != model.StatusSucceeded {
		return nil, o.fail(ctx, model.StageJob, job, &model.JobFailedError{JobID: job.ID, Status: job.Status, Message: job.Error})
	}

	o.emit(ctx, model.StageProcess, model.EventStarted, job, nil)
	art, err := o.processor.Process(ctx, job.Output(), budget)
	if err != nil {
		return nil, o.fail(ctx, model.StageProcess, job, err)
	}
	o.emit(ctx, model.StageProcess, model.EventFinished, job, nil)

	o.emit(ctx, model.StagePublish, model.EventStarted, job, nil)
	receipt, err := o.publisher.Publish(ctx, art, name)
	if err != nil {
		return nil, o.fail(ctx, model.StagePublish, job, err)
	}
	o.emit(ctx, model.StagePublish, model.EventFinished, job, nil)

	logger.Info().Str("job_id", job.ID).Str("url", receipt.URL).Int64("size", art.SizeBytes).Msg("Evolution published")
	return receipt, nil
}

func (o *Orchestrator) fail(ctx context.Context, stage model.Stage, job *model.Job, cause error) error {
	err := &model.OrchestrationError{Stage: stage, Cause: cause}
	o.emit(ctx, stage, model.EventFailed, job, err)

	logger := mwlogger.LoggerFromContext(ctx)
	logger.Error().Err(cause).Str("stage", string(stage)).Msg("Evolution failed")
	return err
}

func (o *Orchestrator) emit(ctx context.Context, stage model.Stage, event model.StageEvent, job *model.Job, err error) {
	if o.hook == nil {
		return
	}
	o.hook(ctx, model.Progress{Stage: stage, Event: event, Job: job, Err: err, At: o.now().UTC()})
}
