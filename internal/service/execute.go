package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	"github.com/UnendingLoop/ImageEvolver/internal/repository"
	"github.com/google/uuid"
)

// BuildInput - параметры запроса к модели для одной эволюции
func BuildInput(prompt, image string) map[string]any {
	return map[string]any{
		"image":               image,
		"prompt":              prompt,
		"prompt_strength":     0.5,
		"num_outputs":         1,
		"num_inference_steps": 25,
		"guidance_scale":      7.5,
	}
}

// Execute runs one queued evolution and records its outcome.
// A failed run is a recorded result, not an error: errors are returned only when the outcome couldn't be
// stored or the run was interrupted, so the task stays in the queue.
func (s *EvolutionService) Execute(ctx context.Context, id string) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}
	logger := mwlogger.LoggerFromContext(ctx)

	evo, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrEvolutionNotFound) {
			return err
		}
		return fmt.Errorf("failed to fetch evolution %q from DB: %w", id, err)
	}

	switch evo.Status {
	case model.RunPublished, model.RunFailed:
		logger.Info().Str("uid", id).Str("status", string(evo.Status)).Msg("Evolution already finished, skipping")
		return nil
	}
	if s.newRunner == nil {
		return errors.New("evolution runner is not configured")
	}

	tracker := &runTracker{repo: s.repo, id: id}
	start := s.now()
	s.metrics.RecordRunStarted(ctx)

	receipt, runErr := s.newRunner(tracker.hook).Run(ctx, BuildInput(evo.Prompt, evo.SourceURL), s.cfg.Policy, s.cfg.Budget, s.cfg.PublishName)
	if runErr != nil && ctx.Err() != nil {
		// остановка воркера: запись остаётся running, её перезапустит recovery
		s.metrics.RecordRunAborted(ctx)
		return fmt.Errorf("evolution %q interrupted: %w", id, errors.Join(ctx.Err(), runErr))
	}

	now := s.now().UTC()
	evo.UpdatedAt = &now
	if tracker.job != nil {
		evo.JobID = tracker.job.ID
		evo.Outputs = tracker.job.Outputs
	}

	if runErr != nil {
		evo.Status = model.RunFailed
		evo.Stage = tracker.stage
		var oe *model.OrchestrationError
		if errors.As(runErr, &oe) {
			evo.Stage = oe.Stage
		}
		evo.ErrMsg = runErr.Error()
	} else {
		evo.Status = model.RunPublished
		evo.Stage = model.StagePublish
		evo.ResultURL = receipt.URL
		evo.PublishedAt = &receipt.PublishedAt
		evo.ErrMsg = ""
	}
	s.metrics.RecordRunFinished(ctx, runErr, now.Sub(start))

	if err := s.repo.SaveResult(ctx, evo); err != nil {
		return fmt.Errorf("failed to save result of evolution %q: %w", id, err)
	}

	logger.Info().Str("uid", id).Str("status", string(evo.Status)).Str("stage", string(evo.Stage)).Msg("Evolution finished")
	return nil
}

// runTracker mirrors stage transitions of one run into the repository
type runTracker struct {
	repo  repository.EvolutionRepo
	id    string
	job   *model.Job
	stage model.Stage
}

func (t *runTracker) hook(ctx context.Context, p model.Progress) {
	if p.Job != nil {
		t.job = p.Job
	}
	if p.Event != model.EventStarted {
		return
	}

	t.stage = p.Stage
	jobID := ""
	if t.job != nil {
		jobID = t.job.ID
	}

	if err := t.repo.UpdateProgress(ctx, t.id, model.RunRunning, p.Stage, jobID); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Str("uid", t.id).Str("stage", string(p.Stage)).Msg("Failed to record evolution progress")
	}
}
