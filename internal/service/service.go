// Package service provides business-logic for the app
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	"github.com/UnendingLoop/ImageEvolver/internal/observability"
	"github.com/UnendingLoop/ImageEvolver/internal/orchestrator"
	"github.com/UnendingLoop/ImageEvolver/internal/repository"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// BlobLister - контракт для чтения опубликованных картинок из хранилища
type BlobLister interface {
	IsConfigured() bool
	List(ctx context.Context, prefix string) ([]model.GalleryItem, error)
	URL(key string) string
}

// Runner - один прогон эволюции
type Runner interface {
	Run(ctx context.Context, input map[string]any, policy model.PollPolicy, budget model.Budget, name string) (*model.PublishReceipt, error)
}

// RunnerFactory binds progress hook of one evolution to a runner.
type RunnerFactory func(hook orchestrator.Hook) Runner

type Config struct {
	PublishPrefix string
	PublishName   string
	Prompts       []string
	Policy        model.PollPolicy
	Budget        model.Budget
	OrphanAge     time.Duration
}

type EvolutionService struct {
	repo      repository.EvolutionRepo
	publisher TaskPublisher
	storage   BlobLister
	newRunner RunnerFactory
	metrics   *observability.Metrics
	cfg       Config
	now       func() time.Time
	pick      func(n int) int
}

// NewEvolutionService - strg may be nil when blob storage isn't configured, runner is needed by worker only
func NewEvolutionService(repo repository.EvolutionRepo, pub TaskPublisher, strg BlobLister, runner RunnerFactory, metrics *observability.Metrics, cfg Config) *EvolutionService {
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = []string{"evolve"}
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = 10 * time.Minute
	}
	return &EvolutionService{
		repo:      repo,
		publisher: pub,
		storage:   strg,
		newRunner: runner,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
		pick:      rand.IntN,
	}
}

// Стратегия ретрая отправки в очередь - можно потом вынести значения в конфиг/env
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

// Enqueue registers a new evolution and puts it to the task queue.
// Source image is the one from request or the latest published one.
func (s *EvolutionService) Enqueue(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if !s.storageReady() {
		return nil, model.ErrPublishDisabled
	}

	source, err := s.sourceImage(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = s.cfg.Prompts[s.pick(len(s.cfg.Prompts))]
	}

	now := s.now().UTC()
	evo := &model.Evolution{
		UID:       uuid.New(),
		Prompt:    prompt,
		SourceURL: source,
		Status:    model.RunQueued,
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	// шлем в базу
	if err := s.repo.Create(ctx, evo); err != nil {
		logger.Error().Err(err).Msg("Failed to create evolution in DB")
		return nil, model.ErrCommon500
	}

	// кладем в очередь задач(в кафку). Если не вышло - запись подберёт recovery-цикл
	if err := s.publisher.SendWithRetry(ctx, retryStrategy, []byte(evo.UID.String()), nil); err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to publish evolution %q to task-queue", evo.UID))
		return nil, model.ErrCommon500
	}

	s.metrics.RecordEnqueued(ctx)
	logger.Info().Str("uid", evo.UID.String()).Str("prompt", prompt).Str("source", source).Msg("Evolution queued")
	return evo, nil
}

func (s *EvolutionService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := s.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch evolutions list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (s *EvolutionService) Get(ctx context.Context, id string) (*model.Evolution, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrEvolutionNotFound) {
			return nil, err
		}
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch evolution %q from DB", id))
		return nil, model.ErrCommon500
	}

	return res, nil
}

// Gallery lists everything published under the prefix, newest first
func (s *EvolutionService) Gallery(ctx context.Context) ([]model.GalleryItem, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if !s.storageReady() {
		return nil, model.ErrPublishDisabled
	}

	prefix := ""
	if s.cfg.PublishPrefix != "" {
		prefix = s.cfg.PublishPrefix + "/"
	}

	items, err := s.storage.List(ctx, prefix)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list blobs in storage")
		return nil, model.ErrCommon500
	}

	slices.SortFunc(items, func(a, b model.GalleryItem) int {
		return b.LastModified.Compare(a.LastModified)
	})
	return items, nil
}

// Latest returns link to the latest published image with cache-busting version
func (s *EvolutionService) Latest(ctx context.Context) (string, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if !s.storageReady() {
		return "", model.ErrPublishDisabled
	}

	key := path.Join(s.cfg.PublishPrefix, s.cfg.PublishName)
	items, err := s.storage.List(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to look up latest image in storage")
		return "", model.ErrCommon500
	}

	for _, it := range items {
		if it.Name == s.cfg.PublishName {
			return it.URL + "?v=" + strconv.FormatInt(it.LastModified.Unix(), 10), nil
		}
	}
	return "", model.ErrNothingPublished
}

// ReviveOrphans re-enqueues evolutions stuck in queued/running state
func (s *EvolutionService) ReviveOrphans(ctx context.Context, limit int) {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := s.repo.FetchOrphans(ctx, s.cfg.OrphanAge, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return
	}

	revived := 0
	for _, v := range orphans {
		if err := s.publisher.SendWithRetry(ctx, retryStrategy, []byte(v), nil); err != nil {
			logger.Error().Err(err).Str("uid", v).Msg("Failed to publish orphan to queue")
			continue
		}
		revived++
	}

	if revived > 0 {
		logger.Info().Int("count", revived).Msg("Orphan evolutions re-enqueued")
	}
	s.metrics.RecordRevived(ctx, revived)
}

func (s *EvolutionService) storageReady() bool {
	return s.storage != nil && s.storage.IsConfigured()
}

func (s *EvolutionService) sourceImage(ctx context.Context, requested string) (string, error) {
	if requested = strings.TrimSpace(requested); requested != "" {
		if !validSourceURL(requested) {
			return "", model.ErrIncorrectSource
		}
		return requested, nil
	}

	latest, err := s.Latest(ctx)
	if errors.Is(err, model.ErrNothingPublished) {
		return "", model.ErrNoSeedImage
	}
	return latest, err
}
