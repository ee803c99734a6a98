package service

import (
	"context"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/orchestrator"
	"github.com/wb-go/wbf/retry"
)

// MOCK RESPOSITORY

type mockRepo struct {
	createFn         func(ctx context.Context, e *model.Evolution) error
	getFn            func(ctx context.Context, id string) (*model.Evolution, error)
	getListFn        func(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error)
	updateProgressFn func(ctx context.Context, id string, st model.RunStatus, stage model.Stage, jobID string) error
	saveResultFn     func(ctx context.Context, e *model.Evolution) error
	fetchOrphansFn   func(ctx context.Context, age time.Duration, limit int) ([]string, error)
}

func (m *mockRepo) Create(ctx context.Context, e *model.Evolution) error {
	return m.createFn(ctx, e)
}

func (m *mockRepo) Get(ctx context.Context, id string) (*model.Evolution, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
	return m.getListFn(ctx, req)
}

func (m *mockRepo) UpdateProgress(ctx context.Context, id string, st model.RunStatus, stage model.Stage, jobID string) error {
	return m.updateProgressFn(ctx, id, st, stage, jobID)
}

func (m *mockRepo) SaveResult(ctx context.Context, e *model.Evolution) error {
	return m.saveResultFn(ctx, e)
}

func (m *mockRepo) FetchOrphans(ctx context.Context, age time.Duration, limit int) ([]string, error) {
	return m.fetchOrphansFn(ctx, age, limit)
}

// MOCK STORAGE

type mockStorage struct {
	configured bool
	listFn     func(ctx context.Context, prefix string) ([]model.GalleryItem, error)
}

func (m *mockStorage) IsConfigured() bool { return m.configured }

func (m *mockStorage) List(ctx context.Context, prefix string) ([]model.GalleryItem, error) {
	return m.listFn(ctx, prefix)
}

func (m *mockStorage) URL(key string) string {
	return "http://blob.local/evolve-images/" + key
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

// MOCK RUNNER - вызывает hook с заранее заданными событиями и возвращает результат

type mockRunner struct {
	events  []model.Progress
	receipt *model.PublishReceipt
	err     error
	hook    orchestrator.Hook
	input   map[string]any
	onRun   func()
}

func (m *mockRunner) factory(hook orchestrator.Hook) Runner {
	m.hook = hook
	return m
}

func (m *mockRunner) Run(ctx context.Context, input map[string]any, _ model.PollPolicy, _ model.Budget, _ string) (*model.PublishReceipt, error) {
	m.input = input
	for _, e := range m.events {
		m.hook(ctx, e)
	}
	if m.onRun != nil {
		m.onRun()
	}
	return m.receipt, m.err
}
