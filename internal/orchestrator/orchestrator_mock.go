package orchestrator

import (
	"context"
	"io"
	"sync"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/storage/miniostorage"
)

type submitterMock struct {
	SubmitFn func(ctx context.Context, input map[string]any) (*model.Job, error)
}

func (m *submitterMock) Submit(ctx context.Context, input map[string]any) (*model.Job, error) {
	return m.SubmitFn(ctx, input)
}

type awaiterMock struct {
	AwaitFn func(ctx context.Context, job *model.Job, policy model.PollPolicy) (*model.Job, error)
}

func (m *awaiterMock) Await(ctx context.Context, job *model.Job, policy model.PollPolicy) (*model.Job, error) {
	return m.AwaitFn(ctx, job, policy)
}

type processorMock struct {
	ProcessFn func(ctx context.Context, ref string, budget model.Budget) (*model.Artifact, error)
}

func (m *processorMock) Process(ctx context.Context, ref string, budget model.Budget) (*model.Artifact, error) {
	return m.ProcessFn(ctx, ref, budget)
}

type publisherMock struct {
	Configured bool
	calls      int
	PublishFn  func(ctx context.Context, art *model.Artifact, name string) (*model.PublishReceipt, error)
}

func (m *publisherMock) IsConfigured() bool { return m.Configured }

func (m *publisherMock) Publish(ctx context.Context, art *model.Artifact, name string) (*model.PublishReceipt, error) {
	m.calls++
	return m.PublishFn(ctx, art, name)
}

// blobStoreMock - in-memory publisher.BlobStore for end-to-end runs
type blobStoreMock struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *blobStoreMock) IsConfigured() bool { return true }

func (b *blobStoreMock) Put(_ context.Context, key string, _ int64, _ string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return nil
}

func (b *blobStoreMock) URL(key string) string {
	return miniostorage.ObjectURL("http://blob.local", "evolve-images", key)
}
