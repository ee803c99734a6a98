package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

var errConnReset = errors.New("connection reset by peer")

func newTestPublisher(store BlobStore, attempts int) (*Publisher, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	p := NewPublisher(store, "First-images", retry.Strategy{Attempts: attempts, Delay: 100 * time.Millisecond, Backoff: 2})
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
	return p, sleeps
}

func artifact() *model.Artifact {
	return &model.Artifact{Data: []byte("jpeg-bytes"), ContentType: model.JPEG, SizeBytes: 10}
}

func TestPublish_Success(t *testing.T) {
	store := newMemStore()
	p, sleeps := newTestPublisher(store, 3)

	rec, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	require.NoError(t, err)
	require.Equal(t, "http://blob.local/evolve-images/First-images/newestCreation.jpg", rec.URL)
	require.Equal(t, "newestCreation.jpg", rec.Name)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), rec.PublishedAt)
	require.Equal(t, []byte("jpeg-bytes"), store.objects["First-images/newestCreation.jpg"])
	require.Equal(t, model.JPEG, store.ctypes["First-images/newestCreation.jpg"])
	require.Empty(t, *sleeps)
}

func TestPublish_SameNameOverwrites(t *testing.T) {
	store := newMemStore()
	p, _ := newTestPublisher(store, 1)

	first, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	require.NoError(t, err)

	second, err := p.Publish(context.Background(), &model.Artifact{Data: []byte("newer"), ContentType: model.JPEG}, "newestCreation.jpg")
	require.NoError(t, err)

	require.Equal(t, first.URL, second.URL)
	require.Len(t, store.objects, 1)
	require.Equal(t, []byte("newer"), store.objects["First-images/newestCreation.jpg"])
}

func TestPublish_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name   string
		art    *model.Artifact
		blob   string
		reason model.Reason
	}{
		{"empty name", artifact(), "", model.ReasonInvalidName},
		{"path traversal", artifact(), "../etc/passwd", model.ReasonInvalidName},
		{"nested path", artifact(), "a/b.jpg", model.ReasonInvalidName},
		{"spaces", artifact(), "my image.jpg", model.ReasonInvalidName},
		{"nil artifact", nil, "ok.jpg", model.ReasonEmpty},
		{"empty data", &model.Artifact{ContentType: model.JPEG}, "ok.jpg", model.ReasonEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			p, _ := newTestPublisher(store, 3)

			_, err := p.Publish(context.Background(), tt.art, tt.blob)
			var pe *model.PublishError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.reason, pe.Reason)
			require.Zero(t, store.PutCalls())
		})
	}
}

func TestPublish_NotConfigured(t *testing.T) {
	store := newMemStore()
	store.configured = false
	p, _ := newTestPublisher(store, 3)

	require.False(t, p.IsConfigured())
	_, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	require.ErrorIs(t, err, model.ErrPublishDisabled)
	require.Zero(t, store.PutCalls())

	require.False(t, NewPublisher(nil, "", DefaultStrategy).IsConfigured())
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	store := newMemStore()
	store.putErrs = []error{errConnReset, errConnReset}
	p, sleeps := newTestPublisher(store, 4)

	rec, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 3, store.PutCalls())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
	// тело целиком доходит и на повторной попытке
	require.Equal(t, []byte("jpeg-bytes"), store.objects["First-images/newestCreation.jpg"])
}

func TestPublish_RetriesExhausted(t *testing.T) {
	store := newMemStore()
	store.putErrs = []error{errConnReset, errConnReset, errConnReset}
	p, sleeps := newTestPublisher(store, 3)

	_, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, model.ReasonNetwork, pe.Reason)
	require.ErrorIs(t, err, errConnReset)
	require.Equal(t, 3, store.PutCalls())
	require.Len(t, *sleeps, 2)
	require.Empty(t, store.objects)
}

func TestPublish_RejectedNotRetried(t *testing.T) {
	store := newMemStore()
	store.putErrs = []error{fmt.Errorf("%w: AccessDenied", model.ErrBlobRejected)}
	p, sleeps := newTestPublisher(store, 5)

	_, err := p.Publish(context.Background(), artifact(), "newestCreation.jpg")
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, model.ReasonRejected, pe.Reason)
	require.Equal(t, 1, store.PutCalls())
	require.Empty(t, *sleeps)
}

func TestPublish_CanceledContext(t *testing.T) {
	store := newMemStore()
	p, _ := newTestPublisher(store, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Publish(ctx, artifact(), "newestCreation.jpg")
	var pe *model.PublishError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, model.ReasonCanceled, pe.Reason)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, store.PutCalls())
}

func TestPublish_CanceledDuringBackoff(t *testing.T) {
	store := newMemStore()
	store.putErrs = []error{errConnReset}
	p, _ := newTestPublisher(store, 3)

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := p.Publish(ctx, artifact(), "newestCreation.jpg")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, store.PutCalls())
}

func TestKey(t *testing.T) {
	require.Equal(t, "First-images/a.jpg", NewPublisher(nil, "First-images", DefaultStrategy).Key("a.jpg"))
	require.Equal(t, "a.jpg", NewPublisher(nil, "", DefaultStrategy).Key("a.jpg"))
}
