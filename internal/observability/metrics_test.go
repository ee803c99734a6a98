package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_RecordsRuns(t *testing.T) {
	ctx := context.Background()
	m, h, err := NewMetrics()
	require.NoError(t, err)

	m.RecordEnqueued(ctx)
	m.RecordRunStarted(ctx)
	m.RecordRunFinished(ctx, nil, 12*time.Second)
	m.RecordRunStarted(ctx)
	m.RecordRunFinished(ctx, &model.OrchestrationError{Stage: model.StageJob, Cause: errors.New("OOM")}, 3*time.Second)
	m.RecordRunStarted(ctx)
	m.RecordRunAborted(ctx)
	m.RecordRevived(ctx, 2)

	body := scrape(t, h)
	require.Contains(t, body, "evolution_runs_total")
	require.Contains(t, body, `outcome="published"`)
	require.Contains(t, body, `outcome="failed"`)
	require.Contains(t, body, `stage="job"`)
	require.Contains(t, body, "evolution_run_duration_seconds")
	require.Contains(t, body, "evolution_revived_orphans_total")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	_, _, err := NewMetrics()
	require.NoError(t, err)
	_, _, err = NewMetrics()
	require.NoError(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	require.NotPanics(t, func() {
		m.RecordRunStarted(ctx)
		m.RecordRunFinished(ctx, errors.New("x"), time.Second)
		m.RecordRunAborted(ctx)
		m.RecordEnqueued(ctx)
		m.RecordRevived(ctx, 1)
	})
}
