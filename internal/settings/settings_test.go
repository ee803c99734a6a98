package settings

import (
	"testing"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/config"
)

func newConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	c := config.New()
	c.EnableEnv("")
	return c
}

func TestLoad_Defaults(t *testing.T) {
	s := Load(newConfig(t, nil))

	require.Equal(t, "8080", s.AppPort)
	require.Empty(t, s.MetricsPort)
	require.Equal(t, 1, s.Workers)
	require.Equal(t, model.DefaultBudget, s.Budget)
	require.Equal(t, model.DefaultPollPolicy, s.Poll)
	require.Equal(t, "First-images", s.Publish.Prefix)
	require.Equal(t, "newestCreation.jpg", s.Publish.Name)
	require.Equal(t, "evolve-images", s.Storage.Bucket)
	require.True(t, s.Storage.PublicRead)
	require.False(t, s.Storage.Configured())
	require.Equal(t, DefaultPrompts, s.Prompts)
	require.Equal(t, 10*time.Minute, s.Recovery.Age)
	require.Equal(t, int64(50<<20), s.MaxDownload)
}

func TestLoad_Overrides(t *testing.T) {
	s := Load(newConfig(t, map[string]string{
		"POLL_INTERVAL":         "250ms",
		"POLL_MULTIPLIER":       "1.5",
		"POLL_MAX_ATTEMPTS":     "12",
		"BUDGET_MAX_SIZE_BYTES": "100000",
		"MINIO_ENDPOINT":        "minio:9000",
		"MINIO_USER":            "user",
		"MINIO_PASS":            "pass",
		"MINIO_USE_SSL":         "true",
		"EVOLVE_PROMPTS":        "grow  shrink",
		"WORKER_CONCURRENCY":    "4",
	}))

	require.Equal(t, 250*time.Millisecond, s.Poll.Interval)
	require.Equal(t, 1.5, s.Poll.Multiplier)
	require.Equal(t, 12, s.Poll.MaxAttempts)
	require.Equal(t, int64(100000), s.Budget.MaxSizeBytes)
	require.True(t, s.Storage.UseSSL)
	require.True(t, s.Storage.Configured())
	require.Equal(t, []string{"grow", "shrink"}, s.Prompts)
	require.Equal(t, 4, s.Workers)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	s := Load(newConfig(t, map[string]string{
		"POLL_INTERVAL":      "3 parsecs",
		"BUDGET_MAX_EDGE":    "wide",
		"WORKER_CONCURRENCY": "-2",
		"FETCH_MAX_BYTES":    "0",
	}))

	require.Equal(t, model.DefaultPollPolicy.Interval, s.Poll.Interval)
	require.Equal(t, model.DefaultBudget.MaxLongestEdgePixels, s.Budget.MaxLongestEdgePixels)
	require.Equal(t, 1, s.Workers)
	require.Equal(t, int64(50<<20), s.MaxDownload)
}

func TestLoad_RecoveryAgeOutlivesLongestStage(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want time.Duration
	}{
		{"long enough", map[string]string{"RECOVERY_AGE": "30m"}, 30 * time.Minute},
		{"shorter than poll", map[string]string{"RECOVERY_AGE": "2m"}, 5*time.Minute + recoverySlack},
		{
			"poll raised",
			map[string]string{"RECOVERY_AGE": "10m", "POLL_MAX_ELAPSED": "15m"},
			15*time.Minute + recoverySlack,
		},
		{
			"fetch is the longest",
			map[string]string{"RECOVERY_AGE": "1m", "POLL_MAX_ELAPSED": "1m", "FETCH_TIMEOUT": "3m"},
			3*time.Minute + recoverySlack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Load(newConfig(t, tt.env))

			require.Equal(t, tt.want, s.Recovery.Age)
			require.Greater(t, s.Recovery.Age, s.Poll.MaxElapsed)
			require.GreaterOrEqual(t, s.Recovery.Age, MinRecoveryAge(s))
		})
	}
}
