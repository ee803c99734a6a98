// Package settings reads typed application settings from wbf config, defaults are registered in it
package settings

import (
	"log"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/storage/miniostorage"
	"github.com/wb-go/wbf/retry"
)

// Source - типизированный доступ к конфигу, *config.Config из wbf подходит как есть
type Source interface {
	SetDefault(key string, value any)
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

type Backend struct {
	BaseURL string
	Token   string
	Version string
	Timeout time.Duration
}

type Kafka struct {
	Broker  string
	Topic   string
	GroupID string
}

type Publish struct {
	Prefix string
	Name   string
	Retry  retry.Strategy
}

type Recovery struct {
	Every time.Duration
	Age   time.Duration
	Batch int
}

type Settings struct {
	AppPort     string
	MetricsPort string // worker only, empty - no metrics endpoint
	Workers     int
	GinMode     string
	LogLevel    string
	PostgresDSN string

	Kafka    Kafka
	Backend  Backend
	Poll     model.PollPolicy
	Budget   model.Budget
	Storage  miniostorage.Options
	Publish  Publish
	Recovery Recovery

	FetchTimeout time.Duration
	MaxDownload  int64
	Prompts      []string
}

// DefaultPrompts - prompts picked at random for every new evolution
var DefaultPrompts = []string{"evolve", "mutate", "regress", "change", "transform"}

// запас на стадии process и publish поверх самой долгой стадии прогона
const recoverySlack = time.Minute

var defaults = map[string]any{
	"APP_PORT":                 "8080",
	"METRICS_PORT":             "",
	"WORKER_CONCURRENCY":       1,
	"GIN_MODE":                 "release",
	"LOG_LEVEL":                "info",
	"POSTGRES_DSN":             "",
	"KAFKA_BROKER":             "localhost:9092",
	"KAFKA_TOPIC":              "evolutions",
	"KAFKA_GROUPID":            "evolver",
	"PREDICTION_API_URL":       "https://api.replicate.com/v1",
	"PREDICTION_API_TOKEN":     "",
	"PREDICTION_MODEL_VERSION": "",
	"PREDICTION_TIMEOUT":       30 * time.Second,
	"POLL_INTERVAL":            model.DefaultPollPolicy.Interval,
	"POLL_MULTIPLIER":          model.DefaultPollPolicy.Multiplier,
	"POLL_MAX_INTERVAL":        model.DefaultPollPolicy.MaxInterval,
	"POLL_MAX_ATTEMPTS":        model.DefaultPollPolicy.MaxAttempts,
	"POLL_MAX_ELAPSED":         model.DefaultPollPolicy.MaxElapsed,
	"POLL_STATUS_RETRIES":      model.DefaultPollPolicy.StatusRetry.Attempts,
	"POLL_STATUS_RETRY_DELAY":  model.DefaultPollPolicy.StatusRetry.Delay,
	"BUDGET_MAX_SIZE_BYTES":    model.DefaultBudget.MaxSizeBytes,
	"BUDGET_MAX_EDGE":          model.DefaultBudget.MaxLongestEdgePixels,
	"BUDGET_MAX_ITERATIONS":    model.DefaultBudget.MaxIterations,
	"MINIO_ENDPOINT":           "",
	"MINIO_USER":               "",
	"MINIO_PASS":               "",
	"BUCKET_NAME":              "evolve-images",
	"MINIO_USE_SSL":            false,
	"MINIO_PUBLIC_URL":         "",
	"MINIO_PUBLIC_READ":        true,
	"PUBLISH_PREFIX":           "First-images",
	"PUBLISH_NAME":             "newestCreation.jpg",
	"PUBLISH_RETRIES":          4,
	"PUBLISH_RETRY_DELAY":      500 * time.Millisecond,
	"RECOVERY_INTERVAL":        time.Minute,
	"RECOVERY_AGE":             10 * time.Minute,
	"RECOVERY_BATCH":           20,
	"FETCH_TIMEOUT":            time.Minute,
	"FETCH_MAX_BYTES":          int64(50 << 20),
	"EVOLVE_PROMPTS":           DefaultPrompts, // через пробел в env
}

// Load registers defaults in src and reads every setting of the app.
func Load(src Source) Settings {
	for k, v := range defaults {
		src.SetDefault(k, v)
	}

	s := Settings{
		AppPort:     src.GetString("APP_PORT"),
		MetricsPort: src.GetString("METRICS_PORT"),
		Workers:     positive(src.GetInt, "WORKER_CONCURRENCY"),
		GinMode:     src.GetString("GIN_MODE"),
		LogLevel:    src.GetString("LOG_LEVEL"),
		PostgresDSN: src.GetString("POSTGRES_DSN"),
		Kafka: Kafka{
			Broker:  src.GetString("KAFKA_BROKER"),
			Topic:   src.GetString("KAFKA_TOPIC"),
			GroupID: src.GetString("KAFKA_GROUPID"),
		},
		Backend: Backend{
			BaseURL: src.GetString("PREDICTION_API_URL"),
			Token:   src.GetString("PREDICTION_API_TOKEN"),
			Version: src.GetString("PREDICTION_MODEL_VERSION"),
			Timeout: positive(src.GetDuration, "PREDICTION_TIMEOUT"),
		},
		Poll: model.PollPolicy{
			Interval:    positive(src.GetDuration, "POLL_INTERVAL"),
			Multiplier:  positive(src.GetFloat64, "POLL_MULTIPLIER"),
			MaxInterval: positive(src.GetDuration, "POLL_MAX_INTERVAL"),
			MaxAttempts: src.GetInt("POLL_MAX_ATTEMPTS"), // 0 - без ограничения
			MaxElapsed:  positive(src.GetDuration, "POLL_MAX_ELAPSED"),
			StatusRetry: retry.Strategy{
				Attempts: positive(src.GetInt, "POLL_STATUS_RETRIES"),
				Delay:    positive(src.GetDuration, "POLL_STATUS_RETRY_DELAY"),
				Backoff:  model.DefaultPollPolicy.StatusRetry.Backoff,
			},
		},
		Budget: model.Budget{
			MaxSizeBytes:         positive(src.GetInt64, "BUDGET_MAX_SIZE_BYTES"),
			MaxLongestEdgePixels: positive(src.GetInt, "BUDGET_MAX_EDGE"),
			MaxIterations:        positive(src.GetInt, "BUDGET_MAX_ITERATIONS"),
		},
		Storage: miniostorage.Options{
			Endpoint:   src.GetString("MINIO_ENDPOINT"),
			AccessKey:  src.GetString("MINIO_USER"),
			SecretKey:  src.GetString("MINIO_PASS"),
			Bucket:     src.GetString("BUCKET_NAME"),
			UseSSL:     src.GetBool("MINIO_USE_SSL"),
			PublicURL:  src.GetString("MINIO_PUBLIC_URL"),
			PublicRead: src.GetBool("MINIO_PUBLIC_READ"),
		},
		Publish: Publish{
			Prefix: src.GetString("PUBLISH_PREFIX"),
			Name:   src.GetString("PUBLISH_NAME"),
			Retry: retry.Strategy{
				Attempts: positive(src.GetInt, "PUBLISH_RETRIES"),
				Delay:    positive(src.GetDuration, "PUBLISH_RETRY_DELAY"),
				Backoff:  2,
			},
		},
		Recovery: Recovery{
			Every: positive(src.GetDuration, "RECOVERY_INTERVAL"),
			Age:   positive(src.GetDuration, "RECOVERY_AGE"),
			Batch: positive(src.GetInt, "RECOVERY_BATCH"),
		},
		FetchTimeout: positive(src.GetDuration, "FETCH_TIMEOUT"),
		MaxDownload:  positive(src.GetInt64, "FETCH_MAX_BYTES"),
		Prompts:      src.GetStringSlice("EVOLVE_PROMPTS"),
	}
	if len(s.Prompts) == 0 {
		s.Prompts = DefaultPrompts
	}

	s.Recovery.Age = recoveryAge(s)
	return s
}

// MinRecoveryAge - running record younger than this may still belong to a live run:
// updated_at is touched at every stage start, the longest stage is bounded by the largest of these limits.
func MinRecoveryAge(s Settings) time.Duration {
	return max(s.Poll.MaxElapsed, s.Backend.Timeout, s.FetchTimeout) + recoverySlack
}

func recoveryAge(s Settings) time.Duration {
	minAge := MinRecoveryAge(s)
	if s.Recovery.Age < minAge {
		log.Printf("RECOVERY_AGE %v is shorter than the longest run stage, using %v", s.Recovery.Age, minAge)
		return minAge
	}
	return s.Recovery.Age
}

// positive reads key with getter; viper turns unparsable values into zero, those fall back to the default.
func positive[T int | int64 | float64 | time.Duration](get func(string) T, key string) T {
	v := get(key)
	if v > 0 {
		return v
	}

	def, _ := defaults[key].(T)
	log.Printf("Invalid value for %s, using default %v", key, def)
	return def
}
