// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type (
	Status     string
	RunStatus  string
	Stage      string
	StageEvent string
)

// Job statuses as seen locally
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Backend statuses as they come over the wire
const (
	BackendStarting   = "starting"
	BackendProcessing = "processing"
	BackendSucceeded  = "succeeded"
	BackendFailed     = "failed"
	BackendCanceled   = "canceled"
)

var backendStatusMap = map[string]Status{
	BackendStarting:   StatusPending,
	BackendProcessing: StatusRunning,
	BackendSucceeded:  StatusSucceeded,
	BackendFailed:     StatusFailed,
	BackendCanceled:   StatusCanceled,
}

// StatusFromBackend maps backend status onto local one; ok=false for unknown values.
func StatusFromBackend(s string) (Status, bool) {
	st, ok := backendStatusMap[s]
	return st, ok
}

func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Job - асинхронная задача на стороне бэкенда предсказаний
type Job struct {
	ID      string         `json:"id"`
	Status  Status         `json:"status"`
	Input   map[string]any `json:"input,omitempty"`
	Outputs []string       `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Output returns reference to the result artifact - the last produced output.
func (j *Job) Output() string {
	if len(j.Outputs) == 0 {
		return ""
	}
	return j.Outputs[len(j.Outputs)-1]
}

//---------------------

// PollPolicy - immutable configuration of the poll loop
type PollPolicy struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
	StatusRetry retry.Strategy // transient refresh errors
}

var DefaultPollPolicy = PollPolicy{
	Interval:    time.Second,
	Multiplier:  1,
	MaxInterval: 10 * time.Second,
	MaxElapsed:  5 * time.Minute,
	StatusRetry: retry.Strategy{Attempts: 3, Delay: 500 * time.Millisecond, Backoff: 2},
}

// Budget - limits for the processed artifact
type Budget struct {
	MaxSizeBytes         int64
	MaxLongestEdgePixels int
	MaxIterations        int
}

var DefaultBudget = Budget{
	MaxSizeBytes:         200_000,
	MaxLongestEdgePixels: 512,
	MaxIterations:        10,
}

type Artifact struct {
	Data        []byte
	ContentType string
	SizeBytes   int64
}

type PublishReceipt struct {
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
}

//---------------------

const (
	StageSubmit  Stage = "submit"
	StagePoll    Stage = "poll"
	StageJob     Stage = "job"
	StageProcess Stage = "process"
	StagePublish Stage = "publish"
)

const (
	EventStarted  StageEvent = "started"
	EventFinished StageEvent = "finished"
	EventFailed   StageEvent = "failed"
)

// Progress - notification about stage transition of one orchestration run
type Progress struct {
	Stage Stage      `json:"stage"`
	Event StageEvent `json:"event"`
	Job   *Job       `json:"job,omitempty"`
	Err   error      `json:"-"`
	At    time.Time  `json:"at"`
}

//---------------------

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunPublished RunStatus = "published"
	RunFailed    RunStatus = "failed"
)

// Evolution - запись истории одного запуска "submit → wait → process → publish"
type Evolution struct {
	UID         uuid.UUID   `json:"uid"`
	Prompt      string      `json:"prompt"`
	SourceURL   string      `json:"source_url,omitempty"`
	JobID       string      `json:"job_id,omitempty"`
	Status      RunStatus   `json:"status"`
	Stage       Stage       `json:"stage,omitempty"`
	Outputs     StringSlice `json:"outputs,omitempty"`
	ResultURL   string      `json:"result_url,omitempty"`
	ErrMsg      string      `json:"error,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
}

// EvolveRequest - тело POST /evolutions, оба поля опциональны
type EvolveRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

type ListRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
	Order string `form:"order"`
}

const (
	ByUUID    = "uid"
	ByCreated = "created"
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

// GalleryItem - one blob of the publish container
type GalleryItem struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
)

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	GIF:  true,
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
}

//--------------------

type StringSlice []string

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for StringSlice")
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to []StringSlice: %w", err)
	}
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return []byte(`[]`), nil
	}
	res, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal []StringSlice to JSONB: %w", err)
	}

	return res, nil
}
