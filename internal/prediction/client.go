// Package prediction provides HTTP-client for the asynchronous prediction backend
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
)

const maxBodySize = 1 << 20

type Client struct {
	baseURL string
	token   string
	version string
	http    *http.Client
}

// NewClient - timeout bounds every single request to the backend
func NewClient(baseURL, token, version string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		version: version,
		http:    &http.Client{Timeout: timeout},
	}
}

type createRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

// prediction - тело ответа бэкенда. output бывает строкой или массивом строк
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Input  map[string]any  `json:"input"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Submit creates a new prediction job. Exactly one outbound request is made.
func (c *Client) Submit(ctx context.Context, input map[string]any) (*model.Job, error) {
	if len(input) == 0 {
		return nil, &model.SubmissionError{Reason: model.ReasonInvalidInput, Cause: model.ErrEmptyInput}
	}

	body, err := json.Marshal(createRequest{Version: c.version, Input: input})
	if err != nil {
		return nil, &model.SubmissionError{Reason: model.ReasonInvalidInput, Cause: err}
	}

	code, raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", body)
	if err != nil {
		return nil, &model.SubmissionError{Reason: model.ReasonNetwork, Cause: err}
	}
	if code < 200 || code > 299 {
		return nil, &model.SubmissionError{Reason: model.ReasonBackendRejected, StatusCode: code, Detail: detailOf(raw)}
	}

	job, err := decodeJob(raw)
	if err != nil {
		return nil, &model.SubmissionError{Reason: model.ReasonMalformed, StatusCode: code, Cause: err}
	}
	if job.Input == nil {
		job.Input = input
	}

	logger := mwlogger.LoggerFromContext(ctx)
	logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Prediction job submitted")
	return job, nil
}

// Refresh fetches current state of the job.
func (c *Client) Refresh(ctx context.Context, id string) (*model.Job, error) {
	code, raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, &model.PollError{JobID: id, Reason: model.ReasonNetwork, Cause: err}
	}
	if code != http.StatusOK {
		return nil, &model.PollError{JobID: id, Reason: model.ReasonBackendRejected, StatusCode: code, Detail: detailOf(raw)}
	}

	job, err := decodeJob(raw)
	if err != nil {
		return nil, &model.PollError{JobID: id, Reason: model.ReasonMalformed, StatusCode: code, Cause: err}
	}
	if job.ID != id {
		return nil, &model.PollError{JobID: id, Reason: model.ReasonMalformed, Detail: fmt.Sprintf("response carries job %q", job.ID)}
	}
	return job, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func decodeJob(raw []byte) (*model.Job, error) {
	var p prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("prediction without id")
	}

	status, ok := model.StatusFromBackend(p.Status)
	if !ok {
		return nil, fmt.Errorf("unknown prediction status %q", p.Status)
	}

	outputs, err := decodeOutputs(p.Output)
	if err != nil {
		return nil, err
	}

	return &model.Job{
		ID:      p.ID,
		Status:  status,
		Input:   p.Input,
		Outputs: outputs,
		Error:   rawText(p.Error),
	}, nil
}

func decodeOutputs(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("unsupported prediction output: %s", raw)
	}
	return []string{single}, nil
}

// rawText renders error field: plain string as is, anything else as JSON
func rawText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func detailOf(raw []byte) string {
	var p struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &p); err == nil && p.Detail != "" {
		return p.Detail
	}
	return strings.TrimSpace(string(raw))
}
