package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCommon500         error = errors.New("something went wrong. Try again later")                             // 500
	ErrIncorrectQuery    error = errors.New("incorrect query parameters")                                        // 400
	ErrIncorrectID       error = errors.New("incorrect evolution UUID")                                          // 400
	ErrEvolutionNotFound error = errors.New("specified evolution UUID doesn't exist")                            // 404
	ErrNothingPublished  error = errors.New("no image has been published yet")                                   // 404
	ErrPublishDisabled   error = errors.New("blob storage is not configured")                                    // 503
	ErrEmptyInput        error = errors.New("job input must contain at least one param")                         // 400
	ErrNoSeedImage       error = errors.New("nothing to evolve: no image published yet and no 'image' provided") // 409
	ErrIncorrectSource   error = errors.New("'image' must be an absolute http(s) URL")                           // 400
	ErrBlobRejected      error = errors.New("blob store rejected the request")
)

// Reason - discriminant of typed stage errors
type Reason string

const (
	ReasonNetwork         Reason = "network"
	ReasonBackendRejected Reason = "backend-rejected"
	ReasonMalformed       Reason = "malformed-response"
	ReasonCanceled        Reason = "canceled"
	ReasonInvalidInput    Reason = "invalid-input"
	ReasonEmpty           Reason = "empty"
	ReasonUnsupportedType Reason = "unsupported-type"
	ReasonDecode          Reason = "decode"
	ReasonTooLarge        Reason = "too-large"
	ReasonRejected        Reason = "rejected"
	ReasonInvalidName     Reason = "invalid-name"
	ReasonDisabled        Reason = "disabled"
)

type SubmissionError struct {
	Reason     Reason
	StatusCode int
	Detail     string
	Cause      error
}

func (e *SubmissionError) Error() string {
	return describe("submit job", e.Reason, e.StatusCode, e.Detail, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

type PollError struct {
	JobID      string
	Reason     Reason
	StatusCode int
	Detail     string
	Cause      error
}

func (e *PollError) Error() string {
	return describe(fmt.Sprintf("poll job %q", e.JobID), e.Reason, e.StatusCode, e.Detail, e.Cause)
}

func (e *PollError) Unwrap() error { return e.Cause }

// Temporary reports whether the status request is worth repeating.
func (e *PollError) Temporary() bool {
	switch {
	case e.Reason == ReasonNetwork:
		return true
	case e.Reason == ReasonBackendRejected:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

type PollTimeoutError struct {
	JobID    string
	Attempts int
	Elapsed  time.Duration
	Last     Status
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("job %q is still %s after %d status requests in %v", e.JobID, e.Last, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

type FetchError struct {
	Ref        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch artifact %q: %v", e.Ref, e.Cause)
	}
	return fmt.Sprintf("fetch artifact %q: unexpected status %d", e.Ref, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Cause }

type ProcessingError struct {
	Reason Reason
	Detail string
	Cause  error
}

func (e *ProcessingError) Error() string {
	return describe("process artifact", e.Reason, 0, e.Detail, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

type PublishError struct {
	Name   string
	Reason Reason
	Cause  error
}

func (e *PublishError) Error() string {
	return describe(fmt.Sprintf("publish %q", e.Name), e.Reason, 0, "", e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// JobFailedError - backend reached terminal non-success status
type JobFailedError struct {
	JobID   string
	Status  Status
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("job %q finished with status %s", e.JobID, e.Status)
}

// OrchestrationError - failure of one run, tagged with the stage that produced it
type OrchestrationError struct {
	Stage Stage
	Cause error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Cause)
}

func (e *OrchestrationError) Unwrap() error { return e.Cause }

func describe(op string, reason Reason, code int, detail string, cause error) string {
	msg := fmt.Sprintf("%s failed (%s)", op, reason)
	if code != 0 {
		msg += fmt.Sprintf(" status %d", code)
	}
	if detail != "" {
		msg += ": " + detail
	}
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return msg
}
