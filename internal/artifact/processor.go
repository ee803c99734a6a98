// Package artifact fetches job results and prepares them for publishing
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/imageproc"
	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	"github.com/gabriel-vasile/mimetype"
)

const defaultMaxDownload = 50 << 20

type Processor struct {
	http        *http.Client
	maxDownload int64
}

// NewProcessor - timeout bounds the download of one artifact, maxDownload caps its size in bytes
func NewProcessor(timeout time.Duration, maxDownload int64) *Processor {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownload
	}
	return &Processor{http: &http.Client{Timeout: timeout}, maxDownload: maxDownload}
}

// Process downloads artifact by reference, validates it and reduces it within budget.
func (p *Processor) Process(ctx context.Context, ref string, budget model.Budget) (*model.Artifact, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	data, err := p.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	ctype, err := validate(data)
	if err != nil {
		return nil, err
	}

	res, err := imageproc.Compress(data, budget)
	if err != nil {
		return nil, &model.ProcessingError{Reason: model.ReasonDecode, Detail: ctype, Cause: err}
	}
	if !res.WithinLimit {
		logger.Warn().Int("size", len(res.Data)).Int64("max_size", budget.MaxSizeBytes).Msg("Artifact is still over budget, publishing best effort")
	}

	logger.Info().
		Int("fetched_bytes", len(data)).
		Int("processed_bytes", len(res.Data)).
		Int("width", res.Width).
		Int("height", res.Height).
		Msg("Artifact processed")

	return &model.Artifact{Data: res.Data, ContentType: res.ContentType, SizeBytes: int64(len(res.Data))}, nil
}

func (p *Processor) fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, &model.FetchError{Ref: ref, Cause: fmt.Errorf("empty artifact reference")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, http.NoBody)
	if err != nil {
		return nil, &model.FetchError{Ref: ref, Cause: err}
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &model.FetchError{Ref: ref, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.FetchError{Ref: ref, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxDownload+1))
	if err != nil {
		return nil, &model.FetchError{Ref: ref, StatusCode: resp.StatusCode, Cause: err}
	}
	if int64(len(data)) > p.maxDownload {
		return nil, &model.ProcessingError{Reason: model.ReasonTooLarge, Detail: fmt.Sprintf("artifact exceeds %d bytes", p.maxDownload)}
	}
	return data, nil
}

// validate sniffs content type from the payload, response headers are ignored
func validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &model.ProcessingError{Reason: model.ReasonEmpty}
	}

	mime := mimetype.Detect(data)
	for ctype := range model.InImageTypeMap {
		if mime.Is(ctype) {
			return ctype, nil
		}
	}
	return "", &model.ProcessingError{Reason: model.ReasonUnsupportedType, Detail: mime.String()}
}
