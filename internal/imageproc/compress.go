// Package imageproc provides size/dimension reduction of images within a budget.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/disintegration/imaging"
)

// qualitySteps - JPEG qualities tried in order before the image is downscaled further
var qualitySteps = []int{85, 75, 65, 55, 45, 35}

const scaleStep = 0.8

type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	WithinLimit bool
}

// Compress brings the encoded image within budget. Already compliant input is returned untouched,
// so applying Compress to its own output is a no-op; best-effort output is stamped with the budget
// and returned untouched on the next pass with the same budget. The result never has larger dimensions or size
// than the input; when the budget cannot be met in budget.MaxIterations passes the smallest attempt is returned.
func Compress(data []byte, budget model.Budget) (*Result, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image provided to Compress")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header in Compress: %w", err)
	}
	ctype := model.GetCType[formatOf(format)]

	iterations := budget.MaxIterations
	if iterations <= 0 {
		iterations = model.DefaultBudget.MaxIterations
	}
	label := stampLabel(budget, iterations)

	original := &Result{Data: data, ContentType: ctype, Width: cfg.Width, Height: cfg.Height}
	if fits(original, budget) {
		original.WithinLimit = true
		return original, nil
	}
	// наш же best-effort результат для того же бюджета - повторное пережатие ничего не даст
	if hasStamp(data, label) {
		return original, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to DEcode image in Compress: %w", err)
	}
	if edge := budget.MaxLongestEdgePixels; edge > 0 {
		img = imaging.Fit(img, edge, edge, imaging.Lanczos) // Fit не увеличивает картинку
	}

	var best *Result
	quality := qualitySteps[0]
	for i := 0; i < iterations; i++ {
		if i < len(qualitySteps) {
			quality = qualitySteps[i]
		} else {
			w := int(float64(img.Bounds().Dx()) * scaleStep)
			h := int(float64(img.Bounds().Dy()) * scaleStep)
			if w < 1 || h < 1 {
				break
			}
			img = imaging.Resize(img, w, h, imaging.Lanczos)
		}

		candidate, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
		if best == nil || len(candidate.Data) <= len(best.Data) {
			best = candidate
		}
		if fits(best, budget) {
			best.WithinLimit = true
			break
		}
	}

	if best != nil && !best.WithinLimit {
		best.Data = stamp(best.Data, label)
	}
	// пережатие не должно увеличивать размер
	if best == nil || len(best.Data) > len(data) {
		return original, nil
	}
	return best, nil
}

// JPEG COM segment right after SOI marks best-effort output, decoders skip it
var (
	soi = []byte{0xFF, 0xD8}
	com = []byte{0xFF, 0xFE}
)

func stampLabel(budget model.Budget, iterations int) string {
	return fmt.Sprintf("imageproc best-effort %d/%d/%d", budget.MaxSizeBytes, budget.MaxLongestEdgePixels, iterations)
}

func stamp(data []byte, label string) []byte {
	if !bytes.HasPrefix(data, soi) {
		return data
	}
	n := len(label) + 2
	out := make([]byte, 0, len(data)+len(com)+n)
	out = append(out, soi...)
	out = append(out, com...)
	out = append(out, byte(n>>8), byte(n))
	out = append(out, label...)
	return append(out, data[len(soi):]...)
}

func hasStamp(data []byte, label string) bool {
	head := len(soi) + len(com) + 2
	if len(data) < head+len(label) || !bytes.HasPrefix(data, soi) || !bytes.Equal(data[2:4], com) {
		return false
	}
	n := int(data[4])<<8 | int(data[5])
	return n == len(label)+2 && string(data[head:head+len(label)]) == label
}

func encodeJPEG(img image.Image, quality int) (*Result, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to ENcode image in Compress: %w", err)
	}
	return &Result{
		Data:        buf.Bytes(),
		ContentType: model.JPEG,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}, nil
}

func fits(r *Result, budget model.Budget) bool {
	if budget.MaxSizeBytes > 0 && int64(len(r.Data)) > budget.MaxSizeBytes {
		return false
	}
	if edge := budget.MaxLongestEdgePixels; edge > 0 && max(r.Width, r.Height) > edge {
		return false
	}
	return true
}

func formatOf(name string) imaging.Format {
	f, err := imaging.FormatFromExtension(name)
	if err != nil {
		return imaging.JPEG
	}
	return f
}
