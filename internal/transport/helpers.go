package transport

import (
	"errors"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrEvolutionNotFound),
		errors.Is(err, model.ErrNothingPublished):
		return 404
	case errors.Is(err, model.ErrNoSeedImage):
		return 409
	case errors.Is(err, model.ErrPublishDisabled):
		return 503
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrIncorrectSource),
		errors.Is(err, model.ErrEmptyInput):
		return 400
	default:
		return 500
	}
}
