// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"io"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/wb-go/wbf/ginext"
)

type EvolutionHandler struct {
	service EvolutionService
}

type EvolutionService interface {
	Enqueue(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) // запись + задача в очередь
	Get(ctx context.Context, id string) (*model.Evolution, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) // получить список
	Gallery(ctx context.Context) ([]model.GalleryItem, error)
	Latest(ctx context.Context) (string, error) // ссылка на последнюю картинку
}

func NewEvolutionHandler(svc EvolutionService) *EvolutionHandler {
	return &EvolutionHandler{
		service: svc,
	}
}

func (h EvolutionHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

// Evolve accepts optional JSON {"prompt": "...", "image": "..."}; empty body means random prompt on the latest image
func (h EvolutionHandler) Evolve(ctx *ginext.Context) {
	var req model.EvolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(400, map[string]string{"error": "failed to parse request body"})
		return
	}

	res, err := h.service.Enqueue(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Header("Location", "/evolutions/"+res.UID.String())
	ctx.JSON(202, res)
}

func (h EvolutionHandler) GetEvolution(ctx *ginext.Context) {
	res, err := h.service.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h EvolutionHandler) GetAllEvolutions(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
		return
	}

	res, err := h.service.GetList(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h EvolutionHandler) Gallery(ctx *ginext.Context) {
	res, err := h.service.Gallery(ctx.Request.Context())
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h EvolutionHandler) Latest(ctx *ginext.Context) {
	url, err := h.service.Latest(ctx.Request.Context())
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Header("Cache-Control", "no-store")
	ctx.Redirect(302, url)
}
