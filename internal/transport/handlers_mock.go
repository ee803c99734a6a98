package transport

import (
	"context"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/gin-gonic/gin"
)

type mockEvolutionService struct {
	enqueueFn func(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error)
	getFn     func(ctx context.Context, id string) (*model.Evolution, error)
	getListFn func(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error)
	galleryFn func(ctx context.Context) ([]model.GalleryItem, error)
	latestFn  func(ctx context.Context) (string, error)
}

func (m *mockEvolutionService) Enqueue(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
	return m.enqueueFn(ctx, req)
}

func (m *mockEvolutionService) Get(ctx context.Context, id string) (*model.Evolution, error) {
	return m.getFn(ctx, id)
}

func (m *mockEvolutionService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
	return m.getListFn(ctx, req)
}

func (m *mockEvolutionService) Gallery(ctx context.Context) ([]model.GalleryItem, error) {
	return m.galleryFn(ctx)
}

func (m *mockEvolutionService) Latest(ctx context.Context) (string, error) {
	return m.latestFn(ctx)
}

func init() {
	gin.SetMode(gin.TestMode)
}
