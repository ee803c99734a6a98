package main

import (
	"context"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
)

type EvolutionAPIService interface {
	Enqueue(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error)
	Get(ctx context.Context, id string) (*model.Evolution, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error)
	Gallery(ctx context.Context) ([]model.GalleryItem, error)
	Latest(ctx context.Context) (string, error)
	ReviveOrphans(ctx context.Context, limit int)
}
