package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func TestEvolutionHandler_Ping(t *testing.T) {
	r := gin.New()
	h := NewEvolutionHandler(nil)

	r.GET("/ping", func(c *gin.Context) {
		h.SimplePinger((*ginext.Context)(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pong", body["message"])
}

func TestEvolutionHandler_Evolve(t *testing.T) {
	uid := uuid.New()

	tests := []struct {
		name       string
		body       string
		mock       *mockEvolutionService
		wantStatus int
	}{
		{
			name: "empty body",
			body: "",
			mock: &mockEvolutionService{
				enqueueFn: func(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
					require.Empty(t, req.Prompt)
					require.Empty(t, req.Image)
					return &model.Evolution{UID: uid, Status: model.RunQueued}, nil
				},
			},
			wantStatus: 202,
		},
		{
			name: "explicit prompt",
			body: `{"prompt":"mutate","image":"https://example.com/seed.png"}`,
			mock: &mockEvolutionService{
				enqueueFn: func(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
					require.Equal(t, "mutate", req.Prompt)
					require.Equal(t, "https://example.com/seed.png", req.Image)
					return &model.Evolution{UID: uid, Status: model.RunQueued}, nil
				},
			},
			wantStatus: 202,
		},
		{
			name:       "broken json",
			body:       `{"prompt":`,
			mock:       &mockEvolutionService{},
			wantStatus: 400,
		},
		{
			name: "nothing to evolve",
			body: "",
			mock: &mockEvolutionService{
				enqueueFn: func(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
					return nil, model.ErrNoSeedImage
				},
			},
			wantStatus: 409,
		},
		{
			name: "storage disabled",
			body: "",
			mock: &mockEvolutionService{
				enqueueFn: func(ctx context.Context, req *model.EvolveRequest) (*model.Evolution, error) {
					return nil, model.ErrPublishDisabled
				},
			},
			wantStatus: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewEvolutionHandler(tt.mock)

			r.POST("/evolutions", func(c *gin.Context) {
				h.Evolve((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodPost, "/evolutions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 202 {
				require.Equal(t, "/evolutions/"+uid.String(), w.Header().Get("Location"))
			}
		})
	}
}

func TestEvolutionHandler_GetEvolution(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, 200},
		{"bad id", model.ErrIncorrectID, 400},
		{"not found", model.ErrEvolutionNotFound, 404},
		{"db down", model.ErrCommon500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewEvolutionHandler(&mockEvolutionService{
				getFn: func(ctx context.Context, id string) (*model.Evolution, error) {
					require.Equal(t, "123", id)
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Evolution{Status: model.RunPublished}, nil
				},
			})

			r.GET("/evolutions/:id", func(c *gin.Context) {
				h.GetEvolution((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/evolutions/123", nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestEvolutionHandler_GetAllEvolutions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		mock       *mockEvolutionService
		wantStatus int
	}{
		{
			name:  "success",
			query: "?page=1&limit=10&sort=uid&order=ascend",
			mock: &mockEvolutionService{
				getListFn: func(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
					require.Equal(t, 10, req.Limit)
					require.Equal(t, "uid", req.Sort)
					return []model.Evolution{{}}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name:       "bad query",
			query:      "?page=abc",
			mock:       &mockEvolutionService{},
			wantStatus: 400,
		},
		{
			name:  "service error",
			query: "",
			mock: &mockEvolutionService{
				getListFn: func(ctx context.Context, req *model.ListRequest) ([]model.Evolution, error) {
					return nil, model.ErrCommon500
				},
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewEvolutionHandler(tt.mock)

			r.GET("/evolutions", func(c *gin.Context) {
				h.GetAllEvolutions((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/evolutions"+tt.query, nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestEvolutionHandler_Gallery(t *testing.T) {
	r := gin.New()
	h := NewEvolutionHandler(&mockEvolutionService{
		galleryFn: func(ctx context.Context) ([]model.GalleryItem, error) {
			return []model.GalleryItem{{Name: "newestCreation.jpg", URL: "http://blob.local/evolve-images/First-images/newestCreation.jpg"}}, nil
		},
	})

	r.GET("/gallery", func(c *gin.Context) {
		h.Gallery((*ginext.Context)(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/gallery", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	var items []model.GalleryItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, "newestCreation.jpg", items[0].Name)
}

func TestEvolutionHandler_Latest(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		err        error
		wantStatus int
	}{
		{"redirect", "http://blob.local/evolve-images/First-images/newestCreation.jpg?v=1", nil, 302},
		{"nothing yet", "", model.ErrNothingPublished, 404},
		{"disabled", "", model.ErrPublishDisabled, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewEvolutionHandler(&mockEvolutionService{
				latestFn: func(ctx context.Context) (string, error) { return tt.url, tt.err },
			})

			r.GET("/latest", func(c *gin.Context) {
				h.Latest((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/latest", nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.err == nil {
				require.Equal(t, tt.url, w.Header().Get("Location"))
			}
		})
	}
}
