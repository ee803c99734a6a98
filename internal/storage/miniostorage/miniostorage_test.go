package miniostorage

import (
	"errors"
	"net/http"
	"testing"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestOptions_Configured(t *testing.T) {
	full := Options{Endpoint: "minio:9000", AccessKey: "user", SecretKey: "pass", Bucket: "evolve-images"}

	tests := []struct {
		name string
		mut  func(o *Options)
		want bool
	}{
		{"all present", func(o *Options) {}, true},
		{"no endpoint", func(o *Options) { o.Endpoint = "" }, false},
		{"no access key", func(o *Options) { o.AccessKey = "" }, false},
		{"no secret", func(o *Options) { o.SecretKey = "" }, false},
		{"no bucket", func(o *Options) { o.Bucket = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := full
			tt.mut(&o)
			require.Equal(t, tt.want, o.Configured())
		})
	}
}

func TestNewMinioClient_NotConfigured(t *testing.T) {
	_, err := NewMinioClient(t.Context(), Options{Endpoint: "minio:9000"})
	require.ErrorIs(t, err, model.ErrPublishDisabled)
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{
			name: "plain",
			base: "https://dxarts200.blob.core.windows.net",
			key:  "First-images/newestCreation.jpg",
			want: "https://dxarts200.blob.core.windows.net/evolve-images/First-images/newestCreation.jpg",
		},
		{
			name: "trailing slash and spaces",
			base: "http://localhost:9000/",
			key:  "First-images/download (1).jpg",
			want: "http://localhost:9000/evolve-images/First-images/download%20%281%29.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ObjectURL(tt.base, "evolve-images", tt.key))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"forbidden", minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}, true},
		{"too many requests", minio.ErrorResponse{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable}, false},
		{"transport", errors.New("dial tcp: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.rejected, errors.Is(classify(tt.err), model.ErrBlobRejected))
		})
	}
}
