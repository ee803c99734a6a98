// Package miniostorage provides structure to work with minio/S3-compatible blob storage
package miniostorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint   string // host:port
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PublicURL  string // base for public links, defaults to endpoint
	PublicRead bool   // выставить анонимное чтение на бакет
}

// Configured reports whether every parameter required to publish is present.
func (o Options) Configured() bool {
	return o.Endpoint != "" && o.AccessKey != "" && o.SecretKey != "" && o.Bucket != ""
}

type MinioBlobStorage struct {
	opts   Options
	client *minio.Client
}

func NewMinioClient(ctx context.Context, opts Options) (*MinioBlobStorage, error) {
	if !opts.Configured() {
		return nil, model.ErrPublishDisabled
	}

	// подключаемся к минио - создаем клиента
	strg, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(ctx, strg, opts.Bucket); err != nil {
		log.Println("Failed to create bucket in MinIO:", err)
		return nil, err
	}

	if opts.PublicRead {
		if err := strg.SetBucketPolicy(ctx, opts.Bucket, publicReadPolicy(opts.Bucket)); err != nil {
			return nil, fmt.Errorf("set public-read policy: %w", err)
		}
	}

	if opts.PublicURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		opts.PublicURL = scheme + "://" + opts.Endpoint
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")

	return &MinioBlobStorage{opts: opts, client: strg}, nil
}

func (s *MinioBlobStorage) IsConfigured() bool {
	return s != nil && s.client != nil && s.opts.Configured()
}

// Put uploads object in one request: it becomes visible only when fully written, last writer wins.
func (s *MinioBlobStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	if _, err := s.client.PutObject(ctx, s.opts.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "no-cache",
	}); err != nil {
		return classify(err)
	}

	return nil
}

func (s *MinioBlobStorage) List(ctx context.Context, prefix string) ([]model.GalleryItem, error) {
	items := make([]model.GalleryItem, 0)
	for obj := range s.client.ListObjects(ctx, s.opts.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		items = append(items, model.GalleryItem{
			Name:         obj.Key[strings.LastIndex(obj.Key, "/")+1:],
			URL:          s.URL(obj.Key),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return items, nil
}

// URL builds public link of the object, it depends on key only.
func (s *MinioBlobStorage) URL(key string) string {
	return ObjectURL(s.opts.PublicURL, s.opts.Bucket, key)
}

func ObjectURL(base, bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

// classify marks client-side rejections so that they are not retried
func classify(err error) error {
	code := minio.ToErrorResponse(err).StatusCode
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", model.ErrBlobRejected, err)
	}
	return err
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
