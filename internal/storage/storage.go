// Package storage connects the app to blob storage
package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/storage/miniostorage"
)

// NewBlobStorage connects to blob storage with bounded retries.
// Not configured storage is reported with model.ErrPublishDisabled - it's a disabled feature, not a failure.
func NewBlobStorage(ctx context.Context, opts miniostorage.Options, attempts int, delay time.Duration) (*miniostorage.MinioBlobStorage, error) {
	if !opts.Configured() {
		return nil, model.ErrPublishDisabled
	}

	var err error
	for i := 1; i <= max(attempts, 1); i++ {
		log.Printf("Connecting to blob-storage (try #%d)...", i)
		var client *miniostorage.MinioBlobStorage
		client, err = miniostorage.NewMinioClient(ctx, opts)
		if err == nil {
			log.Println("Successfully connected blob-storage!")
			return client, nil
		}

		log.Printf("Failed to init connection to blob-storage: %v\nNext retry in %v...", err, delay)
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(delay):
		}
	}

	return nil, err
}
