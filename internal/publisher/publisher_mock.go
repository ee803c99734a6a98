package publisher

import (
	"context"
	"io"
	"sync"

	"github.com/UnendingLoop/ImageEvolver/internal/storage/miniostorage"
)

// memStore - in-memory BlobStore, Put errors are taken from putErrs one per call
type memStore struct {
	mu         sync.Mutex
	configured bool
	base       string
	bucket     string
	objects    map[string][]byte
	ctypes     map[string]string
	putCalls   int
	putErrs    []error
}

func newMemStore() *memStore {
	return &memStore{
		configured: true,
		base:       "http://blob.local",
		bucket:     "evolve-images",
		objects:    make(map[string][]byte),
		ctypes:     make(map[string]string),
	}
}

func (m *memStore) IsConfigured() bool { return m.configured }

func (m *memStore) Put(_ context.Context, key string, _ int64, contentType string, r io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCalls++
	if len(m.putErrs) > 0 {
		err := m.putErrs[0]
		m.putErrs = m.putErrs[1:]
		if err != nil {
			return err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.ctypes[key] = contentType
	return nil
}

func (m *memStore) URL(key string) string {
	return miniostorage.ObjectURL(m.base, m.bucket, key)
}

func (m *memStore) PutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCalls
}
