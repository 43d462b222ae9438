package memory

import (
	"context"
	"sync"
)

// BlobStore keeps uploaded assets in process memory and hands back a stable
// pseudo-URL. Useful for local runs and tests.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (b *BlobStore) Put(_ context.Context, path string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	b.blobs[path] = buf
	return "memblob://" + path, nil
}

// Get returns stored bytes. Test hook.
func (b *BlobStore) Get(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[path]
	return data, ok
}
