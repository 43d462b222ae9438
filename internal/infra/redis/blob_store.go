package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BlobStore keeps uploaded assets as Redis strings. The core only records
// the returned URL; serving the bytes is a gateway concern.
type BlobStore struct {
	client  *redis.Client
	baseURL string
}

func NewBlobStore(client *redis.Client, baseURL string) *BlobStore {
	return &BlobStore{client: client, baseURL: baseURL}
}

func (b *BlobStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if err := b.client.Set(ctx, "blob:"+path, data, 0).Err(); err != nil {
		return "", fmt.Errorf("store blob %s: %w", path, err)
	}
	return b.baseURL + "/" + path, nil
}

// Get returns stored bytes for serving.
func (b *BlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := b.client.Get(ctx, "blob:"+path).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", path, err)
	}
	return data, nil
}
