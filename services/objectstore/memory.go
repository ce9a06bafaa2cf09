package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// It mirrors the adapter's error semantics so callers can be exercised
// without a running S3 endpoint.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memObject)}
}

func (m *MemoryStore) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]memObject)
	}
	return nil
}

func (m *MemoryStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrStorage, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("%w: size mismatch: declared %d, read %d", ErrStorage, size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	sum := md5.Sum(data)
	objs[key] = memObject{
		data:        data,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, info, err := m.lookup(bucket, key)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (m *MemoryStore) Stat(_ context.Context, bucket, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, info, err := m.lookup(bucket, key)
	return info, err
}

func (m *MemoryStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := m.Stat(ctx, bucket, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	return false, err
}

func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	delete(objs, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	var out []ObjectInfo
	for key, obj := range objs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			ETag:         obj.etag,
			LastModified: obj.modified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	src, ok := objs[srcKey]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, srcKey)
	}
	dup := src
	dup.data = append([]byte(nil), src.data...)
	dup.modified = time.Now().UTC()
	objs[dstKey] = dup
	return nil
}

func (m *MemoryStore) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, _, err := m.lookup(bucket, key); err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, expires), nil
}

// lookup requires m.mu held.
func (m *MemoryStore) lookup(bucket, key string) (memObject, *ObjectInfo, error) {
	objs, ok := m.buckets[bucket]
	if !ok {
		return memObject{}, nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	obj, ok := objs[key]
	if !ok {
		return memObject{}, nil, fmt.Errorf("%w: %s/%s", ErrFileNotFound, bucket, key)
	}
	return obj, &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         obj.etag,
		LastModified: obj.modified,
	}, nil
}
