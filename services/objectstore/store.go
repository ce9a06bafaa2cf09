// Package objectstore abstracts S3-compatible blob storage.
//
// The production adapter targets any S3-compatible endpoint (AWS S3, MinIO,
// Ceph RGW) through the AWS SDK. An in-memory implementation backs tests.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Internal error taxonomy. The gateway maps these to its public kinds.
var (
	ErrFileNotFound   = errors.New("objectstore: file not found")
	ErrBucketNotFound = errors.New("objectstore: bucket not found")
	ErrStorage        = errors.New("objectstore: storage error")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Store is the blob storage contract.
//
// Keys are opaque slash-separated paths. Delete is idempotent. PresignGet
// returns a URL that grants read access until the TTL elapses; no server
// round-trip happens when the URL is minted.
type Store interface {
	EnsureBucket(ctx context.Context, bucket string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)

	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error

	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
