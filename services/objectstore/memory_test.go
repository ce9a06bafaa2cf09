package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.EnsureBucket(ctx, "anchorage"))

	body := "hello world"
	err := s.Put(ctx, "anchorage", "system/f-1/01-input_data/original.txt",
		strings.NewReader(body), int64(len(body)), "text/plain")
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, "anchorage", "system/f-1/01-input_data/original.txt")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.NotEmpty(t, info.ETag)
}

func TestMemoryErrorTaxonomy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, _, err := s.Get(ctx, "ghost", "key")
	assert.ErrorIs(t, err, ErrBucketNotFound)

	require.NoError(t, s.EnsureBucket(ctx, "b"))
	_, _, err = s.Get(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = s.Put(ctx, "ghost", "key", strings.NewReader("x"), 1, "text/plain")
	assert.ErrorIs(t, err, ErrBucketNotFound)

	ok, err := s.Exists(ctx, "b", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, s.Delete(ctx, "b", "missing"))
}

func TestMemoryListByPrefix(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx, "b"))

	for _, key := range []string{
		"user/u-1/global/f-1/metadata.json",
		"user/u-1/global/f-1/01-input_data/original.pdf",
		"user/u-1/project/p-1/f-2/metadata.json",
		"system/f-3/metadata.json",
	} {
		require.NoError(t, s.Put(ctx, "b", key, strings.NewReader("x"), 1, "application/json"))
	}

	infos, err := s.List(ctx, "b", "user/u-1/global/f-1/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "user/u-1/global/f-1/01-input_data/original.pdf", infos[0].Key)

	infos, err = s.List(ctx, "b", "system/")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestMemoryCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx, "b"))
	require.NoError(t, s.Put(ctx, "b", "src", strings.NewReader("payload"), 7, "text/plain"))

	require.NoError(t, s.Copy(ctx, "b", "src", "dst"))

	rc, _, err := s.Get(ctx, "b", "dst")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	err = s.Copy(ctx, "b", "missing", "dst2")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestMemoryPresignGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.EnsureBucket(ctx, "b"))
	require.NoError(t, s.Put(ctx, "b", "k", strings.NewReader("x"), 1, "text/plain"))

	u, err := s.PresignGet(ctx, "b", "k", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "memory://b/k")

	_, err = s.PresignGet(ctx, "b", "missing", time.Hour)
	assert.ErrorIs(t, err, ErrFileNotFound)
}
