package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/foodshare/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(NewMemoryBackend("photos"))
	require.NoError(t, s.EnsureBucket(ctx))

	require.NoError(t, s.Put(ctx, "posts/1/a.jpg", strings.NewReader("jpeg"), 4, "image/jpeg"))

	rc, err := s.Get(ctx, "posts/1/a.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, s.Delete(ctx, "posts/1/a.jpg"))
	_, err = s.Get(ctx, "posts/1/a.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, "photos", s.Bucket())
}

func TestOpenDisabled(t *testing.T) {
	s, err := Open(context.Background(), config.Config{ObjectStore: config.ObjectStoreNone})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOpenMinioRequiresEndpoint(t *testing.T) {
	_, err := Open(context.Background(), config.Config{ObjectStore: config.ObjectStoreMinio})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio endpoint is required")
}

func TestPutPhoto(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend("photos")
	s := NewStorage(backend)

	key, err := s.PutPhoto(ctx, "p1", "plate.PNG", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "posts/p1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, []string{key}, backend.Keys())
	assert.Equal(t, "image/png", PhotoContentType(key))

	other, err := s.PutPhoto(ctx, "p1", "plate.PNG", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestPhotoKeyExtension(t *testing.T) {
	assert.True(t, strings.HasSuffix(PhotoKey("p", "", "image/jpeg"), ".jpg"))
	assert.True(t, strings.HasSuffix(PhotoKey("p", "noext", "image/webp"), ".webp"))
	assert.Equal(t, "application/octet-stream", PhotoContentType("posts/p/abc"))
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), config.Config{ObjectStore: config.ObjectStoreMemory})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, memoryBucket, s.Bucket())
}
