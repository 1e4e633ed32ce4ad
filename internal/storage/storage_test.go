package storage_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"creatively/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	folder := "f1"
	key := storage.ObjectKey("u1", &folder, "../../etc/brief.pdf")
	assert.True(t, strings.HasPrefix(key, "u1/f1/"))
	assert.True(t, strings.HasSuffix(key, "-brief.pdf"))

	key = storage.ObjectKey("u1", nil, "logo.png")
	assert.True(t, strings.HasPrefix(key, "u1/root/"))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	obj, err := m.Put(ctx, "u1/root/a.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.Len(t, obj.Hash, 64)

	ok, err := m.Exists(ctx, "u1/root/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	link, err := m.PresignGet(ctx, "u1/root/a.txt", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "expires=")

	require.NoError(t, m.Delete(ctx, "u1/root/a.txt"))
	_, err = m.PresignGet(ctx, "u1/root/a.txt", time.Minute)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
