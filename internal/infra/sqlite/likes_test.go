package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*LikeStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "likes.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewLikeStore(db)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	store.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return store, path
}

func TestLikeStore_CreateListDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateLike(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "p1", first.PostID)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 1, 0, time.UTC), first.CreatedAt)

	_, err = store.CreateLike(ctx, "p1", "u2")
	require.NoError(t, err)
	_, err = store.CreateLike(ctx, "p2", "u1")
	require.NoError(t, err)

	likes, err := store.ListLikes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, likes, 2)
	assert.Equal(t, "u1", likes[0].UserID)
	assert.Equal(t, "u2", likes[1].UserID)

	require.NoError(t, store.DeleteLike(ctx, "p1", "u1"))
	likes, err = store.ListLikes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, "u2", likes[0].UserID)

	assert.NoError(t, store.DeleteLike(ctx, "p1", "missing"))
}

func TestLikeStore_DuplicateLikeKeepsOriginal(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateLike(ctx, "p1", "u1")
	require.NoError(t, err)
	second, err := store.CreateLike(ctx, "p1", "u1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	likes, err := store.ListLikes(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, likes, 1)
}

func TestLikeStore_EmptyList(t *testing.T) {
	store, _ := newTestStore(t)

	likes, err := store.ListLikes(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, likes)
	assert.Empty(t, likes)
}

func TestOpen_Reopen(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateLike(ctx, "p1", "u1")
	require.NoError(t, err)
	require.NoError(t, store.db.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	likes, err := NewLikeStore(db).ListLikes(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, likes, 1)
}
