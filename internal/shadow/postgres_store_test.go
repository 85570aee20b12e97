package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database/dbtest"
	"github.com/podjdr/pkg/models"
)

func TestPostgresCodeStore(t *testing.T) {
	db := dbtest.Open(t)
	store := NewPostgresCodeStore(db)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, models.Human(1), "0042"))
	assert.ErrorIs(t, store.Insert(ctx, models.Bot(1), "0042"), ErrCodeTaken)
	assert.ErrorIs(t, store.Insert(ctx, models.Human(1), "0043"), ErrAlreadyAssigned)

	code, err := store.Lookup(ctx, models.Human(1))
	require.NoError(t, err)
	assert.Equal(t, "0042", code)

	alloc := NewAllocator(store)
	require.NoError(t, alloc.Refresh(ctx))
	got, err := alloc.Resolve(ctx, "0042")
	require.NoError(t, err)
	assert.Equal(t, models.Human(1), got)

	botCode, err := alloc.CodeFor(ctx, models.Bot(1))
	require.NoError(t, err)
	assert.NotEqual(t, "0042", botCode)

	require.NoError(t, alloc.Forget(ctx, models.Bot(1)))
	_, err = store.Lookup(ctx, models.Bot(1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresGrantStore(t *testing.T) {
	db := dbtest.Open(t)
	store := NewPostgresGrantStore(db)
	ctx := context.Background()

	require.NoError(t, store.Grant(ctx, models.Bot(2)))
	require.NoError(t, store.Grant(ctx, models.Bot(2)))
	require.NoError(t, store.Grant(ctx, models.Human(5)))

	refs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Ref{models.Human(5), models.Bot(2)}, refs)

	ok, err := store.IsGranted(ctx, models.Bot(2))
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := store.Revoke(ctx, models.Bot(2))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Revoke(ctx, models.Bot(2))
	require.NoError(t, err)
	assert.False(t, removed)
}
