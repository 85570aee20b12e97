package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database/dbtest"
)

func TestPostgresStore(t *testing.T) {
	db := dbtest.Open(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) {
		u, err := store.CreateUser(ctx, "Alice", "hash", false)
		require.NoError(t, err)
		assert.NotZero(t, u.ID)

		_, err = store.CreateUser(ctx, "Alice", "hash", false)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		got, err := store.UserByName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		require.NoError(t, store.SetAdmin(ctx, u.ID, true))
		got, err = store.UserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAdmin)

		_, err = store.UserByID(ctx, 9999)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("Bots", func(t *testing.T) {
		b, err := store.CreateBot(ctx, "Bob", "innkeeper")
		require.NoError(t, err)

		b, err = store.UpdateBot(ctx, b.ID, "Bobby", "retired")
		require.NoError(t, err)
		assert.Equal(t, "Bobby", b.Name)

		got, err := store.BotByName(ctx, "BOBBY")
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		bots, err := store.ListBots(ctx)
		require.NoError(t, err)
		assert.Len(t, bots, 1)

		require.NoError(t, store.DeleteBot(ctx, b.ID))
		assert.ErrorIs(t, store.DeleteBot(ctx, b.ID), apperr.ErrNotFound)
	})
}
