package contacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database/dbtest"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

func TestPostgresStoreContactLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	ids := identity.NewPostgresStore(db)
	alice, err := ids.CreateUser(ctx, "Alice", "h", false)
	require.NoError(t, err)
	carol, err := ids.CreateUser(ctx, "Carol", "h", false)
	require.NoError(t, err)
	bob, err := ids.CreateBot(ctx, "Bob", "")
	require.NoError(t, err)

	store := NewPostgresStore(db)
	svc := NewService(store, identity.NewRegistry(ids))

	edge, err := svc.Request(ctx, alice.Ref(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingRequester, edge.Status)

	again, err := svc.Request(ctx, alice.Ref(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingRequester, again.Status)

	incoming, err := svc.ListIncoming(ctx, bob.Ref())
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "Alice", incoming[0].DisplayName)

	require.NoError(t, svc.Accept(ctx, bob.Ref(), alice.Ref()))
	edges, err := store.EdgesBetween(ctx, alice.Ref(), bob.Ref())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, alice.Ref(), edges[0].Requester)

	_, err = svc.Request(ctx, alice.Ref(), "Carol")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Accept(ctx, alice.Ref(), carol.Ref()), apperr.ErrNotFound)
	require.NoError(t, svc.Accept(ctx, carol.Ref(), alice.Ref()))

	edges, err = store.EdgesBetween(ctx, alice.Ref(), carol.Ref())
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	list, err := svc.ListAccepted(ctx, alice.Ref())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bob", list[0].DisplayName)
	assert.Equal(t, models.KindBot, list[0].PeerKind)

	require.NoError(t, svc.Remove(ctx, carol.Ref(), alice.Ref()))
	ok, err := svc.IsAccepted(ctx, alice.Ref(), carol.Ref())
	require.NoError(t, err)
	assert.False(t, ok)
}
