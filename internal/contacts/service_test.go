package contacts

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

type fixedUnread map[[2]models.Ref]int

func (f fixedUnread) CountUnread(ctx context.Context, from, to models.Ref) (int, error) {
	return f[[2]models.Ref{from, to}], nil
}

type fixture struct {
	svc   *Service
	store *InMemoryStore
	alice models.Ref
	carol models.Ref
	bob   models.Ref
}

func newFixture(t *testing.T, unread UnreadCounter) *fixture {
	t.Helper()
	ctx := context.Background()
	ids := identity.NewInMemoryStore()
	alice, err := ids.CreateUser(ctx, "Alice", "h", false)
	require.NoError(t, err)
	carol, err := ids.CreateUser(ctx, "Carol", "h", false)
	require.NoError(t, err)
	bob, err := ids.CreateBot(ctx, "Bob", "innkeeper")
	require.NoError(t, err)
	store := NewInMemoryStore(ids, unread)
	return &fixture{
		svc:   NewService(store, identity.NewRegistry(ids)),
		store: store,
		alice: alice.Ref(),
		carol: carol.Ref(),
		bob:   bob.Ref(),
	}
}

func TestHumanToBotRequestAwaitsBot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	edge, err := f.svc.Request(ctx, f.alice, "Bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingRequester, edge.Status)
	assert.Equal(t, f.alice, edge.Requester)
	assert.Equal(t, f.bob, edge.Target)

	// The human cannot approve on the bot's behalf
	assert.ErrorIs(t, f.svc.Accept(ctx, f.alice, f.bob), apperr.ErrNotFound)

	require.NoError(t, f.svc.Accept(ctx, f.bob, f.alice))
	edges, err := f.store.EdgesBetween(ctx, f.alice, f.bob)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, models.StatusAccepted, edges[0].Status)
	assert.Equal(t, f.alice, edges[0].Requester)

	ok, err := f.svc.IsAccepted(ctx, f.bob, f.alice)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBotToHumanRequestAwaitsHuman(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	edge, err := f.svc.Request(ctx, f.bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTarget, edge.Status)

	incoming, err := f.svc.ListIncoming(ctx, f.alice)
	require.NoError(t, err)
	want := []models.ContactRequest{{PeerID: f.bob.ID, PeerKind: models.KindBot, DisplayName: "Bob"}}
	if diff := cmp.Diff(want, incoming); diff != "" {
		t.Errorf("incoming mismatch (-want +got):\n%s", diff)
	}

	outgoing, err := f.svc.ListOutgoing(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "Alice", outgoing[0].DisplayName)

	assert.ErrorIs(t, f.svc.Accept(ctx, f.bob, f.alice), apperr.ErrNotFound)
	require.NoError(t, f.svc.Accept(ctx, f.alice, f.bob))

	edges, err := f.store.EdgesBetween(ctx, f.alice, f.bob)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, f.bob, edges[0].Requester)
	assert.Equal(t, models.StatusAccepted, edges[0].Status)
}

func TestHumanAcceptCreatesReciprocalEdge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	edge, err := f.svc.Request(ctx, f.alice, "Carol")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTarget, edge.Status)

	ok, err := f.svc.IsAccepted(ctx, f.alice, f.carol)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.svc.Accept(ctx, f.carol, f.alice))

	edges, err := f.store.EdgesBetween(ctx, f.alice, f.carol)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, models.StatusAccepted, e.Status)
	}

	for _, self := range []models.Ref{f.alice, f.carol} {
		list, err := f.svc.ListAccepted(ctx, self)
		require.NoError(t, err)
		assert.Len(t, list, 1, "accepted list of %s", self)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.alice, "Carol")
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(ctx, f.carol, f.alice))
	require.NoError(t, f.svc.Accept(ctx, f.carol, f.alice))

	edges, err := f.store.EdgesBetween(ctx, f.alice, f.carol)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestRepeatedRequestReturnsExistingEdge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Request(ctx, f.alice, "Bob")
	require.NoError(t, err)
	second, err := f.svc.Request(ctx, f.alice, "Bob")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	edges, err := f.store.EdgesBetween(ctx, f.alice, f.bob)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.alice, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Request(ctx, f.alice, "Alice")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// Bots only look up humans
	_, err = f.svc.Request(ctx, f.bob, "Bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, f.svc.Accept(ctx, f.bob, models.Bot(99)), apperr.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.Remove(ctx, f.alice, f.alice), apperr.ErrInvalidInput)
}

func TestRemoveDeletesBothDirections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.alice, "Carol")
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(ctx, f.carol, f.alice))
	_, err = f.svc.Request(ctx, f.alice, "Bob")
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, f.carol, f.alice))
	require.NoError(t, f.svc.Remove(ctx, f.alice, f.bob))

	for _, peer := range []models.Ref{f.carol, f.bob} {
		edges, err := f.store.EdgesBetween(ctx, f.alice, peer)
		require.NoError(t, err)
		assert.Empty(t, edges)
	}
	outgoing, err := f.svc.ListOutgoing(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
}

func TestListAcceptedCountsUnread(t *testing.T) {
	f := newFixture(t, nil)
	f.store.unread = fixedUnread{
		{f.bob, f.alice}:   2,
		{f.carol, f.alice}: 1,
		{f.alice, f.carol}: 7,
	}
	ctx := context.Background()

	_, err := f.svc.Request(ctx, f.alice, "Carol")
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(ctx, f.carol, f.alice))
	_, err = f.svc.Request(ctx, f.bob, "Alice")
	require.NoError(t, err)
	require.NoError(t, f.svc.Accept(ctx, f.alice, f.bob))

	got, err := f.svc.ListAccepted(ctx, f.alice)
	require.NoError(t, err)
	want := []models.ContactEntry{
		{PeerID: f.bob.ID, PeerKind: models.KindBot, DisplayName: "Bob", UnreadCount: 2},
		{PeerID: f.carol.ID, PeerKind: models.KindHuman, DisplayName: "Carol", UnreadCount: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("accepted list mismatch (-want +got):\n%s", diff)
	}

	got, err = f.svc.ListAccepted(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].DisplayName)
}
