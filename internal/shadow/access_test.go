package shadow

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

type world struct {
	ids      *identity.InMemoryStore
	registry *identity.Registry
	grants   *InMemoryGrantStore
	alice    *models.User // listed in configuration
	carol    *models.User // plain player
	root     *models.User // administrator
	bob      *models.BotAccount
	eve      *models.BotAccount // listed in configuration
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	ids := identity.NewInMemoryStore()
	w := &world{ids: ids, registry: identity.NewRegistry(ids), grants: NewInMemoryGrantStore()}
	var err error
	w.alice, err = ids.CreateUser(ctx, "Alice", "h", false)
	require.NoError(t, err)
	w.carol, err = ids.CreateUser(ctx, "Carol", "h", false)
	require.NoError(t, err)
	w.root, err = ids.CreateUser(ctx, "Root", "h", true)
	require.NoError(t, err)
	w.bob, err = ids.CreateBot(ctx, "Bob", "")
	require.NoError(t, err)
	w.eve, err = ids.CreateBot(ctx, "Eve", "")
	require.NoError(t, err)
	return w
}

func (w *world) policy(bypass bool) *Policy {
	return NewPolicy(w.registry, w.grants, PolicyOptions{
		AllowedHumans: []string{"ALICE", " "},
		AllowedBots:   []string{"eve"},
		AdminBypass:   bypass,
	})
}

func access(t *testing.T, p *Policy, ref models.Ref) bool {
	t.Helper()
	ok, err := p.HasAccess(context.Background(), ref)
	require.NoError(t, err)
	return ok
}

func TestHasAccessSources(t *testing.T) {
	w := newWorld(t)
	p := w.policy(true)

	assert.True(t, access(t, p, w.alice.Ref()), "static list is case-insensitive")
	assert.True(t, access(t, p, w.eve.Ref()))
	assert.True(t, access(t, p, w.root.Ref()), "admin bypass")
	assert.False(t, access(t, p, w.carol.Ref()))
	assert.False(t, access(t, p, w.bob.Ref()))
	assert.False(t, access(t, p, models.Human(404)))

	// the static list is per kind
	_, err := w.ids.CreateBot(context.Background(), "Alice", "")
	require.NoError(t, err)
	alias, err := w.registry.ResolveKind(context.Background(), models.KindBot, "Alice")
	require.NoError(t, err)
	assert.False(t, access(t, p, alias.Ref))
}

func TestAdminBypassToggle(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	assert.False(t, access(t, w.policy(false), w.root.Ref()))

	p := w.policy(true)
	require.NoError(t, w.ids.SetAdmin(ctx, w.root.ID, false))
	assert.False(t, access(t, p, w.root.Ref()), "demotion applies on the next check")
	require.NoError(t, w.ids.SetAdmin(ctx, w.carol.ID, true))
	assert.True(t, access(t, p, w.carol.Ref()))
}

func TestGrantAndRevoke(t *testing.T) {
	w := newWorld(t)
	p := w.policy(true)
	ctx := context.Background()

	got, err := p.Grant(ctx, models.KindBot, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Label)
	_, err = p.Grant(ctx, models.KindBot, "Bob")
	require.NoError(t, err, "granting twice is harmless")
	assert.True(t, access(t, p, w.bob.Ref()))

	_, err = p.Grant(ctx, models.KindHuman, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = p.Revoke(ctx, models.KindBot, "Bob")
	require.NoError(t, err)
	assert.False(t, access(t, p, w.bob.Ref()), "revocation applies on the next check")

	_, err = p.Revoke(ctx, models.KindBot, "Bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = p.Revoke(ctx, models.KindHuman, "alice")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListAccess(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	p := NewPolicy(w.registry, w.grants, PolicyOptions{
		AllowedHumans: []string{"alice", "ghost"},
		AllowedBots:   []string{"Eve"},
	})
	_, err := p.Grant(ctx, models.KindHuman, "Carol")
	require.NoError(t, err)
	_, err = p.Grant(ctx, models.KindBot, "Bob")
	require.NoError(t, err)

	got, err := p.List(ctx)
	require.NoError(t, err)
	want := []AccessEntry{
		{Kind: models.KindHuman, ID: w.alice.ID, Name: "Alice", Source: SourceConfig},
		{Kind: models.KindHuman, Name: "ghost", Source: SourceConfig},
		{Kind: models.KindHuman, ID: w.carol.ID, Name: "Carol", Source: SourceGranted},
		{Kind: models.KindBot, ID: w.eve.ID, Name: "Eve", Source: SourceConfig},
		{Kind: models.KindBot, ID: w.bob.ID, Name: "Bob", Source: SourceGranted},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("access list mismatch (-want +got):\n%s", diff)
	}
}
