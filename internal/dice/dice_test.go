package dice

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database/dbtest"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

// sequence returns the given zero-based faces in order
func sequence(faces ...int) func(int) (int, error) {
	i := 0
	return func(int) (int, error) {
		f := faces[i%len(faces)]
		i++
		return f, nil
	}
}

func TestRollComputesTotals(t *testing.T) {
	svc := NewService(NewInMemoryStore(), 10)
	svc.random = sequence(0, 5, 2)
	ctx := context.Background()

	rolls, err := svc.Roll(ctx, 1, "Alice", []Request{{Sides: 6, Count: 3, Modifier: -2}})
	require.NoError(t, err)
	require.Len(t, rolls, 1)
	assert.Equal(t, []int{1, 6, 3}, rolls[0].Rolls)
	assert.Equal(t, 8, rolls[0].Total)
	assert.Equal(t, "3d6 -2", rolls[0].Notation())
	assert.NotZero(t, rolls[0].ID)
}

func TestRollStaysWithinFaces(t *testing.T) {
	svc := NewService(NewInMemoryStore(), 10)
	rolls, err := svc.Roll(context.Background(), 1, "Alice", []Request{{Sides: 20, Count: 100}})
	require.NoError(t, err)
	for _, v := range rolls[0].Rolls {
		assert.GreaterOrEqual(t, v, 1)
		assert.LessOrEqual(t, v, 20)
	}
}

func TestRollValidation(t *testing.T) {
	svc := NewService(NewInMemoryStore(), 10)
	ctx := context.Background()

	for _, groups := range [][]Request{
		nil,
		{{Sides: 0, Count: 1}},
		{{Sides: 6, Count: 0}},
		{{Sides: MaxSides + 1, Count: 1}},
		{{Sides: 6, Count: 1}, {Sides: 6, Count: MaxCount + 1}},
	} {
		_, err := svc.Roll(ctx, 1, "Alice", groups)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "groups %v", groups)
	}
	assert.Empty(t, svc.Recent(), "invalid requests roll nothing")
}

func TestHistoryIsBounded(t *testing.T) {
	svc := NewService(NewInMemoryStore(), 3)
	ctx := context.Background()
	for sides := 2; sides <= 6; sides++ {
		_, err := svc.Roll(ctx, 1, "Alice", []Request{{Sides: sides, Count: 1}})
		require.NoError(t, err)
	}
	recent := svc.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, 4, recent[0].Sides)
	assert.Equal(t, 6, recent[2].Sides)
}

func TestStatsListsCallerFirst(t *testing.T) {
	svc := NewService(NewInMemoryStore(), 10)
	svc.random = sequence(3) // always a 4
	ctx := context.Background()

	_, err := svc.Roll(ctx, 1, "Alice", []Request{{Sides: 6, Count: 2, Modifier: 3}, {Sides: 20, Count: 1}})
	require.NoError(t, err)
	_, err = svc.Roll(ctx, 2, "Zed", []Request{{Sides: 6, Count: 1}})
	require.NoError(t, err)
	_, err = svc.Roll(ctx, 1, "Alice", []Request{{Sides: 6, Count: 1}})
	require.NoError(t, err)

	got, err := svc.Stats(ctx, 2)
	require.NoError(t, err)
	want := []PlayerStats{
		{UserID: 2, Username: "Zed", Dice: []DieStats{{Sides: 6, Rolls: 1, DiceRolled: 1, Average: 4, Max: 4}}},
		{UserID: 1, Username: "Alice", Dice: []DieStats{
			{Sides: 6, Rolls: 2, DiceRolled: 3, Average: 4, Max: 11},
			{Sides: 20, Rolls: 1, DiceRolled: 1, Average: 4, Max: 4},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPostgresStoreAggregate(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	u, err := identity.NewPostgresStore(db).CreateUser(ctx, "Alice", "h", false)
	require.NoError(t, err)

	store := NewPostgresStore(db)
	for _, r := range []models.DiceRoll{
		{UserID: u.ID, Sides: 6, Count: 2, Modifier: 1, Rolls: []int{2, 5}, Total: 8},
		{UserID: u.ID, Sides: 6, Count: 1, Rolls: []int{6}, Total: 6},
	} {
		r := r
		require.NoError(t, store.Insert(ctx, &r))
		assert.NotZero(t, r.ID)
	}

	rows, err := store.Aggregate(ctx)
	require.NoError(t, err)
	want := []StatRow{{UserID: u.ID, Username: "Alice", Sides: 6, Rolls: 2, DiceRolled: 3, FaceSum: 13, Best: 8}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}
