package messages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

func readFlags(msgs []models.Message) []bool {
	out := make([]bool, len(msgs))
	for i, m := range msgs {
		out[i] = m.IsRead
	}
	return out
}

func TestFetchThreadMarksOnlyMessagesAddressedToCaller(t *testing.T) {
	svc := NewService(NewInMemoryStore())
	ctx := context.Background()
	alice, bob := models.Human(1), models.Bot(1)

	_, err := svc.Send(ctx, alice, bob, "Is the inn open?")
	require.NoError(t, err)
	_, err = svc.Send(ctx, bob, alice, "Always.")
	require.NoError(t, err)

	// Alice's view consumes only Bob's reply
	thread, err := svc.FetchThread(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, []bool{false, false}, readFlags(thread))

	thread, err = svc.FetchThread(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, readFlags(thread))

	n, err := svc.CountUnread(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	thread, err = svc.FetchThread(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, readFlags(thread))

	thread, err = svc.FetchThread(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, readFlags(thread))
}

func TestFetchThreadOrdersByCreationThenID(t *testing.T) {
	store := NewInMemoryStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	svc := NewService(store)
	ctx := context.Background()
	a, b := models.Human(1), models.Human(2)

	for _, body := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, a, b, body)
		require.NoError(t, err)
	}
	// Unrelated conversation stays out of the thread
	_, err := svc.Send(ctx, a, models.Human(3), "elsewhere")
	require.NoError(t, err)

	thread, err := svc.FetchThread(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	for i, body := range []string{"one", "two", "three"} {
		assert.Equal(t, body, thread[i].Content)
	}
	assert.Less(t, thread[0].ID, thread[1].ID)
}

func TestSendValidation(t *testing.T) {
	svc := NewService(NewInMemoryStore())
	ctx := context.Background()
	a := models.Human(1)

	_, err := svc.Send(ctx, a, a, "hello me")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Send(ctx, a, models.Bot(1), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Send(ctx, a, models.Bot(1), strings.Repeat("x", MaxContentLength+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	// A human and a bot sharing a numeric id are distinct identities
	_, err = svc.Send(ctx, a, models.Bot(1), "hi")
	assert.NoError(t, err)

	_, err = svc.FetchThread(ctx, a, models.Ref{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
