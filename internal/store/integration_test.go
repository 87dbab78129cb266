//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/store"
	"github.com/fahadahaf/chat-ui/internal/testutil"
)

func seedUser(t *testing.T, tdb *testutil.TestDB, id string) {
	t.Helper()
	_, err := tdb.Pool.Exec(context.Background(),
		`INSERT INTO users (id, email, name, role) VALUES ($1, $2, '', 'user')`,
		id, id+"@example.com")
	require.NoError(t, err)
}

func TestStore_CreateAndListChats_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_1")

	first, err := s.CreateChat(ctx, "u_1", store.ProviderOllama, "sales questions")
	require.NoError(t, err)
	assert.Equal(t, "sales questions", first.SessionName)
	assert.NotZero(t, first.CreatedAt)

	_, err = s.CreateChat(ctx, "u_1", store.ProviderAmazon, "second")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "u_1")
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestStore_ChatLimit_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_limit")

	for i := 0; i < store.MaxChatsPerUser; i++ {
		_, err := s.CreateChat(ctx, "u_limit", store.ProviderOllama, fmt.Sprintf("chat %d", i))
		require.NoError(t, err)
	}

	_, err := s.CreateChat(ctx, "u_limit", store.ProviderOllama, "over the limit")
	require.ErrorIs(t, err, store.ErrChatLimit)

	chats, err := s.ListChats(ctx, "u_limit")
	require.NoError(t, err)
	assert.Len(t, chats, store.MaxChatsPerUser, "rejected creation must not alter existing chats")
}

func TestStore_ChatLimit_Concurrent_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_race")

	// Racing creations must collectively respect the limit thanks to the
	// per-user advisory lock.
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateChat(ctx, "u_race", store.ProviderOllama, fmt.Sprintf("racer %d", i))
		}(i)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrChatLimit):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, store.MaxChatsPerUser, ok)
	assert.Equal(t, len(errs)-store.MaxChatsPerUser, limited)

	chats, err := s.ListChats(ctx, "u_race")
	require.NoError(t, err)
	assert.Len(t, chats, store.MaxChatsPerUser)
}

func TestStore_MessageCascade_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_casc")

	c, err := s.CreateChat(ctx, "u_casc", store.ProviderOllama, "doomed")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, c.ID, "user", "hello", nil)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, "agent", "hi", []byte(`{"reasoning_steps":[{"title":"t"}]}`))
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role, "messages must list in creation order")

	require.NoError(t, s.DeleteChat(ctx, c.ID))

	msgs, err = s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "deleting a chat must cascade to its messages")

	_, err = s.GetChat(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_RenameChat_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_ren")

	c, err := s.CreateChat(ctx, "u_ren", store.ProviderAmazon, "old name")
	require.NoError(t, err)

	require.NoError(t, s.RenameChat(ctx, c.ID, "new name"))

	got, err := s.GetChat(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "new name", got.SessionName)
}

func TestStore_GetUser_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.NewFromPool(tdb.Pool, log.NewNop())
	ctx := context.Background()
	seedUser(t, tdb, "u_get")

	u, err := s.GetUser(ctx, "u_get")
	require.NoError(t, err)
	assert.Equal(t, "u_get@example.com", u.Email)

	_, err = s.GetUser(ctx, "u_missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
