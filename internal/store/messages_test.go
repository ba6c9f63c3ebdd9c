// ABOUTME: Tests for the append-only message log
// ABOUTME: Covers sequence assignment, gap-free ordering, and closed-session appends

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendMessage_AssignsSequence(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))

	for i := 1; i <= 3; i++ {
		msg := &Message{
			SessionID: "sess-1",
			Sender:    "customer:cust-1",
			Body:      fmt.Sprintf("message %d", i),
		}
		require.NoError(t, store.AppendMessage(ctx, msg))
		assert.Equal(t, int64(i), msg.Seq)
		assert.False(t, msg.SentAt.IsZero())
	}

	session, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), session.LastSeq)
}

func TestStore_AppendMessage_ClosedSession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))
	mustClose(t, store, "sess-1")

	err := store.AppendMessage(ctx, &Message{
		SessionID: "sess-1",
		Sender:    "customer:cust-1",
		Body:      "too late",
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestStore_AppendMessage_MissingSession(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendMessage(context.Background(), &Message{
		SessionID: "nope",
		Sender:    "customer:cust-1",
		Body:      "hello",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_ListMessages_RoundTripAndOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))

	bodies := []string{"Hello", "Hi, how can I help?", "My order is late"}
	for _, body := range bodies {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			SessionID: "sess-1",
			Sender:    "customer:cust-1",
			Body:      body,
		}))
	}

	msgs, err := store.ListMessages(ctx, "sess-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, len(bodies))
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq)
		assert.Equal(t, bodies[i], msg.Body)
	}
}

func TestStore_ListMessages_CatchUpAfterSeq(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			SessionID: "sess-1",
			Sender:    "customer:cust-1",
			Body:      fmt.Sprintf("message %d", i),
		}))
	}

	// Subscriber saw up to seq 3; catch-up returns exactly 4 and 5
	msgs, err := store.ListMessages(ctx, "sess-1", 3, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(4), msgs[0].Seq)
	assert.Equal(t, int64(5), msgs[1].Seq)
}

func TestStore_ListMessages_SessionsAreIsolated(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))
	require.NoError(t, store.CreateSession(ctx, makeSession("sess-2", "cust-2")))

	require.NoError(t, store.AppendMessage(ctx, &Message{SessionID: "sess-1", Sender: "customer:cust-1", Body: "a"}))
	require.NoError(t, store.AppendMessage(ctx, &Message{SessionID: "sess-2", Sender: "customer:cust-2", Body: "b"}))

	msgs, err := store.ListMessages(ctx, "sess-2", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].Seq)
	assert.Equal(t, "b", msgs[0].Body)
}

func TestStore_ConcurrentAppends_NoGapsNoDuplicates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, makeSession("sess-1", "cust-1")))

	const writers = 4
	const perWriter = 10

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := &Message{
					SessionID: "sess-1",
					Sender:    fmt.Sprintf("admin:writer-%d", w),
					Body:      fmt.Sprintf("writer %d message %d", w, i),
				}
				if err := store.AppendMessage(ctx, msg); err != nil {
					errs[w] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, "sess-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)
	for i, msg := range msgs {
		assert.Equal(t, int64(i+1), msg.Seq, "sequence must be gap-free and ascending")
	}
}
