package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gigmarket/internal/actor"
)

func newChatFixture() (*ChatService, *fakeConversationStore, *fakeMessageStore) {
	conversations := newFakeConversationStore()
	messages := newFakeMessageStore()
	return NewChatService(conversations, messages, zap.NewNop()), conversations, messages
}

func TestGetOrCreateConversation(t *testing.T) {
	ctx := context.Background()
	client := actor.Client{UserID: clientID}
	freelancer := actor.Freelancer{UserID: freelancerID}

	t.Run("creates once and returns the same row from either side", func(t *testing.T) {
		svc, store, _ := newChatFixture()

		first, err := svc.GetOrCreate(ctx, client, freelancerID)
		require.NoError(t, err)
		second, err := svc.GetOrCreate(ctx, freelancer, clientID)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.count())
		assert.Equal(t, clientID, first.ClientID)
		assert.Equal(t, freelancerID, first.FreelancerID)
	})

	t.Run("concurrent creators converge on the lowest id", func(t *testing.T) {
		svc, _, _ := newChatFixture()

		const attempts = 16
		ids := make([]int64, attempts)
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				who := actor.Actor(client)
				other := freelancerID
				if i%2 == 1 {
					who = freelancer
					other = clientID
				}
				c, err := svc.GetOrCreate(ctx, who, other)
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = c.ID
			}(i)
		}
		wg.Wait()

		for i := 0; i < attempts; i++ {
			require.NoError(t, errs[i])
		}

		// Duplicates may exist until the worker repairs them, but every
		// caller must have resolved to the same lowest-id conversation.
		for i := 1; i < attempts; i++ {
			assert.Equal(t, ids[0], ids[i])
		}
	})

	t.Run("rejects self-conversations and empty counterparts", func(t *testing.T) {
		svc, _, _ := newChatFixture()
		var valErr *ValidationError

		_, err := svc.GetOrCreate(ctx, client, clientID)
		assert.ErrorAs(t, err, &valErr)
		_, err = svc.GetOrCreate(ctx, client, "")
		assert.ErrorAs(t, err, &valErr)
	})
}

func TestMessaging(t *testing.T) {
	ctx := context.Background()
	client := actor.Client{UserID: clientID}
	freelancer := actor.Freelancer{UserID: freelancerID}

	t.Run("participants exchange messages in order", func(t *testing.T) {
		svc, _, _ := newChatFixture()
		c, err := svc.GetOrCreate(ctx, client, freelancerID)
		require.NoError(t, err)

		_, err = svc.SendMessage(ctx, client, c.ID, "hello")
		require.NoError(t, err)
		_, err = svc.SendMessage(ctx, freelancer, c.ID, "hi there")
		require.NoError(t, err)

		msgs, err := svc.ListMessages(ctx, client, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello", msgs[0].Body)
		assert.Equal(t, "hi there", msgs[1].Body)
	})

	t.Run("outsiders can neither write nor read", func(t *testing.T) {
		svc, _, _ := newChatFixture()
		c, err := svc.GetOrCreate(ctx, client, freelancerID)
		require.NoError(t, err)

		var authErr *AuthorizationError
		_, err = svc.SendMessage(ctx, actor.Client{UserID: strangerID}, c.ID, "let me in")
		assert.ErrorAs(t, err, &authErr)
		_, err = svc.ListMessages(ctx, actor.Freelancer{UserID: strangerID}, c.ID)
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("empty bodies and unknown conversations are rejected", func(t *testing.T) {
		svc, _, _ := newChatFixture()
		c, err := svc.GetOrCreate(ctx, client, freelancerID)
		require.NoError(t, err)

		var valErr *ValidationError
		_, err = svc.SendMessage(ctx, client, c.ID, "")
		assert.ErrorAs(t, err, &valErr)

		_, err = svc.SendMessage(ctx, client, c.ID+100, "anyone?")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
