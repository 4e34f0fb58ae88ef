package chathub_test

import (
	"context"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dmWithMessage connects alice and bob, joins both to their DM room and
// stores one message from alice to bob.
func dmWithMessage(t *testing.T, hub *chathub.ManagerService) (alice, bob *MockClient, msg *models.Message) {
	t.Helper()
	alice = connect(hub, "alice")
	bob = connect(hub, "bob")
	room := chathub.DMRoomKey("alice", "bob")
	require.NoError(t, hub.JoinRoom(alice, room))
	require.NoError(t, hub.JoinRoom(bob, room))

	msg, err := hub.SendMessage(context.Background(), alice, "c-1", models.SendMessagePayload{ReceiverID: "bob", Content: "hello"})
	require.NoError(t, err)
	alice.drain()
	bob.drain()
	return alice, bob, msg
}

func TestToggleReaction_TwiceRemovesKey(t *testing.T) {
	st := storage.NewMemoryStore()
	hub := newTestHub(t, st)
	alice, bob, msg := dmWithMessage(t, hub)

	p := models.ToggleReactionPayload{TargetID: msg.ID, TargetKind: models.TargetMessage, Emoji: "👍"}

	set, err := hub.ToggleReaction(context.Background(), "bob", p)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionSet{"👍": {"bob"}}, set)

	updates := alice.ofType(models.EventReactionUpdated)
	require.Len(t, updates, 1)
	got := payload[models.ReactionUpdatedPayload](t, updates[0])
	assert.Equal(t, msg.ID, got.TargetID)
	assert.Equal(t, []string{"bob"}, got.Reactions["👍"])
	require.Len(t, bob.ofType(models.EventReactionUpdated), 1, "toggler sees the update too")

	set, err = hub.ToggleReaction(context.Background(), "bob", p)
	require.NoError(t, err)
	_, present := set["👍"]
	assert.False(t, present)

	updates = alice.ofType(models.EventReactionUpdated)
	require.Len(t, updates, 1)
	assert.JSONEq(t, `{}`, string(mustJSON(t, payload[models.ReactionUpdatedPayload](t, updates[0]).Reactions)))

	stored, err := st.GetReactions(context.Background(), models.ReactionTarget{Kind: models.TargetMessage, ID: msg.ID})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestToggleReaction_ConcurrentTogglesAreSerialized(t *testing.T) {
	st := storage.NewMemoryStore()
	hub := newTestHub(t, st)
	_, _, msg := dmWithMessage(t, hub)

	var wg sync.WaitGroup
	for _, u := range []string{"alice", "bob"} {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := hub.ToggleReaction(context.Background(), u, models.ToggleReactionPayload{TargetID: msg.ID, Emoji: "❤️"})
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	// Three toggles each: both users end with the reaction on.
	stored, err := st.GetReactions(context.Background(), models.ReactionTarget{Kind: models.TargetMessage, ID: msg.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, stored["❤️"])
}

func TestToggleReaction_Errors(t *testing.T) {
	hub := newTestHub(t, storage.NewMemoryStore())
	_, _, msg := dmWithMessage(t, hub)
	ctx := context.Background()

	_, err := hub.ToggleReaction(ctx, "", models.ToggleReactionPayload{TargetID: msg.ID, Emoji: "👍"})
	assert.ErrorIs(t, err, chathub.ErrUnauthorized)

	_, err = hub.ToggleReaction(ctx, "carol", models.ToggleReactionPayload{TargetID: msg.ID, Emoji: "👍"})
	assert.ErrorIs(t, err, chathub.ErrUnauthorized, "outsiders cannot react in a DM")

	_, err = hub.ToggleReaction(ctx, "bob", models.ToggleReactionPayload{TargetID: "not-a-uuid", Emoji: "👍"})
	assert.ErrorIs(t, err, chathub.ErrValidation)

	_, err = hub.ToggleReaction(ctx, "bob", models.ToggleReactionPayload{TargetID: msg.ID, Emoji: ""})
	assert.ErrorIs(t, err, chathub.ErrValidation)

	_, err = hub.ToggleReaction(ctx, "bob", models.ToggleReactionPayload{TargetID: msg.ID, TargetKind: "product", Emoji: "👍"})
	assert.ErrorIs(t, err, chathub.ErrValidation)

	set, err := hub.ToggleReaction(ctx, "bob", models.ToggleReactionPayload{TargetID: uuid.NewString(), Emoji: "👍"})
	assert.NoError(t, err, "vanished target is a no-op")
	assert.Nil(t, set)
}

func TestToggleReaction_OnCommentBroadcastsToProductRoom(t *testing.T) {
	hub := newTestHub(t, storage.NewMemoryStore())
	viewer := connect(hub, "")
	seller := connect(hub, "seller")
	require.NoError(t, hub.JoinRoom(viewer, chathub.ProductRoomKey("p1")))

	comment, err := hub.PostComment(context.Background(), "seller", models.PostCommentPayload{ProductID: "p1", Content: "ships tomorrow"})
	require.NoError(t, err)
	viewer.drain()
	seller.drain()

	_, err = hub.ToggleReaction(context.Background(), "buyer", models.ToggleReactionPayload{
		TargetID:   comment.ID,
		TargetKind: models.TargetComment,
		Emoji:      "🔥",
	})
	require.NoError(t, err)

	updates := viewer.ofType(models.EventReactionUpdated)
	require.Len(t, updates, 1)
	got := payload[models.ReactionUpdatedPayload](t, updates[0])
	assert.Equal(t, models.TargetComment, got.TargetKind)
	assert.Equal(t, []string{"buyer"}, got.Reactions["🔥"])
	assert.Empty(t, seller.drain(), "not in the product room")
}
