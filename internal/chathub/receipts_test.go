package chathub_test

import (
	"context"
	"errors"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMarkRead_TwiceEmitsOneReceipt(t *testing.T) {
	st := storage.NewMemoryStore()
	hub := newTestHub(t, st)
	alice, bob, msg := dmWithMessage(t, hub)
	aliceTab2 := connect(hub, "alice")

	require.NoError(t, hub.MarkRead(context.Background(), "bob", msg.ID))
	require.NoError(t, hub.MarkRead(context.Background(), "bob", msg.ID))

	for _, c := range []*MockClient{alice, aliceTab2} {
		receipts := c.ofType(models.EventReadReceipt)
		require.Len(t, receipts, 1)
		got := payload[models.ReadReceiptPayload](t, receipts[0])
		assert.Equal(t, msg.ID, got.MessageID)
		assert.Equal(t, "bob", got.ReaderID)
	}
	assert.Empty(t, bob.ofType(models.EventReadReceipt))

	stored, err := st.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
}

func TestMarkRead_OnlyReceiverMayMark(t *testing.T) {
	hub := newTestHub(t, storage.NewMemoryStore())
	_, _, msg := dmWithMessage(t, hub)

	assert.ErrorIs(t, hub.MarkRead(context.Background(), "alice", msg.ID), chathub.ErrUnauthorized)
	assert.ErrorIs(t, hub.MarkRead(context.Background(), "", msg.ID), chathub.ErrUnauthorized)
	assert.ErrorIs(t, hub.MarkRead(context.Background(), "bob", "nope"), chathub.ErrValidation)
	assert.NoError(t, hub.MarkRead(context.Background(), "bob", uuid.NewString()), "vanished message is a no-op")
}

func TestMarkRead_LostRaceDoesNotNotify(t *testing.T) {
	st := new(MockStorage)
	id := uuid.NewString()
	st.On("GetMessage", mock.Anything, id).Return(&models.Message{ID: id, SenderID: "alice", ReceiverID: "bob"}, nil)
	st.On("MarkMessageRead", mock.Anything, id).Return(false, nil)
	hub := newTestHub(t, st)
	alice := connect(hub, "alice")

	require.NoError(t, hub.MarkRead(context.Background(), "bob", id))
	assert.Empty(t, alice.ofType(models.EventReadReceipt))
	st.AssertExpectations(t)
}

func TestMarkRead_StorageFailure(t *testing.T) {
	st := new(MockStorage)
	id := uuid.NewString()
	st.On("GetMessage", mock.Anything, id).Return(nil, errors.New("timeout"))
	hub := newTestHub(t, st)

	err := hub.MarkRead(context.Background(), "bob", id)
	assert.ErrorIs(t, err, chathub.ErrTransientIO)
	assert.Equal(t, chathub.CodeTransientIO, chathub.ErrorCode(err))
}
