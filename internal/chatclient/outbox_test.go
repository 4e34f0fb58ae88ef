package chatclient_test

import (
	"marketchat/backend/internal/chatclient"
	"marketchat/backend/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one millisecond per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

// persist plays the server: it turns a payload into a stored message.
func persist(sender string, p models.SendMessagePayload) models.Message {
	return models.Message{
		ID:              uuid.NewString(),
		SenderID:        sender,
		ReceiverID:      p.ReceiverID,
		Content:         p.Content,
		ClientTimestamp: p.ClientTimestamp,
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestOutbox_AckReconcilesPending(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	entry, p := o.Compose("bob", "hello")
	assert.Equal(t, chatclient.StatusSending, entry.Status)
	assert.Empty(t, entry.Message.ID)
	assert.NotEqual(t, entry.LocalID, entry.CorrelationID, "local ids never double as correlation ids")

	msg := persist("alice", p)
	require.True(t, o.HandleAck(models.MessageAckPayload{CorrelationID: entry.CorrelationID, Message: &msg}))

	view := o.Messages()
	require.Len(t, view, 1)
	assert.Equal(t, chatclient.StatusSent, view[0].Status)
	assert.Equal(t, msg.ID, view[0].Message.ID)
	assert.Equal(t, entry.LocalID, view[0].LocalID)

	assert.False(t, o.HandleReceived(msg), "a later broadcast of the same message is dropped")
	assert.Len(t, o.Messages(), 1)
}

func TestOutbox_BroadcastBeforeAck(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	entry, p := o.Compose("bob", "hello")
	msg := persist("alice", p)

	assert.True(t, o.HandleReceived(msg))
	require.True(t, o.HandleAck(models.MessageAckPayload{CorrelationID: entry.CorrelationID, Message: &msg}))

	view := o.Messages()
	require.Len(t, view, 1, "exactly one entry regardless of arrival order")
	assert.Equal(t, chatclient.StatusSent, view[0].Status)
	assert.Equal(t, msg.ID, view[0].Message.ID)
}

func TestOutbox_SameContentDoesNotCrossMatch(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	first, p1 := o.Compose("bob", "ok")
	second, p2 := o.Compose("bob", "ok")

	// The second send's broadcast arrives first.
	m2 := persist("alice", p2)
	o.HandleReceived(m2)

	view := o.Messages()
	require.Len(t, view, 2)
	assert.Equal(t, chatclient.StatusSending, view[0].Status, "first is still pending")
	assert.Equal(t, m2.ID, view[1].Message.ID)

	m1 := persist("alice", p1)
	o.HandleAck(models.MessageAckPayload{CorrelationID: first.CorrelationID, Message: &m1})
	o.HandleAck(models.MessageAckPayload{CorrelationID: second.CorrelationID, Message: &m2})

	view = o.Messages()
	require.Len(t, view, 2)
	assert.Equal(t, m1.ID, view[0].Message.ID)
	assert.Equal(t, m2.ID, view[1].Message.ID)
}

func TestOutbox_UnmatchedBroadcastThenAckCollapses(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	entry, p := o.Compose("bob", "hello")
	msg := persist("alice", p)
	msg.ClientTimestamp = time.Time{} // a server that did not echo the timestamp

	o.HandleReceived(msg)
	require.Len(t, o.Messages(), 2)

	o.HandleAck(models.MessageAckPayload{CorrelationID: entry.CorrelationID, Message: &msg})
	view := o.Messages()
	require.Len(t, view, 1)
	assert.Equal(t, entry.LocalID, view[0].LocalID)
	assert.Equal(t, msg.ID, view[0].Message.ID)
}

func TestOutbox_FailureAndRetry(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	entry, _ := o.Compose("bob", "hello")

	o.HandleAck(models.MessageAckPayload{
		CorrelationID: entry.CorrelationID,
		Error:         &models.ErrorPayload{Code: "transient_io", Message: "temporary failure, please retry"},
	})
	view := o.Messages()
	require.Len(t, view, 1, "failed messages stay visible")
	assert.Equal(t, chatclient.StatusFailed, view[0].Status)
	assert.Equal(t, "temporary failure, please retry", view[0].Reason)

	retried, p, err := o.Retry(entry.LocalID)
	require.NoError(t, err)
	assert.Equal(t, chatclient.StatusSending, retried.Status)
	assert.NotEqual(t, entry.CorrelationID, retried.CorrelationID)
	assert.True(t, p.ClientTimestamp.After(entry.Message.ClientTimestamp))

	assert.False(t, o.HandleAck(models.MessageAckPayload{CorrelationID: entry.CorrelationID}), "old correlation id is forgotten")

	msg := persist("alice", p)
	o.HandleAck(models.MessageAckPayload{CorrelationID: retried.CorrelationID, Message: &msg})
	assert.Equal(t, chatclient.StatusSent, o.Messages()[0].Status)

	_, _, err = o.Retry(entry.LocalID)
	assert.ErrorIs(t, err, chatclient.ErrNotFailed)
	_, _, err = o.Retry("nope")
	assert.ErrorIs(t, err, chatclient.ErrUnknownEntry)
}

func TestOutbox_EditFailedBeforeRetry(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	entry, _ := o.Compose("bob", "helo")
	assert.ErrorIs(t, o.Edit(entry.LocalID, "hello"), chatclient.ErrNotFailed, "sending entries are not editable")

	require.True(t, o.Fail(entry.CorrelationID, "ack timeout"))
	assert.ErrorIs(t, o.Edit(entry.LocalID, "  "), chatclient.ErrEmptyContent)
	assert.ErrorIs(t, o.Edit("nope", "hello"), chatclient.ErrUnknownEntry)
	require.NoError(t, o.Edit(entry.LocalID, "hello"))

	retried, p, err := o.Retry(entry.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, "hello", retried.Message.Content)
	require.Len(t, o.Messages(), 1)
}

func TestOutbox_FailPending(t *testing.T) {
	o := chatclient.NewOutbox("alice", tickingClock())
	a, pa := o.Compose("bob", "one")
	o.Compose("bob", "two")
	msg := persist("alice", pa)
	o.HandleAck(models.MessageAckPayload{CorrelationID: a.CorrelationID, Message: &msg})

	assert.Equal(t, 1, o.FailPending("connection closed"))
	view := o.Messages()
	assert.Equal(t, chatclient.StatusSent, view[0].Status)
	assert.Equal(t, chatclient.StatusFailed, view[1].Status)
	assert.Equal(t, "connection closed", view[1].Reason)
}

func TestOutbox_IncomingFromPeerIsDeduplicated(t *testing.T) {
	o := chatclient.NewOutbox("bob", nil)
	msg := models.Message{ID: uuid.NewString(), SenderID: "alice", ReceiverID: "bob", Content: "hi"}

	assert.True(t, o.HandleReceived(msg))
	assert.False(t, o.HandleReceived(msg))
	assert.Len(t, o.Messages(), 1)
	assert.False(t, o.HandleAck(models.MessageAckPayload{CorrelationID: "unknown"}))
}
