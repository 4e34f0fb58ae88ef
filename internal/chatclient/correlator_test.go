package chatclient_test

import (
	"errors"
	"marketchat/backend/internal/chatclient"
	"marketchat/backend/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await(t *testing.T, ch <-chan chatclient.AckResult) chatclient.AckResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never resolved")
		return chatclient.AckResult{}
	}
}

func TestCorrelator_Resolve(t *testing.T) {
	c := chatclient.NewCorrelator()
	ch := c.Register("c-1", time.Minute)
	assert.Equal(t, 1, c.Pending())

	assert.True(t, c.Resolve("c-1", models.MessageAckPayload{CorrelationID: "c-1"}))
	res := await(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, "c-1", res.Ack.CorrelationID)

	assert.False(t, c.Resolve("c-1", models.MessageAckPayload{}), "resolved only once")
	assert.False(t, c.Resolve("unknown", models.MessageAckPayload{}))
	assert.Zero(t, c.Pending())
}

func TestCorrelator_Timeout(t *testing.T) {
	c := chatclient.NewCorrelator()
	ch := c.Register("c-1", 10*time.Millisecond)

	res := await(t, ch)
	assert.ErrorIs(t, res.Err, chatclient.ErrAckTimeout)
	assert.False(t, c.Resolve("c-1", models.MessageAckPayload{}), "a late ack finds nobody waiting")
}

func TestCorrelator_FailAllAndCancel(t *testing.T) {
	c := chatclient.NewCorrelator()
	a := c.Register("a", time.Minute)
	b := c.Register("b", time.Minute)
	x := c.Register("x", time.Minute)

	boom := errors.New("write failed")
	assert.True(t, c.Cancel("x", boom))
	assert.ErrorIs(t, await(t, x).Err, boom)

	assert.Equal(t, 2, c.FailAll(chatclient.ErrClosed))
	assert.ErrorIs(t, await(t, a).Err, chatclient.ErrClosed)
	assert.ErrorIs(t, await(t, b).Err, chatclient.ErrClosed)
	assert.Zero(t, c.Pending())
}
