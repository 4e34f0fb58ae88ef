package chathub_test

import (
	"marketchat/backend/internal/chathub"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDMRoomKey_IsUnordered(t *testing.T) {
	assert.Equal(t, "dm:alice:bob", chathub.DMRoomKey("alice", "bob"))
	assert.Equal(t, chathub.DMRoomKey("alice", "bob"), chathub.DMRoomKey("bob", "alice"))
	assert.Equal(t, "product:p1", chathub.ProductRoomKey("p1"))
}

func TestParseRoomKey(t *testing.T) {
	ref, err := chathub.ParseRoomKey("dm:alice:bob")
	require.NoError(t, err)
	assert.Equal(t, chathub.RoomDM, ref.Kind)
	assert.Equal(t, [2]string{"alice", "bob"}, ref.Participants)
	assert.True(t, ref.Allows("alice"))
	assert.False(t, ref.Allows("carol"))
	assert.False(t, ref.Allows(""))

	ref, err = chathub.ParseRoomKey("product:p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", ref.ProductID)
	assert.True(t, ref.Allows(""), "product rooms are public")
	assert.Equal(t, "product:p1", ref.Key())

	for _, bad := range []string{"", "dm", "dm:", "dm:alice", "dm:bob:alice", "dm:alice:alice", "dm:a:b:c", "chat:x", "product:"} {
		_, err := chathub.ParseRoomKey(bad)
		assert.Error(t, err, bad)
	}
}
