package chathub

import (
	"fmt"
	"strings"
)

// Room kinds.
const (
	RoomDM      = "dm"
	RoomProduct = "product"
)

const roomKeySep = ":"

// DMRoomKey returns the canonical key of the direct-message room between a
// and b. The pair is unordered: DMRoomKey(a, b) == DMRoomKey(b, a).
func DMRoomKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return RoomDM + roomKeySep + a + roomKeySep + b
}

// ProductRoomKey returns the key of a product's comment room.
func ProductRoomKey(productID string) string {
	return RoomProduct + roomKeySep + productID
}

// RoomRef is a parsed room key.
type RoomRef struct {
	Kind string
	// Participants holds the two user ids of a DM room in canonical order.
	Participants [2]string
	ProductID    string
}

// Key renders the canonical key again.
func (r RoomRef) Key() string {
	if r.Kind == RoomDM {
		return DMRoomKey(r.Participants[0], r.Participants[1])
	}
	return ProductRoomKey(r.ProductID)
}

// Allows reports whether userID may join the room. Product rooms are public;
// DM rooms admit their two participants only.
func (r RoomRef) Allows(userID string) bool {
	if r.Kind == RoomProduct {
		return true
	}
	return userID != "" && (r.Participants[0] == userID || r.Participants[1] == userID)
}

// ParseRoomKey validates key and splits it into its parts. A DM key must be
// canonical and name two distinct users.
func ParseRoomKey(key string) (RoomRef, error) {
	kind, rest, ok := strings.Cut(key, roomKeySep)
	if !ok || rest == "" {
		return RoomRef{}, fmt.Errorf("malformed room key %q", key)
	}

	switch kind {
	case RoomProduct:
		return RoomRef{Kind: RoomProduct, ProductID: rest}, nil
	case RoomDM:
		a, b, ok := strings.Cut(rest, roomKeySep)
		if !ok || a == "" || b == "" || strings.Contains(b, roomKeySep) {
			return RoomRef{}, fmt.Errorf("malformed dm room key %q", key)
		}
		if a == b {
			return RoomRef{}, fmt.Errorf("dm room key %q names the same user twice", key)
		}
		if DMRoomKey(a, b) != key {
			return RoomRef{}, fmt.Errorf("dm room key %q is not canonical", key)
		}
		return RoomRef{Kind: RoomDM, Participants: [2]string{a, b}}, nil
	default:
		return RoomRef{}, fmt.Errorf("unknown room kind %q", kind)
	}
}
