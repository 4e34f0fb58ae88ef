package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a persisted direct message between two users.
// It is immutable once created except for the Read flag.
type Message struct {
	// ID is assigned by storage (UUID) in BeforeCreate.
	ID string `gorm:"primaryKey" json:"id"`
	// SenderID is the identity of the author.
	SenderID string `gorm:"type:text;not null;index:idx_conversation,priority:1" json:"sender_id"`
	// ReceiverID is the identity of the peer.
	ReceiverID string `gorm:"type:text;not null;index:idx_conversation,priority:2" json:"receiver_id"`
	// Content is the message text. May be empty when an attachment is present.
	Content string `gorm:"type:text;not null" json:"content"`
	// AttachmentURL points at the uploaded object, if any.
	AttachmentURL string `gorm:"type:text" json:"attachment_url,omitempty"`
	// ClientTimestamp is the sender's local compose time, echoed back for reconciliation.
	ClientTimestamp time.Time `json:"client_timestamp"`
	// CreatedAt is assigned by the server and defines conversation order.
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	// Read is flipped once by the receiver.
	Read bool `gorm:"not null;default:false" json:"read"`
}

// BeforeCreate generates a UUID for the message if none is set.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// Participants returns sender and receiver.
func (m *Message) Participants() (string, string) {
	return m.SenderID, m.ReceiverID
}

// HasParticipant reports whether userID is the sender or the receiver.
func (m *Message) HasParticipant(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.ReceiverID == userID)
}
