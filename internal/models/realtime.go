package models

import (
	"encoding/json"
	"time"
)

// Event types sent by clients.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendMessage    = "send-message"
	EventToggleReaction = "toggle-reaction"
	EventMarkRead       = "mark-read"
	EventPostComment    = "post-comment"
	EventDeleteComment  = "delete-comment"
)

// Event types emitted by the server.
const (
	EventPresenceChanged = "presence-changed"
	EventMessageReceived = "message-received"
	EventMessageAck      = "message-ack"
	EventReactionUpdated = "reaction-updated"
	EventReadReceipt     = "read-receipt"
	EventCommentCreated  = "comment-created"
	EventCommentDeleted  = "comment-deleted"
	EventRoomJoined      = "room-joined"
	EventRoomLeft        = "room-left"
	EventError           = "error"
)

// Event is the wire envelope for every frame in both directions.
type Event struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	ev := Event{Type: eventType}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Payload = raw
	return ev, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal(e.Payload, dst)
}

// ---- client -> server payloads ----

type RoomPayload struct {
	RoomKey string `json:"room_key"`
}

// Attachment carries raw bytes to be uploaded before the message is persisted.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type SendMessagePayload struct {
	ReceiverID      string      `json:"receiver_id"`
	Content         string      `json:"content"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	ClientTimestamp time.Time   `json:"client_timestamp"`
}

type ToggleReactionPayload struct {
	TargetID   string `json:"target_id"`
	TargetKind string `json:"target_kind"`
	Emoji      string `json:"emoji"`
}

type MarkReadPayload struct {
	MessageID string `json:"message_id"`
}

type PostCommentPayload struct {
	ProductID string  `json:"product_id"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parent_id,omitempty"`
}

type DeleteCommentPayload struct {
	CommentID string `json:"comment_id"`
}

// ---- server -> client payloads ----

type PresencePayload struct {
	OnlineUserIDs []string `json:"online_user_ids"`
	Version       uint64   `json:"version"`
}

type MessagePayload struct {
	Message Message `json:"message"`
}

// ErrorPayload describes a failed operation to its initiator only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageAckPayload answers a send-message. Exactly one of Message and Error is set.
type MessageAckPayload struct {
	CorrelationID string        `json:"correlation_id"`
	Message       *Message      `json:"message,omitempty"`
	Error         *ErrorPayload `json:"error,omitempty"`
}

type ReactionUpdatedPayload struct {
	TargetID   string      `json:"target_id"`
	TargetKind string      `json:"target_kind"`
	Reactions  ReactionSet `json:"reactions"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"message_id"`
	ReaderID  string `json:"reader_id"`
}

type CommentPayload struct {
	Comment Comment `json:"comment"`
}

type CommentDeletedPayload struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	ProductID string  `json:"product_id"`
}
