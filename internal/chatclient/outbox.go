// Package chatclient is the client half of the direct-message protocol:
// optimistic sends, ack correlation and deduplication of broadcasts.
package chatclient

import (
	"errors"
	"marketchat/backend/internal/models"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of an outgoing message.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var (
	ErrUnknownEntry = errors.New("chatclient: unknown message")
	ErrNotFailed    = errors.New("chatclient: only failed messages can be edited or retried")
	ErrEmptyContent = errors.New("chatclient: content is empty")
)

// Entry is one message of the local conversation view. Until the server
// acknowledges it, Message carries no id and LocalID is a temporary id that
// never leaves this process.
type Entry struct {
	LocalID       string
	CorrelationID string
	Status        Status
	Message       models.Message
	// Reason is set when Status is failed.
	Reason string
}

// Outbox holds the conversation view of one connection. It is pure state:
// callers feed it acks and broadcasts in whatever order they arrive.
type Outbox struct {
	self string
	now  func() time.Time

	mu            sync.Mutex
	entries       []*Entry
	byLocal       map[string]*Entry
	byCorrelation map[string]*Entry
	byPersisted   map[string]*Entry
}

// NewOutbox builds an Outbox for the user self. now defaults to time.Now.
func NewOutbox(self string, now func() time.Time) *Outbox {
	if now == nil {
		now = time.Now
	}
	return &Outbox{
		self:          self,
		now:           now,
		byLocal:       make(map[string]*Entry),
		byCorrelation: make(map[string]*Entry),
		byPersisted:   make(map[string]*Entry),
	}
}

// Compose adds an optimistic entry in the sending state and returns it with
// the payload to put on the wire under entry.CorrelationID.
func (o *Outbox) Compose(receiverID, content string) (Entry, models.SendMessagePayload) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := &Entry{
		LocalID:       "local-" + uuid.NewString(),
		CorrelationID: uuid.NewString(),
		Status:        StatusSending,
		Message: models.Message{
			SenderID:        o.self,
			ReceiverID:      receiverID,
			Content:         content,
			ClientTimestamp: o.now().UTC(),
		},
	}
	o.entries = append(o.entries, e)
	o.byLocal[e.LocalID] = e
	o.byCorrelation[e.CorrelationID] = e
	return *e, payloadOf(e)
}

func payloadOf(e *Entry) models.SendMessagePayload {
	return models.SendMessagePayload{
		ReceiverID:      e.Message.ReceiverID,
		Content:         e.Message.Content,
		ClientTimestamp: e.Message.ClientTimestamp,
	}
}

// HandleAck reconciles the entry sent under ack.CorrelationID. It reports
// false for unknown correlation ids.
func (o *Outbox) HandleAck(ack models.MessageAckPayload) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := o.byCorrelation[ack.CorrelationID]
	if e == nil {
		return false
	}
	if ack.Message == nil {
		if e.Status == StatusSending {
			e.Status = StatusFailed
			e.Reason = "rejected"
			if ack.Error != nil {
				e.Reason = ack.Error.Message
			}
		}
		return true
	}

	if other := o.byPersisted[ack.Message.ID]; other != nil && other != e {
		// The broadcast got here first and was shown as a separate entry.
		o.removeLocked(other)
	}
	o.settleLocked(e, *ack.Message)
	return true
}

// HandleReceived applies a message-received broadcast. It returns false when
// the message is already shown. A broadcast of one of our own sends that
// beats its ack settles the matching pending entry, matched on receiver and
// client timestamp, never on content.
func (o *Outbox) HandleReceived(msg models.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, seen := o.byPersisted[msg.ID]; seen {
		return false
	}
	if msg.SenderID == o.self {
		for _, e := range o.entries {
			if e.Status == StatusSending &&
				e.Message.ReceiverID == msg.ReceiverID &&
				e.Message.ClientTimestamp.Equal(msg.ClientTimestamp) {
				o.settleLocked(e, msg)
				return true
			}
		}
	}

	e := &Entry{LocalID: msg.ID, Status: StatusSent, Message: msg}
	o.entries = append(o.entries, e)
	o.byLocal[e.LocalID] = e
	o.byPersisted[msg.ID] = e
	return true
}

func (o *Outbox) settleLocked(e *Entry, msg models.Message) {
	e.Status = StatusSent
	e.Reason = ""
	e.Message = msg
	o.byPersisted[msg.ID] = e
}

func (o *Outbox) removeLocked(e *Entry) {
	for i, x := range o.entries {
		if x == e {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			break
		}
	}
	delete(o.byLocal, e.LocalID)
	if e.CorrelationID != "" {
		delete(o.byCorrelation, e.CorrelationID)
	}
}

// Fail marks the sending entry under correlationID failed.
func (o *Outbox) Fail(correlationID, reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.byCorrelation[correlationID]
	if e == nil || e.Status != StatusSending {
		return false
	}
	e.Status = StatusFailed
	e.Reason = reason
	return true
}

// FailPending marks every sending entry failed and returns how many changed.
// Called when the connection drops.
func (o *Outbox) FailPending(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.entries {
		if e.Status == StatusSending {
			e.Status = StatusFailed
			e.Reason = reason
			n++
		}
	}
	return n
}

// Edit replaces the content of a failed entry ahead of a Retry.
func (o *Outbox) Edit(localID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	e := o.byLocal[localID]
	if e == nil {
		return ErrUnknownEntry
	}
	if e.Status != StatusFailed {
		return ErrNotFailed
	}
	e.Message.Content = content
	return nil
}

// Retry re-arms a failed entry under a fresh correlation id and client
// timestamp. A retry that succeeds creates a new message on the server.
func (o *Outbox) Retry(localID string) (Entry, models.SendMessagePayload, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e := o.byLocal[localID]
	if e == nil {
		return Entry{}, models.SendMessagePayload{}, ErrUnknownEntry
	}
	if e.Status != StatusFailed {
		return Entry{}, models.SendMessagePayload{}, ErrNotFailed
	}

	delete(o.byCorrelation, e.CorrelationID)
	e.CorrelationID = uuid.NewString()
	e.Status = StatusSending
	e.Reason = ""
	e.Message.ClientTimestamp = o.now().UTC()
	o.byCorrelation[e.CorrelationID] = e
	return *e, payloadOf(e), nil
}

// Get returns the entry sent under correlationID.
func (o *Outbox) Get(correlationID string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.byCorrelation[correlationID]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Messages returns the conversation view in display order.
func (o *Outbox) Messages() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Entry, len(o.entries))
	for i, e := range o.entries {
		out[i] = *e
	}
	return out
}
