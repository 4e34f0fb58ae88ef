package chathub

import (
	"context"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/objectstore"
	"strings"
	"unicode/utf8"
)

// SendMessage persists a direct message from c's user and acknowledges it to
// c under correlationID, then fans it out to the receiver's connections and
// to the sender's other connections.
//
// Sends from one sender within one conversation are processed one at a time
// so the receiver observes them in persistence order. The returned error is
// also what the ack reports; nothing is stored or broadcast on failure.
func (m *ManagerService) SendMessage(ctx context.Context, c Client, correlationID string, p models.SendMessagePayload) (*models.Message, error) {
	senderID := c.GetUserID()
	msg, err := m.prepareMessage(senderID, p)
	if err != nil {
		m.ack(c, correlationID, nil, err)
		return nil, err
	}

	unlock := m.sendLocks.Lock(senderID + "|" + DMRoomKey(senderID, msg.ReceiverID))
	defer unlock()

	if p.Attachment != nil {
		url, err := m.uploadAttachment(ctx, p.Attachment)
		if err != nil {
			m.log.Warn("message.attachment.fail", "sender_id", senderID, "err", err)
			m.ack(c, correlationID, nil, err)
			return nil, err
		}
		msg.AttachmentURL = url
	}

	msg.CreatedAt = m.now().UTC()
	sctx, cancel := m.storageCtx(ctx)
	err = m.storage.CreateMessage(sctx, msg)
	cancel()
	if err != nil {
		err = transient("create message", err)
		m.log.Warn("message.persist.fail", "sender_id", senderID, "receiver_id", msg.ReceiverID, "err", err)
		m.ack(c, correlationID, nil, err)
		return nil, err
	}
	m.metrics.MessagesPersisted.Inc()

	m.ack(c, correlationID, msg, nil)

	ev, err := models.NewEvent(models.EventMessageReceived, models.MessagePayload{Message: *msg})
	if err != nil {
		m.log.Error("message.encode.fail", "message_id", msg.ID, "err", err)
		return msg, nil
	}
	receiverOnline := m.Presence.IsOnline(msg.ReceiverID)
	m.publishUsers(ctx, []string{msg.ReceiverID, senderID}, ev, c.GetConnID())
	if !receiverOnline {
		m.notifyOffline(*msg)
	}

	m.log.Info("message.sent", "message_id", msg.ID, "sender_id", senderID, "receiver_id", msg.ReceiverID, "receiver_online", receiverOnline)
	return msg, nil
}

// prepareMessage validates a send request before anything touches storage.
func (m *ManagerService) prepareMessage(senderID string, p models.SendMessagePayload) (*models.Message, error) {
	if senderID == "" {
		return nil, unauthorizedf("anonymous connections cannot send messages")
	}
	receiverID := strings.TrimSpace(p.ReceiverID)
	if receiverID == "" {
		return nil, validationf("receiver_id is required")
	}
	if receiverID == senderID {
		return nil, validationf("cannot message yourself")
	}
	if strings.Contains(receiverID, roomKeySep) {
		return nil, validationf("malformed receiver_id")
	}

	content := strings.TrimSpace(p.Content)
	hasAttachment := p.Attachment != nil
	if content == "" && !hasAttachment {
		return nil, validationf("content is empty")
	}
	if utf8.RuneCountInString(content) > config.MaxMessageChars {
		return nil, validationf("content exceeds %d characters", config.MaxMessageChars)
	}
	if hasAttachment {
		if len(p.Attachment.Data) == 0 {
			return nil, validationf("attachment is empty")
		}
		if len(p.Attachment.Data) > m.maxAttachmentBytes {
			return nil, validationf("attachment exceeds %d bytes", m.maxAttachmentBytes)
		}
		if m.objects == nil {
			return nil, validationf("attachments are disabled")
		}
	}

	return &models.Message{
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		ClientTimestamp: p.ClientTimestamp.UTC(),
	}, nil
}

// uploadAttachment stores the bytes first; a failed upload fails the send.
func (m *ManagerService) uploadAttachment(ctx context.Context, a *models.Attachment) (string, error) {
	uctx, cancel := m.storageCtx(ctx)
	defer cancel()
	url, err := m.objects.Upload(uctx, objectstore.Object{
		Name:        a.Name,
		ContentType: a.ContentType,
		Data:        a.Data,
	})
	if err != nil {
		return "", transient("upload attachment", err)
	}
	return url, nil
}

// ack answers the originating connection of a send-message.
func (m *ManagerService) ack(c Client, correlationID string, msg *models.Message, err error) {
	payload := models.MessageAckPayload{CorrelationID: correlationID, Message: msg}
	if err != nil {
		payload.Message = nil
		payload.Error = errorPayload(err)
	}
	m.reply(c, models.EventMessageAck, correlationID, payload)
}
