package chathub

import (
	"context"
	"errors"
	"marketchat/backend/internal/models"
	"strings"

	"github.com/google/uuid"
)

// MarkRead records that readerID has read messageID and tells the original
// sender's connections. It is idempotent: marking an already read message
// succeeds without emitting a second receipt, and a vanished message is a
// no-op success.
func (m *ManagerService) MarkRead(ctx context.Context, readerID, messageID string) error {
	if readerID == "" {
		return unauthorizedf("anonymous connections cannot mark messages read")
	}
	messageID = strings.TrimSpace(messageID)
	if _, err := uuid.Parse(messageID); err != nil {
		return validationf("malformed message_id")
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	msg, err := m.storage.GetMessage(sctx, messageID)
	if err != nil {
		err = transient("get message", err)
		if errors.Is(err, ErrNotFound) {
			m.log.Info("receipt.message.gone", "message_id", messageID, "reader_id", readerID)
			return nil
		}
		return err
	}
	if msg.ReceiverID != readerID {
		return unauthorizedf("only the receiver can mark message %s read", messageID)
	}
	if msg.Read {
		return nil
	}

	changed, err := m.storage.MarkMessageRead(sctx, messageID)
	if err != nil {
		err = transient("mark message read", err)
		if errors.Is(err, ErrNotFound) {
			m.log.Info("receipt.message.gone", "message_id", messageID, "reader_id", readerID)
			return nil
		}
		return err
	}
	if !changed {
		// Another connection of the reader won the race and already notified.
		return nil
	}

	ev, err := models.NewEvent(models.EventReadReceipt, models.ReadReceiptPayload{
		MessageID: messageID,
		ReaderID:  readerID,
	})
	if err != nil {
		return err
	}
	m.publishUsers(ctx, []string{msg.SenderID}, ev)
	return nil
}
