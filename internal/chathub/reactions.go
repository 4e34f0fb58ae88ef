package chathub

import (
	"context"
	"errors"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"strings"

	"github.com/google/uuid"
)

// ToggleReaction flips userID's emoji on a message or comment, persists the
// resulting set and broadcasts the full set to the room that owns the
// target. Toggles on one target are serialized; toggles on different
// targets run in parallel.
//
// A vanished target is a no-op success and returns a nil set.
func (m *ManagerService) ToggleReaction(ctx context.Context, userID string, p models.ToggleReactionPayload) (models.ReactionSet, error) {
	if userID == "" {
		return nil, unauthorizedf("anonymous connections cannot react")
	}
	target, emoji, err := validateReaction(p)
	if err != nil {
		return nil, err
	}

	unlock := m.reactionLocks.Lock(target.Key())
	defer unlock()

	room, err := m.reactionRoom(ctx, userID, target)
	if errors.Is(err, ErrNotFound) {
		m.log.Info("reaction.target.gone", "target", target.Key(), "user_id", userID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()
	current, err := m.storage.GetReactions(sctx, target)
	if err != nil {
		return nil, transient("get reactions", err)
	}

	next := current.Clone()
	on := next.Toggle(emoji, userID)
	if err := m.storage.SetReactions(sctx, target, next); err != nil {
		return nil, transient("set reactions", err)
	}

	ev, err := models.NewEvent(models.EventReactionUpdated, models.ReactionUpdatedPayload{
		TargetID:   target.ID,
		TargetKind: target.Kind,
		Reactions:  next,
	})
	if err != nil {
		return nil, err
	}
	m.publishRoom(ctx, room, ev)

	m.log.Debug("reaction.toggle", "target", target.Key(), "emoji", emoji, "user_id", userID, "on", on)
	return next, nil
}

func validateReaction(p models.ToggleReactionPayload) (models.ReactionTarget, string, error) {
	kind := strings.TrimSpace(p.TargetKind)
	if kind == "" {
		kind = models.TargetMessage
	}
	if kind != models.TargetMessage && kind != models.TargetComment {
		return models.ReactionTarget{}, "", validationf("unknown target_kind %q", p.TargetKind)
	}
	id := strings.TrimSpace(p.TargetID)
	if _, err := uuid.Parse(id); err != nil {
		return models.ReactionTarget{}, "", validationf("malformed target_id")
	}
	emoji := strings.TrimSpace(p.Emoji)
	if emoji == "" || len(emoji) > config.MaxEmojiBytes {
		return models.ReactionTarget{}, "", validationf("invalid emoji")
	}
	return models.ReactionTarget{Kind: kind, ID: id}, emoji, nil
}

// reactionRoom resolves the room that owns target and checks that userID
// may react there.
func (m *ManagerService) reactionRoom(ctx context.Context, userID string, target models.ReactionTarget) (string, error) {
	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	switch target.Kind {
	case models.TargetComment:
		comment, err := m.storage.GetComment(sctx, target.ID)
		if err != nil {
			return "", transient("get comment", err)
		}
		return ProductRoomKey(comment.ProductID), nil
	default:
		msg, err := m.storage.GetMessage(sctx, target.ID)
		if err != nil {
			return "", transient("get message", err)
		}
		if !msg.HasParticipant(userID) {
			return "", unauthorizedf("not a participant of message %s", msg.ID)
		}
		return DMRoomKey(msg.SenderID, msg.ReceiverID), nil
	}
}
