package chathub

import (
	"context"
	"errors"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PostComment stores a comment (or a reply to a top-level comment) on a
// product and broadcasts it to the product's comment room.
func (m *ManagerService) PostComment(ctx context.Context, userID string, p models.PostCommentPayload) (*models.Comment, error) {
	if userID == "" {
		return nil, unauthorizedf("anonymous viewers cannot comment")
	}
	productID := strings.TrimSpace(p.ProductID)
	if productID == "" || strings.Contains(productID, roomKeySep) {
		return nil, validationf("malformed product_id")
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, validationf("content is empty")
	}
	if utf8.RuneCountInString(content) > config.MaxCommentChars {
		return nil, validationf("content exceeds %d characters", config.MaxCommentChars)
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	comment := &models.Comment{ProductID: productID, AuthorID: userID, Content: content}
	if p.ParentID != nil && strings.TrimSpace(*p.ParentID) != "" {
		parentID := strings.TrimSpace(*p.ParentID)
		if _, err := uuid.Parse(parentID); err != nil {
			return nil, validationf("malformed parent_id")
		}
		parent, err := m.storage.GetComment(sctx, parentID)
		if err != nil {
			err = transient("get parent comment", err)
			if errors.Is(err, ErrNotFound) {
				return nil, validationf("parent comment %s does not exist", parentID)
			}
			return nil, err
		}
		if parent.ProductID != productID {
			return nil, validationf("parent comment belongs to another product")
		}
		if parent.IsReply() {
			return nil, validationf("replies cannot be nested")
		}
		comment.ParentID = &parentID
	}

	comment.CreatedAt = m.now().UTC()
	if err := m.storage.CreateComment(sctx, comment); err != nil {
		return nil, transient("create comment", err)
	}

	ev, err := models.NewEvent(models.EventCommentCreated, models.CommentPayload{Comment: *comment})
	if err != nil {
		return nil, err
	}
	m.publishRoom(ctx, ProductRoomKey(productID), ev)
	return comment, nil
}

// DeleteComment removes one of userID's comments and broadcasts its id and
// parent id so clients can drop it from their nested view. Replies of a
// deleted top-level comment are left in place. A vanished comment is a
// no-op success.
func (m *ManagerService) DeleteComment(ctx context.Context, userID, commentID string) error {
	if userID == "" {
		return unauthorizedf("anonymous viewers cannot delete comments")
	}
	commentID = strings.TrimSpace(commentID)
	if _, err := uuid.Parse(commentID); err != nil {
		return validationf("malformed comment_id")
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	comment, err := m.storage.GetComment(sctx, commentID)
	if err != nil {
		err = transient("get comment", err)
		if errors.Is(err, ErrNotFound) {
			m.log.Info("comment.gone", "comment_id", commentID, "user_id", userID)
			return nil
		}
		return err
	}
	if comment.AuthorID != userID {
		return unauthorizedf("comment %s belongs to another user", commentID)
	}

	if err := m.storage.DeleteComment(sctx, commentID); err != nil {
		err = transient("delete comment", err)
		if errors.Is(err, ErrNotFound) {
			m.log.Info("comment.gone", "comment_id", commentID, "user_id", userID)
			return nil
		}
		return err
	}

	ev, err := models.NewEvent(models.EventCommentDeleted, models.CommentDeletedPayload{
		ID:        comment.ID,
		ParentID:  comment.ParentID,
		ProductID: comment.ProductID,
	})
	if err != nil {
		return err
	}
	m.publishRoom(ctx, ProductRoomKey(comment.ProductID), ev)
	return nil
}
