package storage

import (
	"context"
	"errors"
	"marketchat/backend/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// Storage is the persistence collaborator of the realtime core.
type Storage interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// MarkMessageRead sets read=true and reports whether the row changed.
	MarkMessageRead(ctx context.Context, id string) (bool, error)
	// ListConversation returns up to limit messages between a and b, oldest first.
	ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error)

	CreateComment(ctx context.Context, c *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, productID string) ([]models.Comment, error)

	GetReactions(ctx context.Context, target models.ReactionTarget) (models.ReactionSet, error)
	SetReactions(ctx context.Context, target models.ReactionTarget, set models.ReactionSet) error

	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}
