package storage

import (
	"context"
	"marketchat/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service implements Storage on PostgreSQL through GORM.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Migrate creates or updates the tables owned by the realtime core.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.Comment{},
		&models.ReactionRow{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateMessage зберігає повідомлення; ID заповнюється хуком BeforeCreate.
func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return errors.Wrapf(err, "create message %s->%s", msg.SenderID, msg.ReceiverID)
	}
	return nil
}

func (s *Service) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, errors.Wrapf(notFound(err), "get message %s", id)
	}
	return &msg, nil
}

// MarkMessageRead is a conditional update so concurrent readers flip the flag once.
func (s *Service) MarkMessageRead(ctx context.Context, id string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND read = ?", id, false).
		Update("read", true)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "mark message %s read", id)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Nothing changed: either already read or gone.
	if _, err := s.GetMessage(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list conversation %s/%s", a, b)
	}
	// Newest window fetched, returned oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Service) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return errors.Wrapf(err, "create comment on product %s", c.ProductID)
	}
	return nil
}

func (s *Service) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, errors.Wrapf(notFound(err), "get comment %s", id)
	}
	return &c, nil
}

// DeleteComment removes only the given comment; replies keep their parent_id.
func (s *Service) DeleteComment(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete comment %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "delete comment %s", id)
	}
	return nil
}

func (s *Service) ListComments(ctx context.Context, productID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.DB.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at asc").
		Find(&comments).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list comments for product %s", productID)
	}
	return comments, nil
}

func (s *Service) GetReactions(ctx context.Context, target models.ReactionTarget) (models.ReactionSet, error) {
	var rows []models.ReactionRow
	err := s.DB.WithContext(ctx).
		Where("target_kind = ? AND target_id = ?", target.Kind, target.ID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "get reactions %s", target.Key())
	}
	return models.SetFromRows(rows), nil
}

// SetReactions replaces the whole set of target in one transaction.
func (s *Service) SetReactions(ctx context.Context, target models.ReactionTarget, set models.ReactionSet) error {
	rows := models.RowsFromSet(target, set)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_kind = ? AND target_id = ?", target.Kind, target.ID).
			Delete(&models.ReactionRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
	if err != nil {
		return errors.Wrapf(err, "set reactions %s", target.Key())
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, errors.Wrapf(notFound(err), "get user %s", id)
	}
	return &u, nil
}

// SaveUser зберігає користувача в PostgreSQL
func (s *Service) SaveUser(ctx context.Context, u *models.User) error {
	if err := s.DB.WithContext(ctx).Save(u).Error; err != nil {
		return errors.Wrapf(err, "save user %s", u.ID)
	}
	return nil
}
