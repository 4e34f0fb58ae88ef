package storage

import (
	"context"
	"fmt"
	"marketchat/backend/internal/models"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a dev-only fallback when no database is configured.
// It keeps everything in process memory and copies values in and out so
// callers never share state with the store.
type MemoryStore struct {
	mu        sync.Mutex
	messages  map[string]models.Message
	order     []string // message ids in insertion order
	comments  map[string]models.Comment
	reactions map[string]models.ReactionSet
	users     map[string]models.User
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[string]models.Message),
		comments:  make(map[string]models.Comment),
		reactions: make(map[string]models.ReactionSet),
		users:     make(map[string]models.User),
	}
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = msg.BeforeCreate(nil)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("storage: duplicate message id %s", msg.ID)
	}
	s.messages[msg.ID] = *msg
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("get message %s: %w", id, ErrNotFound)
	}
	return &msg, nil
}

func (s *MemoryStore) MarkMessageRead(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return false, fmt.Errorf("mark message %s read: %w", id, ErrNotFound)
	}
	if msg.Read {
		return false, nil
	}
	msg.Read = true
	s.messages[id] = msg
	return true, nil
}

func (s *MemoryStore) ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, id := range s.order {
		m := s.messages[id]
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.BeforeCreate(nil)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	if c.ParentID != nil {
		parent := *c.ParentID
		cp.ParentID = &parent
	}
	s.comments[c.ID] = cp
	return nil
}

func (s *MemoryStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("get comment %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) DeleteComment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return fmt.Errorf("delete comment %s: %w", id, ErrNotFound)
	}
	delete(s.comments, id)
	return nil
}

func (s *MemoryStore) ListComments(ctx context.Context, productID string) ([]models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Comment
	for _, c := range s.comments {
		if c.ProductID == productID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetReactions(ctx context.Context, target models.ReactionTarget) (models.ReactionSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactions[target.Key()].Clone(), nil
}

func (s *MemoryStore) SetReactions(ctx context.Context, target models.ReactionTarget, set models.ReactionSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clean := set.Normalize()
	if len(clean) == 0 {
		delete(s.reactions, target.Key())
		return nil
	}
	s.reactions[target.Key()] = clean
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = u.BeforeCreate(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

var (
	_ Storage = (*MemoryStore)(nil)
	_ Storage = (*Service)(nil)
)
