package chatclient

import (
	"marketchat/backend/internal/models"
	"sync"
)

// Thread is the local view of one product's comments: an ordered top-level
// list and, per top-level id, its replies. Replies stay indexed under their
// parent id even after the parent is deleted.
type Thread struct {
	ProductID string

	mu       sync.Mutex
	topLevel []models.Comment
	replies  map[string][]models.Comment
	known    map[string]struct{}
}

// NewThread returns an empty view of productID's comments.
func NewThread(productID string) *Thread {
	return &Thread{
		ProductID: productID,
		replies:   make(map[string][]models.Comment),
		known:     make(map[string]struct{}),
	}
}

// Load seeds the view from a history fetch, skipping comments already shown.
func (t *Thread) Load(comments []models.Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range comments {
		t.addLocked(c)
	}
}

// ApplyCreated adds a comment-created comment. It returns false for another
// product's comment or one already shown.
func (t *Thread) ApplyCreated(c models.Comment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(c)
}

func (t *Thread) addLocked(c models.Comment) bool {
	if c.ProductID != t.ProductID {
		return false
	}
	if _, ok := t.known[c.ID]; ok {
		return false
	}
	t.known[c.ID] = struct{}{}
	if c.IsReply() {
		t.replies[*c.ParentID] = append(t.replies[*c.ParentID], c)
	} else {
		t.topLevel = append(t.topLevel, c)
	}
	return true
}

// ApplyDeleted removes the comment named by a comment-deleted event. A
// top-level deletion drops only that id from the top-level list; its replies
// are untouched. It returns false when the comment was not shown.
func (t *Thread) ApplyDeleted(p models.CommentDeletedPayload) bool {
	if p.ProductID != "" && p.ProductID != t.ProductID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[p.ID]; !ok {
		return false
	}
	delete(t.known, p.ID)

	if p.ParentID != nil && *p.ParentID != "" {
		t.replies[*p.ParentID] = without(t.replies[*p.ParentID], p.ID)
		if len(t.replies[*p.ParentID]) == 0 {
			delete(t.replies, *p.ParentID)
		}
		return true
	}
	t.topLevel = without(t.topLevel, p.ID)
	return true
}

func without(list []models.Comment, id string) []models.Comment {
	out := list[:0]
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// TopLevel returns the top-level comments in arrival order.
func (t *Thread) TopLevel() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.topLevel...)
}

// Replies returns the replies filed under parentID.
func (t *Thread) Replies(parentID string) []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.replies[parentID]...)
}
