package models

import (
	"encoding/json"
	"sort"

	"github.com/lib/pq"
)

// Target kinds a reaction can be attached to.
const (
	TargetMessage = "message"
	TargetComment = "comment"
)

// ReactionTarget identifies the message or comment a reaction set belongs to.
type ReactionTarget struct {
	Kind string `json:"target_kind"`
	ID   string `json:"target_id"`
}

// Key is the canonical lock/storage key of the target.
func (t ReactionTarget) Key() string {
	return t.Kind + ":" + t.ID
}

// ReactionSet maps an emoji to the users who applied it.
// Member lists are kept sorted and an emoji with no members is never stored.
type ReactionSet map[string][]string

// Clone returns a deep copy.
func (s ReactionSet) Clone() ReactionSet {
	out := make(ReactionSet, len(s))
	for emoji, users := range s {
		if len(users) == 0 {
			continue
		}
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// Has reports whether userID currently has emoji applied.
func (s ReactionSet) Has(emoji, userID string) bool {
	users := s[emoji]
	i := sort.SearchStrings(users, userID)
	return i < len(users) && users[i] == userID
}

// Toggle flips userID's membership for emoji and reports whether the
// reaction is now on. Removing the last member deletes the emoji key.
func (s ReactionSet) Toggle(emoji, userID string) bool {
	users := s[emoji]
	i := sort.SearchStrings(users, userID)
	if i < len(users) && users[i] == userID {
		users = append(users[:i:i], users[i+1:]...)
		if len(users) == 0 {
			delete(s, emoji)
		} else {
			s[emoji] = users
		}
		return false
	}

	next := make([]string, 0, len(users)+1)
	next = append(next, users[:i]...)
	next = append(next, userID)
	next = append(next, users[i:]...)
	s[emoji] = next
	return true
}

// Normalize sorts and de-duplicates member lists and drops empty keys.
func (s ReactionSet) Normalize() ReactionSet {
	out := make(ReactionSet, len(s))
	for emoji, users := range s {
		if emoji == "" {
			continue
		}
		seen := make(map[string]struct{}, len(users))
		clean := make([]string, 0, len(users))
		for _, u := range users {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			clean = append(clean, u)
		}
		if len(clean) == 0 {
			continue
		}
		sort.Strings(clean)
		out[emoji] = clean
	}
	return out
}

// MarshalJSON never emits an emoji key with an empty member list and always
// emits an object (never null).
func (s ReactionSet) MarshalJSON() ([]byte, error) {
	clean := make(map[string][]string, len(s))
	for emoji, users := range s {
		if len(users) > 0 {
			clean[emoji] = users
		}
	}
	return json.Marshal(clean)
}

// ReactionRow is the persisted form of one emoji of a reaction set.
type ReactionRow struct {
	TargetKind string         `gorm:"primaryKey;type:text"`
	TargetID   string         `gorm:"primaryKey;type:text"`
	Emoji      string         `gorm:"primaryKey;type:text"`
	Users      pq.StringArray `gorm:"type:text[]"`
}

// TableName implements the GORM tabler interface.
func (ReactionRow) TableName() string { return "reactions" }

// RowsFromSet flattens a set into rows for target.
func RowsFromSet(target ReactionTarget, set ReactionSet) []ReactionRow {
	rows := make([]ReactionRow, 0, len(set))
	for emoji, users := range set.Normalize() {
		rows = append(rows, ReactionRow{
			TargetKind: target.Kind,
			TargetID:   target.ID,
			Emoji:      emoji,
			Users:      pq.StringArray(users),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Emoji < rows[j].Emoji })
	return rows
}

// SetFromRows is the inverse of RowsFromSet.
func SetFromRows(rows []ReactionRow) ReactionSet {
	set := make(ReactionSet, len(rows))
	for _, r := range rows {
		set[r.Emoji] = append(set[r.Emoji], r.Users...)
	}
	return set.Normalize()
}
