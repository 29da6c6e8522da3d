// Package like provides the Like domain entities.
package like

import (
	"time"
)

// Record represents a single like relationship between a user and a post.
type Record struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies a cache entry: one entity as seen by one user.
type Key struct {
	EntityID string
	UserID   string
}

// String returns the key in "entity:user" form.
func (k Key) String() string {
	return k.EntityID + ":" + k.UserID
}

// Entry is the like state of an entity as seen by one user.
type Entry struct {
	Count       int       `json:"count"`
	HasLiked    bool      `json:"has_liked"`
	Likes       []Record  `json:"likes"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"` // Last remote failure, for display
}

// NewEntry builds an entry from the authoritative list of likes.
func NewEntry(userID string, likes []Record, now time.Time) Entry {
	records := make([]Record, len(likes))
	copy(records, likes)

	return Entry{
		Count:       len(records),
		HasLiked:    containsUser(records, userID),
		Likes:       records,
		LastUpdated: now,
	}
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	if e.Likes != nil {
		c.Likes = make([]Record, len(e.Likes))
		copy(c.Likes, e.Likes)
	}
	return c
}

// Fresh returns true if the entry is younger than ttl.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if e.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(e.LastUpdated) < ttl
}

// Optimistic returns the entry as it would look after userID toggles its like.
// The placeholder record has no ID; it is replaced by the next reconciliation.
func (e Entry) Optimistic(entityID, userID string, now time.Time) Entry {
	next := e.Clone()
	next.Error = ""
	next.LastUpdated = now

	if e.HasLiked {
		next.HasLiked = false
		next.Count = max(e.Count-1, 0)
		next.Likes = removeUser(next.Likes, userID)
		return next
	}

	next.HasLiked = true
	next.Count = e.Count + 1
	next.Likes = append(next.Likes, Record{
		PostID:    entityID,
		UserID:    userID,
		CreatedAt: now,
	})
	return next
}

// Consistent reports whether HasLiked agrees with the likes list.
func (e Entry) Consistent(userID string) bool {
	return e.HasLiked == containsUser(e.Likes, userID)
}

func containsUser(likes []Record, userID string) bool {
	if userID == "" {
		return false
	}
	for _, l := range likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

func removeUser(likes []Record, userID string) []Record {
	out := likes[:0]
	for _, l := range likes {
		if l.UserID != userID {
			out = append(out, l)
		}
	}
	return out
}
