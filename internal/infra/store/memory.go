package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sacraltrack/playcore/internal/domain/like"
)

// MemoryLikeStore keeps likes in process memory.
type MemoryLikeStore struct {
	mu    sync.RWMutex
	posts map[string][]like.Record
	now   func() time.Time
}

// NewMemoryLikeStore creates an empty in-memory like store.
func NewMemoryLikeStore() *MemoryLikeStore {
	return &MemoryLikeStore{
		posts: make(map[string][]like.Record),
		now:   time.Now,
	}
}

// ListLikes returns every like on postID, oldest first.
func (s *MemoryLikeStore) ListLikes(_ context.Context, postID string) ([]like.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]like.Record, len(s.posts[postID]))
	copy(records, s.posts[postID])
	return records, nil
}

// CreateLike records that userID likes postID. Liking twice returns the
// existing record.
func (s *MemoryLikeStore) CreateLike(_ context.Context, postID, userID string) (like.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.posts[postID] {
		if r.UserID == userID {
			return r, nil
		}
	}

	r := like.Record{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	s.posts[postID] = append(s.posts[postID], r)
	return r, nil
}

// DeleteLike removes userID's like on postID.
func (s *MemoryLikeStore) DeleteLike(_ context.Context, postID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.posts[postID]
	kept := records[:0]
	for _, r := range records {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.posts, postID)
		return nil
	}
	s.posts[postID] = kept
	return nil
}
