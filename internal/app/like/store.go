// Package like provides the optimistic like cache shared by every like
// button showing the same post.
package like

import (
	"context"

	domain "github.com/sacraltrack/playcore/internal/domain/like"
)

// Store is the remote document store holding like records.
type Store interface {
	// ListLikes returns every like on postID, oldest first.
	ListLikes(ctx context.Context, postID string) ([]domain.Record, error)
	// CreateLike records that userID likes postID.
	CreateLike(ctx context.Context, postID, userID string) (domain.Record, error)
	// DeleteLike removes userID's like on postID.
	DeleteLike(ctx context.Context, postID, userID string) error
}
