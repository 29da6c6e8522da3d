package appwrite

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/domain/like"
)

// DefaultLikesCollection is the collection holding like documents.
const DefaultLikesCollection = "likes"

// maxLikesPerPost bounds a single list call.
const maxLikesPerPost = 5000

// LikeStore stores likes as documents with post_id and user_id attributes.
type LikeStore struct {
	client     *Client
	collection string
}

// NewLikeStore creates a like store on collection (DefaultLikesCollection if empty).
func NewLikeStore(client *Client, collection string) *LikeStore {
	if collection == "" {
		collection = DefaultLikesCollection
	}
	return &LikeStore{client: client, collection: collection}
}

// ListLikes returns every like on postID, oldest first.
func (s *LikeStore) ListLikes(ctx context.Context, postID string) ([]like.Record, error) {
	docs, err := s.client.ListDocuments(ctx, s.collection,
		Equal("post_id", postID),
		OrderAsc("$createdAt"),
		Limit(maxLikesPerPost),
	)
	if err != nil {
		return nil, err
	}

	records := make([]like.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, toRecord(d))
	}
	return records, nil
}

// CreateLike records that userID likes postID.
func (s *LikeStore) CreateLike(ctx context.Context, postID, userID string) (like.Record, error) {
	doc, err := s.client.CreateDocument(ctx, s.collection, uuid.New().String(), map[string]any{
		"post_id": postID,
		"user_id": userID,
	})
	if err != nil {
		return like.Record{}, err
	}
	return toRecord(doc), nil
}

// DeleteLike removes userID's likes on postID.
func (s *LikeStore) DeleteLike(ctx context.Context, postID, userID string) error {
	docs, err := s.client.ListDocuments(ctx, s.collection,
		Equal("post_id", postID),
		Equal("user_id", userID),
	)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		zlog.Debug().Msgf("appwrite: no like to delete: post=%s user=%s", postID, userID)
		return nil
	}

	for _, d := range docs {
		if err := s.client.DeleteDocument(ctx, s.collection, d.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func toRecord(d Document) like.Record {
	return like.Record{
		ID:        d.ID,
		PostID:    d.String("post_id"),
		UserID:    d.String("user_id"),
		CreatedAt: d.CreatedAt,
	}
}
