package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sacraltrack/playcore/internal/domain/like"
)

// LikeStore implements like.Store on a migrated database.
type LikeStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLikeStore creates a like store on db.
func NewLikeStore(db *sql.DB) *LikeStore {
	return &LikeStore{db: db, now: time.Now}
}

// ListLikes returns every like on postID, oldest first.
func (s *LikeStore) ListLikes(ctx context.Context, postID string) ([]like.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, user_id, created_at FROM likes WHERE post_id = ? ORDER BY created_at, rowid`,
		postID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list likes of %s", postID)
	}
	defer rows.Close()

	records := make([]like.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate likes")
	}
	return records, nil
}

// CreateLike records that userID likes postID. Liking twice returns the
// existing record.
func (s *LikeStore) CreateLike(ctx context.Context, postID, userID string) (like.Record, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO likes (id, post_id, user_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (post_id, user_id) DO NOTHING`,
		uuid.New().String(), postID, userID, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return like.Record{}, errors.Wrapf(err, "failed to create like on %s", postID)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, user_id, created_at FROM likes WHERE post_id = ? AND user_id = ?`,
		postID, userID)
	return scanRecord(row)
}

// DeleteLike removes userID's like on postID. A missing like is not an error.
func (s *LikeStore) DeleteLike(ctx context.Context, postID, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM likes WHERE post_id = ? AND user_id = ?`, postID, userID); err != nil {
		return errors.Wrapf(err, "failed to delete like on %s", postID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (like.Record, error) {
	var (
		r         like.Record
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.PostID, &r.UserID, &createdAt); err != nil {
		return like.Record{}, errors.Wrap(err, "failed to scan like")
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return like.Record{}, errors.Wrapf(err, "invalid created_at %q", createdAt)
	}
	r.CreatedAt = t
	return r, nil
}
