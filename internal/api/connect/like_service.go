package connect

import (
	"context"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/sacraltrack/playcore/internal/app/apperr"
	"github.com/sacraltrack/playcore/internal/app/like"
	"github.com/sacraltrack/playcore/internal/app/notification"
	domain "github.com/sacraltrack/playcore/internal/domain/like"
)

var errNoEntity = errors.New("entity id is required")

// LikeService implements the LikeService RPC.
type LikeService struct {
	cache    *like.Cache
	notifier *notification.Manager
}

// NewLikeService creates a new LikeService.
func NewLikeService(cache *like.Cache, notifier *notification.Manager) *LikeService {
	return &LikeService{
		cache:    cache,
		notifier: notifier,
	}
}

// ToggleLike flips the caller's like on an entity.
func (s *LikeService) ToggleLike(
	ctx context.Context,
	req *connect.Request[LikeRequest],
) (*connect.Response[LikeResponse], error) {
	entityID, err := entityID(req.Msg)
	if err != nil {
		return nil, err
	}
	userID := UserFromContext(ctx)
	if userID == "" {
		return nil, toConnectError(apperr.ErrNotAuthenticated)
	}

	entry, err := s.cache.ToggleLike(ctx, entityID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LikeResponse{EntityID: entityID, Entry: entry}), nil
}

// GetLikes returns the like state of an entity as seen by the caller.
// Anonymous callers see the count with HasLiked false.
func (s *LikeService) GetLikes(
	ctx context.Context,
	req *connect.Request[LikeRequest],
) (*connect.Response[LikeResponse], error) {
	entityID, err := entityID(req.Msg)
	if err != nil {
		return nil, err
	}

	entry, err := s.cache.Load(ctx, entityID, UserFromContext(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LikeResponse{EntityID: entityID, Entry: entry}), nil
}

// WatchLikes streams the like state of an entity as seen by the caller.
func (s *LikeService) WatchLikes(
	ctx context.Context,
	req *connect.Request[LikeRequest],
	stream *connect.ServerStream[Notification],
) error {
	entityID, err := entityID(req.Msg)
	if err != nil {
		return err
	}
	key := domain.Key{EntityID: entityID, UserID: UserFromContext(ctx)}

	// Cache callbacks must not block; entries queue up in delivery order.
	queue := newEntryQueue()
	adapter := &notificationStreamAdapter{stream: stream}
	defer adapter.close()
	subscriptionID := s.notifier.Subscribe(notification.LikeTopic(key), adapter)
	defer s.notifier.Unsubscribe(subscriptionID)

	unsubscribe, err := s.cache.Subscribe(ctx, key.EntityID, key.UserID, queue.push)
	defer unsubscribe()
	if err != nil {
		return toConnectError(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-queue.ready:
			for _, entry := range queue.drain() {
				n := &Notification{
					SequenceNo: s.notifier.NextSequenceNo(),
					Topic:      notification.LikeTopic(key),
					Kind:       notification.KindLike,
					Like:       &entry,
				}
				if err := s.notifier.Send(subscriptionID, n); err != nil {
					return err
				}
			}
		}
	}
}

// entryQueue buffers cache deliveries for one stream without blocking the
// cache. Every state is kept so an optimistic state is never lost to the
// authoritative one that follows it.
type entryQueue struct {
	mu      sync.Mutex
	entries []domain.Entry
	ready   chan struct{}
}

func newEntryQueue() *entryQueue {
	return &entryQueue{ready: make(chan struct{}, 1)}
}

func (q *entryQueue) push(e domain.Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *entryQueue) drain() []domain.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

func entityID(req *LikeRequest) (string, error) {
	id := strings.TrimSpace(req.EntityID)
	if id == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errNoEntity)
	}
	return id, nil
}
