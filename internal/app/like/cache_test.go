package like

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacraltrack/playcore/internal/app/apperr"
	domain "github.com/sacraltrack/playcore/internal/domain/like"
)

type fakeStore struct {
	mu        sync.Mutex
	likes     map[string][]domain.Record
	listErr   error
	createErr error
	deleteErr error
	// onCreate runs inside CreateLike before the record is added.
	onCreate    func(postID string)
	listCalls   int
	createCalls int
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{likes: make(map[string][]domain.Record)}
}

func (s *fakeStore) seed(postID string, userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range userIDs {
		s.nextID++
		s.likes[postID] = append(s.likes[postID], domain.Record{
			ID:     fmt.Sprintf("like-%d", s.nextID),
			PostID: postID,
			UserID: u,
		})
	}
}

func (s *fakeStore) ListLikes(ctx context.Context, postID string) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.Record(nil), s.likes[postID]...), nil
}

func (s *fakeStore) CreateLike(ctx context.Context, postID, userID string) (domain.Record, error) {
	s.mu.Lock()
	s.createCalls++
	hook := s.onCreate
	s.mu.Unlock()
	if hook != nil {
		hook(postID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	if s.createErr != nil {
		return domain.Record{}, s.createErr
	}
	s.nextID++
	r := domain.Record{ID: fmt.Sprintf("like-%d", s.nextID), PostID: postID, UserID: userID}
	s.likes[postID] = append(s.likes[postID], r)
	return r, nil
}

func (s *fakeStore) DeleteLike(ctx context.Context, postID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	kept := s.likes[postID][:0]
	for _, r := range s.likes[postID] {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	s.likes[postID] = kept
	return nil
}

func (s *fakeStore) lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeStore) creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// recorder collects every state delivered to one subscriber.
type recorder struct {
	mu     sync.Mutex
	states []domain.Entry
}

func (r *recorder) record(e domain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, e)
}

func (r *recorder) counts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.states))
	for i, s := range r.states {
		out[i] = s.Count
	}
	return out
}

func (r *recorder) liked() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.states))
	for i, s := range r.states {
		out[i] = s.HasLiked
	}
	return out
}

func (r *recorder) last() domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func newTestCache(store Store) (*Cache, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewCache(store, CacheConfig{}, WithClock(mock)), mock
}

func TestCache_Defaults(t *testing.T) {
	c := NewCache(newFakeStore(), CacheConfig{})
	assert.Equal(t, 30*time.Second, c.config.TTL)
}

func TestCache_ToggleLikeRevertsOnFailure(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2", "u3", "u4", "u5", "u6")
	c, _ := newTestCache(store)
	ctx := context.Background()

	var a, b recorder
	_, err := c.Subscribe(ctx, "p1", "u1", a.record)
	require.NoError(t, err)
	_, err = c.Subscribe(ctx, "p1", "u1", b.record)
	require.NoError(t, err)

	cause := errors.New("network unreachable")
	store.createErr = cause

	entry, err := c.ToggleLike(ctx, "p1", "u1")
	require.Error(t, err)

	var remote *apperr.RemoteOperationError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, OpCreateLike, remote.Op)
	assert.True(t, errors.Is(err, cause))

	assert.Equal(t, 5, entry.Count)
	assert.False(t, entry.HasLiked)
	assert.Equal(t, "network unreachable", entry.Error)

	assert.Equal(t, []int{5, 6, 5}, a.counts())
	assert.Equal(t, []bool{false, true, false}, a.liked())
	assert.Equal(t, []int{5, 6, 5}, b.counts())
	assert.Equal(t, []bool{false, true, false}, b.liked())
	assert.Equal(t, "network unreachable", b.last().Error)
}

func TestCache_ToggleLikeReconciles(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2", "u3", "u4", "u5", "u6")
	c, mock := newTestCache(store)
	ctx := context.Background()

	var a recorder
	_, err := c.Subscribe(ctx, "p1", "u1", a.record)
	require.NoError(t, err)

	// Another user likes the post while our create is in flight.
	store.onCreate = func(postID string) {
		store.seed(postID, "u7")
	}

	entry, err := c.ToggleLike(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, entry.Count)
	assert.True(t, entry.HasLiked)
	assert.True(t, entry.Consistent("u1"))

	assert.Equal(t, []int{5, 6, 7}, a.counts())
	assert.Equal(t, []bool{false, true, true}, a.liked())

	// Within the TTL a new subscriber gets the reconciled state without a fetch.
	lists := store.lists()
	mock.Add(10 * time.Second)

	var late recorder
	_, err = c.Subscribe(ctx, "p1", "u1", late.record)
	require.NoError(t, err)
	assert.Equal(t, lists, store.lists())
	assert.Equal(t, []int{7}, late.counts())
	assert.Equal(t, []bool{true}, late.liked())
}

func TestCache_Unlike(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u1", "u2")
	c, _ := newTestCache(store)

	var a recorder
	_, err := c.Subscribe(context.Background(), "p1", "u1", a.record)
	require.NoError(t, err)
	require.True(t, a.last().HasLiked)

	entry, err := c.ToggleLike(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.False(t, entry.HasLiked)
	assert.Equal(t, []int{2, 1, 1}, a.counts())
}

func TestCache_ToggleWithoutCachedEntryFetchesFirst(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2")
	c, _ := newTestCache(store)

	entry, err := c.ToggleLike(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
	assert.True(t, entry.HasLiked)
	assert.Equal(t, 2, store.lists(), "baseline and reconcile")
}

func TestCache_StaleEntryIsRefetched(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2")
	c, mock := newTestCache(store)
	ctx := context.Background()

	_, err := c.Subscribe(ctx, "p1", "u1", func(domain.Entry) {})
	require.NoError(t, err)
	require.Equal(t, 1, store.lists())

	mock.Add(30 * time.Second)
	store.seed("p1", "u3")

	var late recorder
	_, err = c.Subscribe(ctx, "p1", "u1", late.record)
	require.NoError(t, err)
	assert.Equal(t, 2, store.lists())
	assert.Equal(t, []int{2}, late.counts())
}

func TestCache_Invalidate(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestCache(store)
	ctx := context.Background()

	_, err := c.Load(ctx, "p1", "u1")
	require.NoError(t, err)
	_, err = c.Load(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.lists())

	c.Invalidate("p1")
	_, err = c.Load(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.lists())
}

func TestCache_NotAuthenticated(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestCache(store)

	_, err := c.ToggleLike(context.Background(), "p1", "")
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
	assert.False(t, apperr.Retryable(err))
	assert.Zero(t, store.lists())
	assert.Zero(t, store.creates())
}

func TestCache_UpdateInProgress(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestCache(store)

	release := make(chan struct{})
	store.onCreate = func(string) { <-release }

	done := make(chan error, 1)
	go func() {
		_, err := c.ToggleLike(context.Background(), "p1", "u1")
		done <- err
	}()
	require.Eventually(t, func() bool { return store.creates() == 1 }, 2*time.Second, time.Millisecond)

	_, err := c.ToggleLike(context.Background(), "p1", "u1")
	assert.ErrorIs(t, err, apperr.ErrUpdateInProgress)

	// Unrelated keys are not blocked.
	store.onCreate = nil
	_, err = c.ToggleLike(context.Background(), "p2", "u1")
	assert.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, store.creates())
}

func TestCache_ToggleLikeOutlivesCallerCancel(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2")
	c, _ := newTestCache(store)

	var rec recorder
	_, err := c.Subscribe(context.Background(), "p1", "u1", rec.record)
	require.NoError(t, err)

	release := make(chan struct{})
	store.onCreate = func(string) { <-release }

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		entry domain.Entry
		err   error
	}
	done := make(chan result, 1)
	go func() {
		entry, err := c.ToggleLike(ctx, "p1", "u1")
		done <- result{entry, err}
	}()
	require.Eventually(t, func() bool { return store.creates() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.entry.HasLiked)
	assert.Equal(t, 2, res.entry.Count)
	assert.Empty(t, res.entry.Error)

	assert.Equal(t, []bool{false, true, true}, rec.liked())
	assert.Equal(t, []int{1, 2, 2}, rec.counts())

	entry, ok := c.Get("p1", "u1")
	require.True(t, ok)
	assert.True(t, entry.HasLiked)
}

func TestCache_SubscribeDuringToggleSeesOptimisticState(t *testing.T) {
	store := newFakeStore()
	store.seed("p1", "u2")
	c, _ := newTestCache(store)
	ctx := context.Background()

	_, err := c.Subscribe(ctx, "p1", "u1", func(domain.Entry) {})
	require.NoError(t, err)

	release := make(chan struct{})
	store.onCreate = func(string) { <-release }

	done := make(chan error, 1)
	go func() {
		_, err := c.ToggleLike(ctx, "p1", "u1")
		done <- err
	}()
	require.Eventually(t, func() bool { return store.creates() == 1 }, 2*time.Second, time.Millisecond)

	var late recorder
	_, err = c.Subscribe(ctx, "p1", "u1", late.record)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, late.counts())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []int{2, 2}, late.counts())
	assert.True(t, late.last().HasLiked)
}

func TestCache_Unsubscribe(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestCache(store)
	ctx := context.Background()

	var a recorder
	unsubscribe, err := c.Subscribe(ctx, "p1", "u1", a.record)
	require.NoError(t, err)
	other, err := c.Subscribe(ctx, "p1", "u1", func(domain.Entry) {})
	require.NoError(t, err)
	assert.Equal(t, 2, c.SubscriberCount("p1", "u1"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, c.SubscriberCount("p1", "u1"))

	_, err = c.ToggleLike(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Len(t, a.counts(), 1, "no deliveries after unsubscribe")

	other()
	assert.Zero(t, c.SubscriberCount("p1", "u1"))
	c.mu.Lock()
	_, ok := c.subs[domain.Key{EntityID: "p1", UserID: "u1"}]
	c.mu.Unlock()
	assert.False(t, ok, "empty subscriber set is removed")

	_, cached := c.Get("p1", "u1")
	assert.True(t, cached, "entries outlive their subscribers")
}

func TestCache_SubscribeFetchError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("503 service unavailable")
	c, _ := newTestCache(store)

	unsubscribe, err := c.Subscribe(context.Background(), "p1", "u1", func(domain.Entry) {})
	require.Error(t, err)
	require.NotNil(t, unsubscribe)

	var remote *apperr.RemoteOperationError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, OpListLikes, remote.Op)
	assert.True(t, apperr.Retryable(err))

	unsubscribe()
	assert.Zero(t, c.SubscriberCount("p1", "u1"))
}
