package like

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/apperr"
	domain "github.com/sacraltrack/playcore/internal/domain/like"
)

// Remote operation names attached to RemoteOperationError.
const (
	OpListLikes  = "list_likes"
	OpCreateLike = "create_like"
	OpDeleteLike = "delete_like"
)

// CacheConfig holds cache configuration.
type CacheConfig struct {
	TTL time.Duration `default:"30s"` // Age after which a subscribe refetches
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock sets the clock used for entry ages.
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) {
		c.clock = clk
	}
}

// Callback receives every state of a subscribed entry.
// It must not call back into the cache for the same key.
type Callback func(domain.Entry)

// Cache holds like state per (entity, user) and fans every change out to the
// subscribers of that key.
type Cache struct {
	store  Store
	config CacheConfig
	clock  clock.Clock

	mu       sync.Mutex
	entries  map[domain.Key]domain.Entry
	versions map[domain.Key]uint64 // Bumped per stored entry; stale fetches are discarded
	subs     map[domain.Key]map[string]Callback
	inFlight map[domain.Key]bool
	delivery map[domain.Key]*sync.Mutex // Orders state changes and deliveries per key
}

// NewCache creates a cache backed by store.
func NewCache(store Store, config CacheConfig, opts ...CacheOption) *Cache {
	if err := defaults.Set(&config); err != nil {
		zlog.Warn().Msgf("like: failed to apply cache config defaults: %v", err)
	}

	c := &Cache{
		store:    store,
		config:   config,
		clock:    clock.New(),
		entries:  make(map[domain.Key]domain.Entry),
		versions: make(map[domain.Key]uint64),
		subs:     make(map[domain.Key]map[string]Callback),
		inFlight: make(map[domain.Key]bool),
		delivery: make(map[domain.Key]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for the key (entityID, userID). A fresh entry, or
// the optimistic entry of a toggle in flight, is delivered immediately;
// otherwise the entry is fetched and broadcast to every subscriber.
// The returned function removes the subscription. It is valid even when the
// fetch fails.
func (c *Cache) Subscribe(ctx context.Context, entityID, userID string, fn Callback) (func(), error) {
	key := domain.Key{EntityID: entityID, UserID: userID}
	id := uuid.New().String()

	dm := c.keyLock(key)
	dm.Lock()
	c.mu.Lock()
	set, ok := c.subs[key]
	if !ok {
		set = make(map[string]Callback)
		c.subs[key] = set
	}
	set[id] = fn
	entry, cached := c.entries[key]
	usable := cached && (entry.Fresh(c.clock.Now(), c.config.TTL) || c.inFlight[key])
	version := c.versions[key]
	c.mu.Unlock()

	if usable {
		fn(entry.Clone())
		dm.Unlock()
		return c.unsubscriber(key, id), nil
	}
	dm.Unlock()

	if _, err := c.refresh(ctx, key, version, id); err != nil {
		return c.unsubscriber(key, id), err
	}
	return c.unsubscriber(key, id), nil
}

// Load returns the entry for (entityID, userID), fetching it when it is
// missing or stale. A fetched entry is broadcast to the key's subscribers.
func (c *Cache) Load(ctx context.Context, entityID, userID string) (domain.Entry, error) {
	key := domain.Key{EntityID: entityID, UserID: userID}

	c.mu.Lock()
	entry, cached := c.entries[key]
	usable := cached && (entry.Fresh(c.clock.Now(), c.config.TTL) || c.inFlight[key])
	version := c.versions[key]
	c.mu.Unlock()

	if usable {
		return entry.Clone(), nil
	}
	return c.refresh(ctx, key, version, "")
}

// ToggleLike flips userID's like on entityID. The optimistic state is
// broadcast first; the authoritative state follows on success, the previous
// state (with the error attached) on failure. Once the optimistic state is
// out, cancelling ctx no longer stops the remote write or its reconciliation.
func (c *Cache) ToggleLike(ctx context.Context, entityID, userID string) (domain.Entry, error) {
	if userID == "" {
		return domain.Entry{}, apperr.ErrNotAuthenticated
	}
	key := domain.Key{EntityID: entityID, UserID: userID}

	c.mu.Lock()
	if c.inFlight[key] {
		c.mu.Unlock()
		return domain.Entry{}, apperr.ErrUpdateInProgress
	}
	c.inFlight[key] = true
	prev, cached := c.entries[key]
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	if !cached {
		fetched, err := c.fetch(ctx, key)
		if err != nil {
			return domain.Entry{}, err
		}
		prev = fetched
		c.apply(key, prev, false)
	}

	optimistic := prev.Optimistic(entityID, userID, c.clock.Now())
	c.apply(key, optimistic, true)

	remote := context.WithoutCancel(ctx)
	op := OpCreateLike
	var err error
	if prev.HasLiked {
		op = OpDeleteLike
		err = c.store.DeleteLike(remote, entityID, userID)
	} else {
		_, err = c.store.CreateLike(remote, entityID, userID)
	}

	if err != nil {
		reverted := prev.Clone()
		reverted.Error = err.Error()
		c.apply(key, reverted, true)
		zlog.Warn().Msgf("like: %s failed, reverted: entity=%s user=%s err=%v", op, entityID, userID, err)
		return reverted, apperr.NewRemoteOperationError(op, err)
	}

	final, err := c.fetch(remote, key)
	if err != nil {
		// Keep the optimistic state but let the next subscriber refetch.
		optimistic.LastUpdated = time.Time{}
		c.apply(key, optimistic, false)
		zlog.Warn().Msgf("like: reconcile after %s failed: entity=%s err=%v", op, entityID, err)
		return optimistic, nil
	}
	c.apply(key, final, true)
	zlog.Debug().Msgf("like: %s reconciled: entity=%s user=%s count=%d", op, entityID, userID, final.Count)
	return final, nil
}

// Get returns the cached entry without fetching.
func (c *Cache) Get(entityID, userID string) (domain.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[domain.Key{EntityID: entityID, UserID: userID}]
	if !ok {
		return domain.Entry{}, false
	}
	return entry.Clone(), true
}

// Invalidate marks every entry of entityID stale so the next subscribe refetches.
func (c *Cache) Invalidate(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if key.EntityID == entityID {
			entry.LastUpdated = time.Time{}
			c.entries[key] = entry
		}
	}
}

// SubscriberCount returns the number of subscribers of (entityID, userID).
func (c *Cache) SubscriberCount(entityID, userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[domain.Key{EntityID: entityID, UserID: userID}])
}

// refresh fetches the key and stores the result unless a newer state landed
// meanwhile. In that case only the subscriber with id only, if any,
// receives the current state.
func (c *Cache) refresh(ctx context.Context, key domain.Key, version uint64, only string) (domain.Entry, error) {
	fetched, err := c.fetch(ctx, key)
	if err != nil {
		return domain.Entry{}, err
	}

	dm := c.keyLock(key)
	dm.Lock()
	defer dm.Unlock()

	c.mu.Lock()
	if c.versions[key] != version || c.inFlight[key] {
		current, ok := c.entries[key]
		if !ok {
			current = fetched
		}
		fn := c.subs[key][only]
		c.mu.Unlock()
		if fn != nil {
			fn(current.Clone())
		}
		return current.Clone(), nil
	}
	fns := c.storeLocked(key, fetched)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(fetched.Clone())
	}
	return fetched.Clone(), nil
}

// apply stores entry and, if broadcast is set, delivers it to every
// subscriber of key before any later state of the key.
func (c *Cache) apply(key domain.Key, entry domain.Entry, broadcast bool) {
	dm := c.keyLock(key)
	dm.Lock()
	defer dm.Unlock()

	c.mu.Lock()
	fns := c.storeLocked(key, entry)
	c.mu.Unlock()

	if !broadcast {
		return
	}
	for _, fn := range fns {
		fn(entry.Clone())
	}
}

// storeLocked saves entry and returns the key's subscribers.
// Must be called with c.mu held.
func (c *Cache) storeLocked(key domain.Key, entry domain.Entry) []Callback {
	c.entries[key] = entry.Clone()
	c.versions[key]++

	fns := make([]Callback, 0, len(c.subs[key]))
	for _, fn := range c.subs[key] {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Cache) fetch(ctx context.Context, key domain.Key) (domain.Entry, error) {
	records, err := c.store.ListLikes(ctx, key.EntityID)
	if err != nil {
		return domain.Entry{}, apperr.NewRemoteOperationError(OpListLikes, errors.Wrapf(err, "entity %s", key.EntityID))
	}
	return domain.NewEntry(key.UserID, records, c.clock.Now()), nil
}

func (c *Cache) keyLock(key domain.Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	dm, ok := c.delivery[key]
	if !ok {
		dm = &sync.Mutex{}
		c.delivery[key] = dm
	}
	return dm
}

func (c *Cache) unsubscriber(key domain.Key, id string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			set, ok := c.subs[key]
			if !ok {
				return
			}
			delete(set, id)
			if len(set) == 0 {
				delete(c.subs, key)
			}
		})
	}
}
