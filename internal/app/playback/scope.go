package playback

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/domain/track"
)

var (
	ErrUnknownScope   = errors.New("unknown playback scope")
	ErrUnknownSession = errors.New("unknown track session")
)

// Scope is one application instance: a registry and the players mounted on it.
type Scope struct {
	ID        string
	CreatedAt time.Time
	Registry  *Registry

	mu       sync.RWMutex
	sessions map[string]*TrackSession
	opts     []SessionOption
	closed   bool
}

// SessionInfo describes a mounted session.
type SessionInfo struct {
	ID        string     `json:"id"`
	Track     track.Meta `json:"track"`
	IsActive  bool       `json:"is_active"`
	IsPlaying bool       `json:"is_playing"`
}

func newScope(id string, opts []SessionOption) *Scope {
	return &Scope{
		ID:        id,
		CreatedAt: time.Now(),
		Registry:  NewRegistry(),
		sessions:  make(map[string]*TrackSession),
		opts:      opts,
	}
}

// Mount creates a session for meta and returns its ID.
func (s *Scope) Mount(meta track.Meta, opts ...SessionOption) (string, *TrackSession, error) {
	if err := meta.Validate(); err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nil, ErrUnknownScope
	}

	all := make([]SessionOption, 0, len(s.opts)+len(opts))
	all = append(all, s.opts...)
	all = append(all, opts...)

	id := uuid.New().String()
	session := NewTrackSession(s.Registry, meta, all...)
	s.sessions[id] = session
	return id, session, nil
}

// Session retrieves a mounted session by ID.
func (s *Scope) Session(id string) (*TrackSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// Unmount closes and removes a session.
func (s *Scope) Unmount(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	session.Close()
	return nil
}

// Sessions returns the mounted sessions ordered by ID.
func (s *Scope) Sessions() []SessionInfo {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sessions := make(map[string]*TrackSession, len(s.sessions))
	for id, session := range s.sessions {
		sessions[id] = session
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	snap := s.Registry.Snapshot()
	result := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		meta := sessions[id].Meta()
		result = append(result, SessionInfo{
			ID:        id,
			Track:     meta,
			IsActive:  snap.IsActive(meta.ID),
			IsPlaying: snap.IsPlayingTrack(meta.ID),
		})
	}
	return result
}

// close tears the scope down: every session is closed and the registry reset.
func (s *Scope) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*TrackSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	s.Registry.Reset()
}

// Scopes manages playback scopes with thread-safe access.
type Scopes struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
	opts   []SessionOption
}

// NewScopes creates a scope manager. opts apply to every mounted session.
func NewScopes(opts ...SessionOption) *Scopes {
	return &Scopes{
		scopes: make(map[string]*Scope),
		opts:   opts,
	}
}

// Open returns the scope with id, creating it if needed.
// An empty id creates a new scope with a generated ID.
func (m *Scopes) Open(id string) *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	if scope, ok := m.scopes[id]; ok {
		return scope
	}

	scope := newScope(id, m.opts)
	m.scopes[id] = scope
	zlog.Debug().Msgf("playback: scope opened: id=%s", id)
	return scope
}

// Get retrieves a scope by ID.
func (m *Scopes) Get(id string) (*Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scope, ok := m.scopes[id]
	if !ok {
		return nil, ErrUnknownScope
	}
	return scope, nil
}

// Close tears down and removes a scope.
func (m *Scopes) Close(id string) error {
	m.mu.Lock()
	scope, ok := m.scopes[id]
	if ok {
		delete(m.scopes, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrUnknownScope
	}
	scope.close()
	zlog.Debug().Msgf("playback: scope closed: id=%s", id)
	return nil
}

// CloseAll tears down every scope.
func (m *Scopes) CloseAll() {
	m.mu.Lock()
	scopes := m.scopes
	m.scopes = make(map[string]*Scope)
	m.mu.Unlock()

	for _, scope := range scopes {
		scope.close()
	}
}

// All returns all scopes.
func (m *Scopes) All() []*Scope {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Scope, 0, len(m.scopes))
	for _, scope := range m.scopes {
		result = append(result, scope)
	}
	return result
}

// Count returns the number of open scopes.
func (m *Scopes) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scopes)
}
