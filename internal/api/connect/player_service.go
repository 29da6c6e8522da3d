package connect

import (
	"context"
	"strings"
	"sync"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/notification"
	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/track"
)

// Catalog resolves catalog track IDs into playable metadata.
type Catalog interface {
	GetTrackMeta(ctx context.Context, id string) (track.Meta, error)
}

// PlayerOption configures a PlayerService.
type PlayerOption func(*PlayerService)

// WithCatalog enables mounting tracks by catalog ID.
func WithCatalog(c Catalog) PlayerOption {
	return func(s *PlayerService) {
		s.catalog = c
	}
}

// WithMedia attaches a media controller built from newElement to every
// mounted session.
func WithMedia(newElement playback.ElementFactory, cfg playback.MediaConfig, opts ...playback.MediaOption) PlayerOption {
	return func(s *PlayerService) {
		s.newElement = newElement
		s.mediaConfig = cfg
		s.mediaOpts = opts
	}
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	scopes   *playback.Scopes
	notifier *notification.Manager
	catalog  Catalog

	newElement  playback.ElementFactory
	mediaConfig playback.MediaConfig
	mediaOpts   []playback.MediaOption

	mu    sync.Mutex
	feeds map[string]*scopeFeed
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(scopes *playback.Scopes, notifier *notification.Manager, opts ...PlayerOption) *PlayerService {
	s := &PlayerService{
		scopes:   scopes,
		notifier: notifier,
		feeds:    make(map[string]*scopeFeed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenScope opens (or joins) a playback scope.
func (s *PlayerService) OpenScope(
	ctx context.Context,
	req *connect.Request[OpenScopeRequest],
) (*connect.Response[ScopeState], error) {
	scope := s.scopes.Open(strings.TrimSpace(req.Msg.ScopeID))
	s.feed(scope)
	return connect.NewResponse(s.state(scope)), nil
}

// CloseScope tears a scope down, releasing every mounted session.
func (s *PlayerService) CloseScope(
	ctx context.Context,
	req *connect.Request[ScopeRequest],
) (*connect.Response[Empty], error) {
	if err := s.scopes.Close(req.Msg.ScopeID); err != nil {
		return nil, toConnectError(err)
	}

	s.mu.Lock()
	feed, ok := s.feeds[req.Msg.ScopeID]
	delete(s.feeds, req.Msg.ScopeID)
	s.mu.Unlock()
	if ok {
		feed.close()
	}

	zlog.Info().Msgf("api: scope closed: id=%s", req.Msg.ScopeID)
	return connect.NewResponse(&Empty{}), nil
}

// Mount creates a track session in a scope.
func (s *PlayerService) Mount(
	ctx context.Context,
	req *connect.Request[MountRequest],
) (*connect.Response[MountResponse], error) {
	scope, err := s.scopes.Get(req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}

	meta := req.Msg.Track
	if req.Msg.CatalogID != "" {
		if s.catalog == nil {
			return nil, toConnectError(errNoCatalog)
		}
		if meta, err = s.catalog.GetTrackMeta(ctx, req.Msg.CatalogID); err != nil {
			return nil, toConnectError(err)
		}
	}

	sessionID, session, err := scope.Mount(meta)
	if err != nil {
		return nil, toConnectError(err)
	}

	if s.newElement != nil {
		ctrl := playback.NewMediaController(s.newElement, s.mediaConfig, s.mediaOpts...)
		s.feed(scope).watchMedia(sessionID, ctrl)
		session.Attach(ctrl)
	}

	zlog.Debug().Msgf("api: mounted session=%s track=%s scope=%s", sessionID, meta.ID, scope.ID)
	return connect.NewResponse(&MountResponse{
		SessionID: sessionID,
		Track:     session.Meta(),
	}), nil
}

// Unmount closes a track session.
func (s *PlayerService) Unmount(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Empty], error) {
	scope, err := s.scopes.Get(req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := scope.Unmount(req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	s.feed(scope).unwatchMedia(req.Msg.SessionID)
	return connect.NewResponse(&Empty{}), nil
}

// Play makes a session the one playing in its scope.
func (s *PlayerService) Play(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[PlayResponse], error) {
	scope, session, err := s.session(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	started := session.HandlePlay()
	return connect.NewResponse(&PlayResponse{
		Started: started,
		State:   *s.state(scope),
	}), nil
}

// Pause pauses a session if it is the one playing.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[ScopeState], error) {
	scope, session, err := s.session(req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	session.HandlePause()
	return connect.NewResponse(s.state(scope)), nil
}

// StopAll stops playback in a scope, keeping the selection.
func (s *PlayerService) StopAll(
	ctx context.Context,
	req *connect.Request[ScopeRequest],
) (*connect.Response[ScopeState], error) {
	scope, err := s.scopes.Get(req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}

	scope.Registry.StopAll()
	return connect.NewResponse(s.state(scope)), nil
}

// GetState returns the state of a scope.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[ScopeRequest],
) (*connect.Response[ScopeState], error) {
	scope, err := s.scopes.Get(req.Msg.ScopeID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(s.state(scope)), nil
}

// WatchScope streams the scope's registry and media events, starting with
// its current state, until the client goes away or the scope closes.
func (s *PlayerService) WatchScope(
	ctx context.Context,
	req *connect.Request[ScopeRequest],
	stream *connect.ServerStream[Notification],
) error {
	scope, err := s.scopes.Get(req.Msg.ScopeID)
	if err != nil {
		return toConnectError(err)
	}
	feed := s.feed(scope)

	topic := notification.ScopeTopic(scope.ID)
	adapter := &notificationStreamAdapter{stream: stream}
	defer adapter.close()
	subscriptionID := s.notifier.Subscribe(topic, adapter)
	defer s.notifier.Unsubscribe(subscriptionID)

	snap := scope.Registry.Snapshot()
	initial := &Notification{
		SequenceNo: s.notifier.NextSequenceNo(),
		Topic:      topic,
		Kind:       notification.KindPlayback,
		Event:      "initial_state",
		Playback:   &snap,
	}
	if err := adapter.Send(initial); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-feed.Done():
	}
	return nil
}

// session resolves the scope and session of a request.
func (s *PlayerService) session(req *SessionRequest) (*playback.Scope, *playback.TrackSession, error) {
	scope, err := s.scopes.Get(req.ScopeID)
	if err != nil {
		return nil, nil, err
	}
	session, err := scope.Session(req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return scope, session, nil
}

// feed returns the scope's feed, starting it on first use.
func (s *PlayerService) feed(scope *playback.Scope) *scopeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.feeds[scope.ID]; ok {
		return f
	}
	f := newScopeFeed(scope, s.notifier)
	s.feeds[scope.ID] = f
	return f
}

// Close stops every feed and closes every scope.
func (s *PlayerService) Close() {
	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*scopeFeed)
	s.mu.Unlock()

	for _, f := range feeds {
		f.close()
	}
	s.scopes.CloseAll()
}

func (s *PlayerService) state(scope *playback.Scope) *ScopeState {
	infos := scope.Sessions()
	sessions := make([]SessionState, 0, len(infos))
	for _, info := range infos {
		state := SessionState{SessionInfo: info}
		if session, err := scope.Session(info.ID); err == nil {
			if ctrl := session.Controller(); ctrl != nil {
				snap := ctrl.Snapshot()
				state.Media = &snap
			}
		}
		sessions = append(sessions, state)
	}
	return &ScopeState{
		ScopeID:  scope.ID,
		Playback: scope.Registry.Snapshot(),
		Sessions: sessions,
	}
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Once closed it never touches the stream again, so a broadcast that outlives
// its handler cannot write to a finished response.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[Notification]
	closed bool
}

func (a *notificationStreamAdapter) Send(n *Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(n)
}

// close waits for a Send in progress and rejects later ones.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
