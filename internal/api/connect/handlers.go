package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// Service names.
const (
	PlayerServiceName = "playcore.v1.PlayerService"
	LikeServiceName   = "playcore.v1.LikeService"
	AuthServiceName   = "playcore.v1.AuthService"
)

// Procedure paths.
const (
	PlayerServiceOpenScopeProcedure  = "/" + PlayerServiceName + "/OpenScope"
	PlayerServiceCloseScopeProcedure = "/" + PlayerServiceName + "/CloseScope"
	PlayerServiceMountProcedure      = "/" + PlayerServiceName + "/Mount"
	PlayerServiceUnmountProcedure    = "/" + PlayerServiceName + "/Unmount"
	PlayerServicePlayProcedure       = "/" + PlayerServiceName + "/Play"
	PlayerServicePauseProcedure      = "/" + PlayerServiceName + "/Pause"
	PlayerServiceStopAllProcedure    = "/" + PlayerServiceName + "/StopAll"
	PlayerServiceGetStateProcedure   = "/" + PlayerServiceName + "/GetState"
	PlayerServiceWatchScopeProcedure = "/" + PlayerServiceName + "/WatchScope"

	LikeServiceToggleLikeProcedure = "/" + LikeServiceName + "/ToggleLike"
	LikeServiceGetLikesProcedure   = "/" + LikeServiceName + "/GetLikes"
	LikeServiceWatchLikesProcedure = "/" + LikeServiceName + "/WatchLikes"

	AuthServiceGetRetryPolicyProcedure = "/" + AuthServiceName + "/GetRetryPolicy"
)

// NewPlayerServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	mux := http.NewServeMux()
	mux.Handle(PlayerServiceOpenScopeProcedure, connect.NewUnaryHandler(PlayerServiceOpenScopeProcedure, svc.OpenScope, opts...))
	mux.Handle(PlayerServiceCloseScopeProcedure, connect.NewUnaryHandler(PlayerServiceCloseScopeProcedure, svc.CloseScope, opts...))
	mux.Handle(PlayerServiceMountProcedure, connect.NewUnaryHandler(PlayerServiceMountProcedure, svc.Mount, opts...))
	mux.Handle(PlayerServiceUnmountProcedure, connect.NewUnaryHandler(PlayerServiceUnmountProcedure, svc.Unmount, opts...))
	mux.Handle(PlayerServicePlayProcedure, connect.NewUnaryHandler(PlayerServicePlayProcedure, svc.Play, opts...))
	mux.Handle(PlayerServicePauseProcedure, connect.NewUnaryHandler(PlayerServicePauseProcedure, svc.Pause, opts...))
	mux.Handle(PlayerServiceStopAllProcedure, connect.NewUnaryHandler(PlayerServiceStopAllProcedure, svc.StopAll, opts...))
	mux.Handle(PlayerServiceGetStateProcedure, connect.NewUnaryHandler(PlayerServiceGetStateProcedure, svc.GetState, opts...))
	mux.Handle(PlayerServiceWatchScopeProcedure, connect.NewServerStreamHandler(PlayerServiceWatchScopeProcedure, svc.WatchScope, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// NewLikeServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewLikeServiceHandler(svc *LikeService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	mux := http.NewServeMux()
	mux.Handle(LikeServiceToggleLikeProcedure, connect.NewUnaryHandler(LikeServiceToggleLikeProcedure, svc.ToggleLike, opts...))
	mux.Handle(LikeServiceGetLikesProcedure, connect.NewUnaryHandler(LikeServiceGetLikesProcedure, svc.GetLikes, opts...))
	mux.Handle(LikeServiceWatchLikesProcedure, connect.NewServerStreamHandler(LikeServiceWatchLikesProcedure, svc.WatchLikes, opts...))
	return "/" + LikeServiceName + "/", mux
}

// NewAuthServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts)
	mux := http.NewServeMux()
	mux.Handle(AuthServiceGetRetryPolicyProcedure, connect.NewUnaryHandler(AuthServiceGetRetryPolicyProcedure, svc.GetRetryPolicy, opts...))
	return "/" + AuthServiceName + "/", mux
}

func withCodec(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}

// PlayerServiceClient is a client for the PlayerService.
type PlayerServiceClient struct {
	openScope  *connect.Client[OpenScopeRequest, ScopeState]
	closeScope *connect.Client[ScopeRequest, Empty]
	mount      *connect.Client[MountRequest, MountResponse]
	unmount    *connect.Client[SessionRequest, Empty]
	play       *connect.Client[SessionRequest, PlayResponse]
	pause      *connect.Client[SessionRequest, ScopeState]
	stopAll    *connect.Client[ScopeRequest, ScopeState]
	getState   *connect.Client[ScopeRequest, ScopeState]
	watchScope *connect.Client[ScopeRequest, Notification]
}

// NewPlayerServiceClient creates a PlayerService client for baseURL.
func NewPlayerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &PlayerServiceClient{
		openScope:  connect.NewClient[OpenScopeRequest, ScopeState](httpClient, baseURL+PlayerServiceOpenScopeProcedure, opts...),
		closeScope: connect.NewClient[ScopeRequest, Empty](httpClient, baseURL+PlayerServiceCloseScopeProcedure, opts...),
		mount:      connect.NewClient[MountRequest, MountResponse](httpClient, baseURL+PlayerServiceMountProcedure, opts...),
		unmount:    connect.NewClient[SessionRequest, Empty](httpClient, baseURL+PlayerServiceUnmountProcedure, opts...),
		play:       connect.NewClient[SessionRequest, PlayResponse](httpClient, baseURL+PlayerServicePlayProcedure, opts...),
		pause:      connect.NewClient[SessionRequest, ScopeState](httpClient, baseURL+PlayerServicePauseProcedure, opts...),
		stopAll:    connect.NewClient[ScopeRequest, ScopeState](httpClient, baseURL+PlayerServiceStopAllProcedure, opts...),
		getState:   connect.NewClient[ScopeRequest, ScopeState](httpClient, baseURL+PlayerServiceGetStateProcedure, opts...),
		watchScope: connect.NewClient[ScopeRequest, Notification](httpClient, baseURL+PlayerServiceWatchScopeProcedure, opts...),
	}
}

func (c *PlayerServiceClient) OpenScope(ctx context.Context, req *connect.Request[OpenScopeRequest]) (*connect.Response[ScopeState], error) {
	return c.openScope.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) CloseScope(ctx context.Context, req *connect.Request[ScopeRequest]) (*connect.Response[Empty], error) {
	return c.closeScope.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Mount(ctx context.Context, req *connect.Request[MountRequest]) (*connect.Response[MountResponse], error) {
	return c.mount.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Unmount(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[Empty], error) {
	return c.unmount.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Play(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[PlayResponse], error) {
	return c.play.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) Pause(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[ScopeState], error) {
	return c.pause.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) StopAll(ctx context.Context, req *connect.Request[ScopeRequest]) (*connect.Response[ScopeState], error) {
	return c.stopAll.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) GetState(ctx context.Context, req *connect.Request[ScopeRequest]) (*connect.Response[ScopeState], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *PlayerServiceClient) WatchScope(ctx context.Context, req *connect.Request[ScopeRequest]) (*connect.ServerStreamForClient[Notification], error) {
	return c.watchScope.CallServerStream(ctx, req)
}

// LikeServiceClient is a client for the LikeService.
type LikeServiceClient struct {
	toggleLike *connect.Client[LikeRequest, LikeResponse]
	getLikes   *connect.Client[LikeRequest, LikeResponse]
	watchLikes *connect.Client[LikeRequest, Notification]
}

// NewLikeServiceClient creates a LikeService client for baseURL.
func NewLikeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LikeServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &LikeServiceClient{
		toggleLike: connect.NewClient[LikeRequest, LikeResponse](httpClient, baseURL+LikeServiceToggleLikeProcedure, opts...),
		getLikes:   connect.NewClient[LikeRequest, LikeResponse](httpClient, baseURL+LikeServiceGetLikesProcedure, opts...),
		watchLikes: connect.NewClient[LikeRequest, Notification](httpClient, baseURL+LikeServiceWatchLikesProcedure, opts...),
	}
}

func (c *LikeServiceClient) ToggleLike(ctx context.Context, req *connect.Request[LikeRequest]) (*connect.Response[LikeResponse], error) {
	return c.toggleLike.CallUnary(ctx, req)
}

func (c *LikeServiceClient) GetLikes(ctx context.Context, req *connect.Request[LikeRequest]) (*connect.Response[LikeResponse], error) {
	return c.getLikes.CallUnary(ctx, req)
}

func (c *LikeServiceClient) WatchLikes(ctx context.Context, req *connect.Request[LikeRequest]) (*connect.ServerStreamForClient[Notification], error) {
	return c.watchLikes.CallServerStream(ctx, req)
}

// AuthServiceClient is a client for the AuthService.
type AuthServiceClient struct {
	getRetryPolicy *connect.Client[RetryPolicyRequest, RetryPolicyResponse]
}

// NewAuthServiceClient creates an AuthService client for baseURL.
func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &AuthServiceClient{
		getRetryPolicy: connect.NewClient[RetryPolicyRequest, RetryPolicyResponse](httpClient, baseURL+AuthServiceGetRetryPolicyProcedure, opts...),
	}
}

func (c *AuthServiceClient) GetRetryPolicy(ctx context.Context, req *connect.Request[RetryPolicyRequest]) (*connect.Response[RetryPolicyResponse], error) {
	return c.getRetryPolicy.CallUnary(ctx, req)
}
