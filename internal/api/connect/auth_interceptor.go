package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	// UserIDHeader carries a user ID asserted by a trusted caller.
	UserIDHeader = "X-User-Id"
	// AuthorizationHeader carries "Bearer <session jwt>".
	AuthorizationHeader = "Authorization"
)

// Authenticator resolves a session token into a user ID.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (string, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

type userKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the caller's user ID, or "" for anonymous calls.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// UserInterceptor attaches the caller's identity to the request context.
// A bearer token wins over the user header; a request with neither stays
// anonymous.
type UserInterceptor struct {
	auth Authenticator
}

// NewUserInterceptor creates a user interceptor. auth may be nil, in which
// case bearer tokens are rejected.
func NewUserInterceptor(auth Authenticator) *UserInterceptor {
	return &UserInterceptor{auth: auth}
}

var _ connect.Interceptor = (*UserInterceptor)(nil)

func (i *UserInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.resolve(ctx, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *UserInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *UserInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.resolve(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *UserInterceptor) resolve(ctx context.Context, header http.Header) (context.Context, error) {
	if token, ok := bearerToken(header.Get(AuthorizationHeader)); ok {
		if i.auth == nil {
			return ctx, connect.NewError(connect.CodeUnauthenticated, errors.New("token authentication is not configured"))
		}
		userID, err := i.auth.Authenticate(ctx, token)
		if err != nil {
			zlog.Debug().Msgf("api: token rejected: %v", err)
			return ctx, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid session token"))
		}
		return WithUser(ctx, userID), nil
	}

	if userID := strings.TrimSpace(header.Get(UserIDHeader)); userID != "" {
		return WithUser(ctx, userID), nil
	}
	return ctx, nil
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
