package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"

	"github.com/sacraltrack/playcore/internal/app/authretry"
)

// AuthService implements the AuthService RPC.
type AuthService struct {
	rnd func() float64 // Jitter source; nil uses math/rand
}

// NewAuthService creates a new AuthService.
func NewAuthService() *AuthService {
	return &AuthService{}
}

// GetRetryPolicy returns the auth retry profile for a user agent and, for
// the given failed attempt, whether and when to retry.
func (s *AuthService) GetRetryPolicy(
	ctx context.Context,
	req *connect.Request[RetryPolicyRequest],
) (*connect.Response[RetryPolicyResponse], error) {
	userAgent := req.Msg.UserAgent
	if userAgent == "" {
		userAgent = req.Header().Get("User-Agent")
	}

	info := authretry.DetectPlatform(userAgent)
	cfg := authretry.GetConfig(info)

	var delay time.Duration
	if s.rnd != nil {
		delay = authretry.ComputeRetryDelayWith(req.Msg.Attempt, cfg, s.rnd)
	} else {
		delay = authretry.ComputeRetryDelay(req.Msg.Attempt, cfg)
	}

	return connect.NewResponse(&RetryPolicyResponse{
		Platform: info,
		Profile:  authretry.Profile(info),
		Policy: RetryPolicy{
			RedirectTimeoutMs:      cfg.RedirectTimeout.Milliseconds(),
			SessionCheckTimeoutMs:  cfg.SessionCheckTimeout.Milliseconds(),
			RetryDelayMs:           cfg.RetryDelay.Milliseconds(),
			MaxRetries:             cfg.MaxRetries,
			ExponentialBackoffBase: cfg.ExponentialBackoffBase,
			JitterRangeMs:          cfg.JitterRange.Milliseconds(),
		},
		ShouldRetry: authretry.ShouldRetry(req.Msg.Attempt, cfg),
		NextDelayMs: delay.Milliseconds(),
	}), nil
}
