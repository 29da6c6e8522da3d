package authretry

import (
	"math"
	"math/rand"
	"time"
)

// Delay bounds applied by ComputeRetryDelay.
const (
	MaxRetryDelay = 10 * time.Second
	MinRetryDelay = 500 * time.Millisecond
)

// Profile names.
const (
	ProfileIOS           = "ios"
	ProfileSafari        = "safari"
	ProfileMobileFirefox = "mobile_firefox"
	ProfileMobile        = "mobile"
	ProfileDesktop       = "desktop"
)

// Config holds the timeouts and backoff of one platform profile.
type Config struct {
	RedirectTimeout        time.Duration `json:"redirect_timeout"`
	SessionCheckTimeout    time.Duration `json:"session_check_timeout"`
	RetryDelay             time.Duration `json:"retry_delay"`
	MaxRetries             int           `json:"max_retries"`
	ExponentialBackoffBase float64       `json:"exponential_backoff_base"`
	JitterRange            time.Duration `json:"jitter_range"`
}

// Profiles, from most to least patient.
var (
	IOS = Config{
		RedirectTimeout:        30 * time.Second,
		SessionCheckTimeout:    15 * time.Second,
		RetryDelay:             2 * time.Second,
		MaxRetries:             5,
		ExponentialBackoffBase: 1.5,
		JitterRange:            500 * time.Millisecond,
	}
	Safari = Config{
		RedirectTimeout:        25 * time.Second,
		SessionCheckTimeout:    12 * time.Second,
		RetryDelay:             1500 * time.Millisecond,
		MaxRetries:             4,
		ExponentialBackoffBase: 1.5,
		JitterRange:            400 * time.Millisecond,
	}
	MobileFirefox = Config{
		RedirectTimeout:        20 * time.Second,
		SessionCheckTimeout:    10 * time.Second,
		RetryDelay:             1500 * time.Millisecond,
		MaxRetries:             4,
		ExponentialBackoffBase: 2,
		JitterRange:            300 * time.Millisecond,
	}
	Mobile = Config{
		RedirectTimeout:        20 * time.Second,
		SessionCheckTimeout:    10 * time.Second,
		RetryDelay:             time.Second,
		MaxRetries:             3,
		ExponentialBackoffBase: 2,
		JitterRange:            300 * time.Millisecond,
	}
	Desktop = Config{
		RedirectTimeout:        15 * time.Second,
		SessionCheckTimeout:    8 * time.Second,
		RetryDelay:             time.Second,
		MaxRetries:             3,
		ExponentialBackoffBase: 2,
		JitterRange:            250 * time.Millisecond,
	}
)

// Profile returns the profile name for info.
// Priority: iOS, Safari, mobile Firefox, other mobile, desktop.
func Profile(info PlatformInfo) string {
	switch {
	case info.IsIOS:
		return ProfileIOS
	case info.IsSafari:
		return ProfileSafari
	case info.IsMobile && info.IsFirefox:
		return ProfileMobileFirefox
	case info.IsMobile:
		return ProfileMobile
	default:
		return ProfileDesktop
	}
}

// GetConfig returns the profile config for info.
func GetConfig(info PlatformInfo) Config {
	switch Profile(info) {
	case ProfileIOS:
		return IOS
	case ProfileSafari:
		return Safari
	case ProfileMobileFirefox:
		return MobileFirefox
	case ProfileMobile:
		return Mobile
	default:
		return Desktop
	}
}

// ComputeRetryDelay returns the wait before retry attempt (0-based).
func ComputeRetryDelay(attempt int, cfg Config) time.Duration {
	return ComputeRetryDelayWith(attempt, cfg, rand.Float64)
}

// ComputeRetryDelayWith is ComputeRetryDelay with an explicit source of
// uniform values in [0, 1).
//
// delay = min(RetryDelay * Base^attempt, MaxRetryDelay) + U(-JitterRange, +JitterRange),
// floored at MinRetryDelay.
func ComputeRetryDelayWith(attempt int, cfg Config, rnd func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := float64(cfg.RetryDelay) * math.Pow(cfg.ExponentialBackoffBase, float64(attempt))
	if math.IsNaN(base) || base > float64(MaxRetryDelay) {
		base = float64(MaxRetryDelay)
	}

	jitter := (rnd()*2 - 1) * float64(cfg.JitterRange)
	delay := time.Duration(base + jitter)
	if delay < MinRetryDelay {
		return MinRetryDelay
	}
	return delay
}

// ShouldRetry reports whether attempt (0-based) is within the retry budget.
func ShouldRetry(attempt int, cfg Config) bool {
	return attempt >= 0 && attempt < cfg.MaxRetries
}
