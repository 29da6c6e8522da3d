// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store types.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreAppwrite = "appwrite"
)

// Catalog types.
const (
	CatalogNone    = "none"
	CatalogSpotify = "spotify"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Likes    LikesConfig    `yaml:"likes"`
	Store    StoreConfig    `yaml:"store"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents media playback configuration.
type PlaybackConfig struct {
	StartDelayMs       int `yaml:"start_delay_ms" default:"100" validate:"gte=0,lte=5000"`
	LoadTimeoutMs      int `yaml:"load_timeout_ms" default:"10000" validate:"gte=100,lte=120000"`
	MaxRetryAttempts   int `yaml:"max_retry_attempts" default:"3" validate:"gte=0,lte=10"`
	RetryDelayMs       int `yaml:"retry_delay_ms" default:"1000" validate:"gte=0,lte=60000"`
	BufferLookaheadSec int `yaml:"buffer_lookahead_sec" default:"5" validate:"gte=1,lte=120"`
	SampleIntervalMs   int `yaml:"sample_interval_ms" default:"250" validate:"gte=10,lte=5000"`

	// Drive mounted sessions with headless media elements.
	SimulateMedia bool `yaml:"simulate_media"`
}

// LikesConfig represents like cache configuration.
type LikesConfig struct {
	TTLSec int `yaml:"ttl_sec" default:"30" validate:"gte=1,lte=3600"`
}

// StoreConfig selects the like store backend.
// Settings are decoded by the backend itself.
type StoreConfig struct {
	Type     string         `yaml:"type" default:"memory" validate:"oneof=memory sqlite appwrite"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig selects the track metadata catalog.
type CatalogConfig struct {
	Type string `yaml:"type" default:"none" validate:"oneof=none spotify"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applies environment
// overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("APPWRITE_API_KEY"); v != "" && c.Store.Type == StoreAppwrite {
		if c.Store.Settings == nil {
			c.Store.Settings = make(map[string]any)
		}
		c.Store.Settings["api_key"] = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Catalog.Type == CatalogSpotify {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify catalog requires client_id, client_secret and refresh_token")
		}
	}

	return nil
}

// StartDelay returns the delay between selecting a track and starting it.
func (p PlaybackConfig) StartDelay() time.Duration {
	return time.Duration(p.StartDelayMs) * time.Millisecond
}

// LoadTimeout returns the readiness wait of a play attempt.
func (p PlaybackConfig) LoadTimeout() time.Duration {
	return time.Duration(p.LoadTimeoutMs) * time.Millisecond
}

// RetryDelay returns the base delay of the linear retry backoff.
func (p PlaybackConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// BufferLookahead returns the buffered-ahead time that counts as full health.
func (p PlaybackConfig) BufferLookahead() time.Duration {
	return time.Duration(p.BufferLookaheadSec) * time.Second
}

// SampleInterval returns the minimum spacing of position samples.
func (p PlaybackConfig) SampleInterval() time.Duration {
	return time.Duration(p.SampleIntervalMs) * time.Millisecond
}

// TTL returns the like cache entry lifetime.
func (l LikesConfig) TTL() time.Duration {
	return time.Duration(l.TTLSec) * time.Second
}
