// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/sacraltrack/playcore/internal/api/connect"
	"github.com/sacraltrack/playcore/internal/app/like"
	"github.com/sacraltrack/playcore/internal/app/notification"
	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/infra/appwrite"
	"github.com/sacraltrack/playcore/internal/infra/config"
	"github.com/sacraltrack/playcore/internal/infra/logger"
	"github.com/sacraltrack/playcore/internal/infra/media"
	"github.com/sacraltrack/playcore/internal/infra/spotify"
	"github.com/sacraltrack/playcore/internal/infra/store"
)

var (
	app        = kingpin.New("playcore-server", "Sacral Track playback coordination server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	jsonLog    = app.Flag("json-log", "Write JSON log lines instead of console output").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		JSON:   *jsonLog,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	backend, err := store.New(cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to open like store")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close like store: %v", err)
		}
	}()

	cache := like.NewCache(backend.Likes, like.CacheConfig{TTL: cfg.Likes.TTL()})
	notifier := notification.NewManager()
	defer notifier.Close()

	playerOpts, err := playerOptions(ctx, cfg)
	if err != nil {
		return err
	}
	scopes := playback.NewScopes(playback.WithStartDelay(cfg.Playback.StartDelay()))
	playerService := apiconnect.NewPlayerService(scopes, notifier, playerOpts...)
	likeService := apiconnect.NewLikeService(cache, notifier)
	authService := apiconnect.NewAuthService()

	interceptors := connect.WithInterceptors(apiconnect.NewUserInterceptor(authenticator(backend.Appwrite)))

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewPlayerServiceHandler(playerService, interceptors))
	mux.Handle(apiconnect.NewLikeServiceHandler(likeService, interceptors))
	mux.Handle(apiconnect.NewAuthServiceHandler(authService, interceptors))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s store=%s catalog=%s", cfg.Server.Addr, cfg.Store.Type, cfg.Catalog.Type)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close scopes first to end watch streams
	playerService.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// playerOptions builds the catalog and media options of the player service.
func playerOptions(ctx context.Context, cfg *config.Config) ([]apiconnect.PlayerOption, error) {
	var opts []apiconnect.PlayerOption

	if cfg.Catalog.Type == config.CatalogSpotify {
		catalog, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		opts = append(opts, apiconnect.WithCatalog(catalog))
	}

	if cfg.Playback.SimulateMedia {
		zlog.Info().Msg("Mounted sessions are driven by simulated media elements")
		opts = append(opts, apiconnect.WithMedia(media.Factory(), mediaConfig(cfg.Playback)))
	}

	return opts, nil
}

func mediaConfig(p config.PlaybackConfig) playback.MediaConfig {
	return playback.MediaConfig{
		LoadTimeout:      p.LoadTimeout(),
		MaxRetryAttempts: p.MaxRetryAttempts,
		RetryDelay:       p.RetryDelay(),
		BufferLookahead:  p.BufferLookahead(),
		SampleInterval:   p.SampleInterval(),
	}
}

// authenticator resolves bearer tokens as Appwrite session JWTs. Without an
// Appwrite backend bearer tokens are rejected.
func authenticator(client *appwrite.Client) apiconnect.Authenticator {
	if client == nil {
		return nil
	}
	return apiconnect.AuthenticatorFunc(func(ctx context.Context, token string) (string, error) {
		user, err := client.GetCurrentUser(ctx, token)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	})
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
