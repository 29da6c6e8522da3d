// Package main provides the player CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/sacraltrack/playcore/internal/api/connect"
	"github.com/sacraltrack/playcore/internal/app/notification"
	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/track"
	"github.com/sacraltrack/playcore/internal/infra/media"
)

var (
	app    = kingpin.New("playcore-cli", "Sacral Track playback client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	user   = app.Flag("user", "User ID sent as X-User-Id").Envar("PLAYCORE_USER").String()
	token  = app.Flag("token", "Session JWT sent as bearer token").Envar("PLAYCORE_TOKEN").String()

	openCmd   = app.Command("open", "Open a playback scope")
	openScope = openCmd.Arg("scope-id", "Scope ID (generated when empty)").String()

	closeCmd   = app.Command("close", "Close a playback scope")
	closeScope = closeCmd.Arg("scope-id", "Scope ID").Required().String()

	mountCmd     = app.Command("mount", "Mount a track session")
	mountScope   = mountCmd.Arg("scope-id", "Scope ID").Required().String()
	mountTrack   = mountCmd.Arg("track-id", "Track ID").Required().String()
	mountURL     = mountCmd.Flag("url", "Stream URL").String()
	mountName    = mountCmd.Flag("name", "Track name").String()
	mountArtist  = mountCmd.Flag("artist", "Artist name").String()
	mountCatalog = mountCmd.Flag("catalog", "Resolve the track ID from the catalog").Bool()

	unmountCmd     = app.Command("unmount", "Unmount a track session")
	unmountScope   = unmountCmd.Arg("scope-id", "Scope ID").Required().String()
	unmountSession = unmountCmd.Arg("session-id", "Session ID").Required().String()

	playCmd     = app.Command("play", "Play a session")
	playScope   = playCmd.Arg("scope-id", "Scope ID").Required().String()
	playSession = playCmd.Arg("session-id", "Session ID").Required().String()

	pauseCmd     = app.Command("pause", "Pause a session")
	pauseScope   = pauseCmd.Arg("scope-id", "Scope ID").Required().String()
	pauseSession = pauseCmd.Arg("session-id", "Session ID").Required().String()

	stopCmd   = app.Command("stop", "Stop playback in a scope")
	stopScope = stopCmd.Arg("scope-id", "Scope ID").Required().String()

	stateCmd   = app.Command("state", "Show the state of a scope")
	stateScope = stateCmd.Arg("scope-id", "Scope ID").Required().String()

	watchCmd   = app.Command("watch", "Watch a scope")
	watchScope = watchCmd.Arg("scope-id", "Scope ID").Required().String()

	likeCmd    = app.Command("like", "Toggle a like")
	likeEntity = likeCmd.Arg("entity-id", "Post ID").Required().String()

	likesCmd    = app.Command("likes", "Show the likes of a post")
	likesEntity = likesCmd.Arg("entity-id", "Post ID").Required().String()
	likesWatch  = likesCmd.Flag("watch", "Keep streaming updates").Bool()

	retryCmd       = app.Command("retry-policy", "Show the auth retry policy for a user agent")
	retryUserAgent = retryCmd.Arg("user-agent", "User-Agent header").Required().String()
	retryAttempt   = retryCmd.Flag("attempt", "Failed attempt number (0-based)").Default("0").Int()

	simulateCmd      = app.Command("simulate", "Play a stream URL locally with a simulated media element")
	simulateURL      = simulateCmd.Arg("url", "Stream URL").Required().String()
	simulateDuration = simulateCmd.Flag("for", "Stop after this long").Default("30s").Duration()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	player := apiconnect.NewPlayerServiceClient(http.DefaultClient, *server)
	likes := apiconnect.NewLikeServiceClient(http.DefaultClient, *server)
	auth := apiconnect.NewAuthServiceClient(http.DefaultClient, *server)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case openCmd.FullCommand():
		printState(call(player.OpenScope(ctx, request(&apiconnect.OpenScopeRequest{ScopeID: *openScope}))))
	case closeCmd.FullCommand():
		call(player.CloseScope(ctx, request(&apiconnect.ScopeRequest{ScopeID: *closeScope})))
		fmt.Println("Scope closed")
	case mountCmd.FullCommand():
		mount(ctx, player)
	case unmountCmd.FullCommand():
		call(player.Unmount(ctx, request(&apiconnect.SessionRequest{ScopeID: *unmountScope, SessionID: *unmountSession})))
		fmt.Println("Session unmounted")
	case playCmd.FullCommand():
		resp := call(player.Play(ctx, request(&apiconnect.SessionRequest{ScopeID: *playScope, SessionID: *playSession})))
		if !resp.Started {
			fmt.Println("Ignored: the track has no stream URL")
		}
		printState(&resp.State)
	case pauseCmd.FullCommand():
		printState(call(player.Pause(ctx, request(&apiconnect.SessionRequest{ScopeID: *pauseScope, SessionID: *pauseSession}))))
	case stopCmd.FullCommand():
		printState(call(player.StopAll(ctx, request(&apiconnect.ScopeRequest{ScopeID: *stopScope}))))
	case stateCmd.FullCommand():
		printState(call(player.GetState(ctx, request(&apiconnect.ScopeRequest{ScopeID: *stateScope}))))
	case watchCmd.FullCommand():
		stream, err := player.WatchScope(ctx, request(&apiconnect.ScopeRequest{ScopeID: *watchScope}))
		exitOnError(err)
		fmt.Println("Watching scope. Press Ctrl+C to exit.")
		receive(stream)
	case likeCmd.FullCommand():
		printLike(call(likes.ToggleLike(ctx, request(&apiconnect.LikeRequest{EntityID: *likeEntity}))))
	case likesCmd.FullCommand():
		if !*likesWatch {
			printLike(call(likes.GetLikes(ctx, request(&apiconnect.LikeRequest{EntityID: *likesEntity}))))
			return
		}
		stream, err := likes.WatchLikes(ctx, request(&apiconnect.LikeRequest{EntityID: *likesEntity}))
		exitOnError(err)
		fmt.Println("Watching likes. Press Ctrl+C to exit.")
		receive(stream)
	case retryCmd.FullCommand():
		printRetryPolicy(call(auth.GetRetryPolicy(ctx, request(&apiconnect.RetryPolicyRequest{
			UserAgent: *retryUserAgent,
			Attempt:   *retryAttempt,
		}))))
	case simulateCmd.FullCommand():
		simulate(ctx, *simulateURL, *simulateDuration)
	}
}

// request builds a request carrying the caller's identity headers.
func request[T any](msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if *user != "" {
		req.Header().Set(apiconnect.UserIDHeader, *user)
	}
	if *token != "" {
		req.Header().Set(apiconnect.AuthorizationHeader, "Bearer "+*token)
	}
	return req
}

func call[T any](resp *connect.Response[T], err error) *T {
	exitOnError(err)
	return resp.Msg
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func mount(ctx context.Context, client *apiconnect.PlayerServiceClient) {
	req := &apiconnect.MountRequest{ScopeID: *mountScope}
	if *mountCatalog {
		req.CatalogID = *mountTrack
	} else {
		req.Track = track.Meta{
			ID:       track.ID(*mountTrack),
			AudioURL: *mountURL,
			Name:     *mountName,
			Artist:   *mountArtist,
		}
	}

	resp := call(client.Mount(ctx, request(req)))
	fmt.Printf("Mounted! Session ID: %s\n", resp.SessionID)
	printTrack("  ", resp.Track)
}

func receive(stream *connect.ServerStreamForClient[apiconnect.Notification]) {
	for stream.Receive() {
		printNotification(stream.Msg())
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled {
		fmt.Printf("Stream error: %v\n", err)
	}
}

// simulate plays url on a local controller and prints its snapshots.
func simulate(ctx context.Context, url string, limit time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ctrl := playback.NewMediaController(media.Factory(), playback.MediaConfig{})
	defer ctrl.Close()

	// Nothing pauses the controller here, so the first pause after playing is the end.
	done := make(chan struct{})
	var (
		once    sync.Once
		last    playback.State = -1
		started bool
	)
	unsubscribe := ctrl.Subscribe(func(s playback.MediaSnapshot) {
		if s.State != last {
			last = s.State
			fmt.Printf("[%6.2fs] %s\n", s.CurrentTime, s.State)
		}
		switch s.State {
		case playback.StatePlaying:
			started = true
		case playback.StatePaused:
			if started {
				once.Do(func() { close(done) })
			}
		}
	})
	defer unsubscribe()

	ctrl.SetSource(url)
	if err := ctrl.Play(ctx); err != nil {
		exitOnError(err)
	}

	select {
	case <-done:
		fmt.Println("Ended")
	case <-ctx.Done():
	}
	s := ctrl.Snapshot()
	fmt.Printf("Position %.2fs / %.2fs, buffer health %.0f%%\n", s.CurrentTime, s.Duration, s.BufferHealthPercent)
}

func printState(s *apiconnect.ScopeState) {
	fmt.Printf("\n=== SCOPE %s ===\n", s.ScopeID)
	fmt.Printf("Current: %s\n", formatCurrent(s.Playback))
	fmt.Printf("Seq: %d\n", s.Playback.Seq)

	if len(s.Sessions) == 0 {
		fmt.Println("No sessions mounted")
		return
	}
	fmt.Println("\nSessions:")
	for _, session := range s.Sessions {
		marker := " "
		switch {
		case session.IsPlaying:
			marker = ">"
		case session.IsActive:
			marker = "|"
		}
		fmt.Printf("%s %s\n", marker, session.ID)
		printTrack("    ", session.Track)
		if session.Media != nil {
			printMedia("    ", session.Media)
		}
	}
	fmt.Println()
}

func formatCurrent(s playback.Snapshot) string {
	if s.CurrentTrackID == "" {
		return "(none)"
	}
	if s.IsPlaying {
		return fmt.Sprintf("%s (playing)", s.CurrentTrackID)
	}
	return fmt.Sprintf("%s (paused)", s.CurrentTrackID)
}

func printTrack(indent string, m track.Meta) {
	fmt.Printf("%sTrack ID: %s\n", indent, m.ID)
	if m.Name != "" {
		fmt.Printf("%sName: %s\n", indent, m.Name)
	}
	if m.Artist != "" {
		fmt.Printf("%sArtist: %s\n", indent, m.Artist)
	}
	if m.AudioURL != "" {
		fmt.Printf("%sURL: %s\n", indent, m.AudioURL)
	}
}

func printMedia(indent string, m *playback.MediaSnapshot) {
	fmt.Printf("%sMedia: %s %.1fs/%.1fs buffer %.0f%%", indent, m.State, m.CurrentTime, m.Duration, m.BufferHealthPercent)
	if m.LastError != "" {
		fmt.Printf(" error=%q", m.LastError)
	}
	fmt.Println()
}

func printLike(resp *apiconnect.LikeResponse) {
	fmt.Printf("Post %s: %d likes", resp.EntityID, resp.Entry.Count)
	if resp.Entry.HasLiked {
		fmt.Print(" (liked)")
	}
	fmt.Println()
	if resp.Entry.Error != "" {
		fmt.Printf("  Last error: %s\n", resp.Entry.Error)
	}
}

func printRetryPolicy(resp *apiconnect.RetryPolicyResponse) {
	p := resp.Policy
	fmt.Printf("Profile: %s\n", resp.Profile)
	fmt.Printf("  Redirect timeout: %dms\n", p.RedirectTimeoutMs)
	fmt.Printf("  Session check timeout: %dms\n", p.SessionCheckTimeoutMs)
	fmt.Printf("  Retry delay: %dms (x%.1f per attempt, +/-%dms jitter)\n", p.RetryDelayMs, p.ExponentialBackoffBase, p.JitterRangeMs)
	fmt.Printf("  Max retries: %d\n", p.MaxRetries)
	if resp.ShouldRetry {
		fmt.Printf("Retry in %dms\n", resp.NextDelayMs)
	} else {
		fmt.Println("Retry budget exhausted")
	}
}

func printNotification(n *apiconnect.Notification) {
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)

	switch n.Kind {
	case notification.KindPlayback:
		fmt.Printf("=== PLAYBACK %s ===\n", n.Event)
		if n.Playback != nil {
			fmt.Printf("  Current: %s\n", formatCurrent(*n.Playback))
		}
	case notification.KindMedia:
		fmt.Printf("=== MEDIA %s ===\n", n.SessionID)
		if n.Media != nil {
			printMedia("  ", n.Media)
		}
	case notification.KindLike:
		fmt.Println("=== LIKES ===")
		if n.Like != nil {
			fmt.Printf("  Count: %d, liked: %v\n", n.Like.Count, n.Like.HasLiked)
		}
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", n.Kind)
	}
}
