package connect

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/notification"
	"github.com/sacraltrack/playcore/internal/app/playback"
)

const feedQueueSize = 256

// scopeFeed forwards registry and media events of one scope to the
// notification manager. Observers only enqueue; broadcasting runs on the
// feed's own goroutine.
type scopeFeed struct {
	topic    string
	notifier *notification.Manager
	queue    chan *Notification
	done     chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	media       map[string]func()
	closeOnce   sync.Once
}

func newScopeFeed(scope *playback.Scope, notifier *notification.Manager) *scopeFeed {
	f := &scopeFeed{
		topic:    notification.ScopeTopic(scope.ID),
		notifier: notifier,
		queue:    make(chan *Notification, feedQueueSize),
		done:     make(chan struct{}),
		media:    make(map[string]func()),
	}
	f.unsubscribe = scope.Registry.Subscribe(func(e playback.Event) {
		snap := e.Snapshot
		f.push(&Notification{
			Topic:    f.topic,
			Kind:     notification.KindPlayback,
			Event:    e.Type.String(),
			Playback: &snap,
		})
	})
	go f.run()
	return f
}

// watchMedia forwards ctrl's snapshots tagged with sessionID.
func (f *scopeFeed) watchMedia(sessionID string, ctrl *playback.MediaController) {
	unsubscribe := ctrl.Subscribe(func(snap playback.MediaSnapshot) {
		f.push(&Notification{
			Topic:     f.topic,
			Kind:      notification.KindMedia,
			Event:     snap.State.String(),
			SessionID: sessionID,
			Media:     &snap,
		})
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[sessionID] = unsubscribe
}

func (f *scopeFeed) unwatchMedia(sessionID string) {
	f.mu.Lock()
	unsubscribe, ok := f.media[sessionID]
	delete(f.media, sessionID)
	f.mu.Unlock()

	if ok {
		unsubscribe()
	}
}

func (f *scopeFeed) push(n *Notification) {
	select {
	case <-f.done:
		return
	default:
	}

	select {
	case f.queue <- n:
	default:
		zlog.Warn().Msgf("api: dropping notification, feed queue full: topic=%s kind=%s", f.topic, n.Kind)
	}
}

func (f *scopeFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case n := <-f.queue:
			f.notifier.Broadcast(n)
		}
	}
}

// Done is closed when the feed stops.
func (f *scopeFeed) Done() <-chan struct{} {
	return f.done
}

func (f *scopeFeed) close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		media := f.media
		f.media = make(map[string]func())
		f.mu.Unlock()

		for _, unsubscribe := range media {
			unsubscribe()
		}
		f.unsubscribe()
		close(f.done)
	})
}
