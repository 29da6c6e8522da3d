// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/like"
)

// sendTimeout bounds a single stream send.
const sendTimeout = 500 * time.Millisecond

// Kind identifies the payload of a notification.
type Kind string

const (
	KindPlayback Kind = "playback" // Registry snapshot
	KindMedia    Kind = "media"    // Media controller snapshot of one session
	KindLike     Kind = "like"     // Like cache entry
)

// Notification is one event delivered to watchers of a topic.
type Notification struct {
	SequenceNo uint64                  `json:"sequence_no"`
	Topic      string                  `json:"topic"`
	Kind       Kind                    `json:"kind"`
	Event      string                  `json:"event,omitempty"`
	SessionID  string                  `json:"session_id,omitempty"`
	Playback   *playback.Snapshot      `json:"playback,omitempty"`
	Media      *playback.MediaSnapshot `json:"media,omitempty"`
	Like       *like.Entry             `json:"like,omitempty"`
}

// ScopeTopic is the topic of a playback scope's events.
func ScopeTopic(scopeID string) string {
	return "scope/" + scopeID
}

// LikeTopic is the topic of one entity's like state as seen by one user.
func LikeTopic(key like.Key) string {
	return "likes/" + key.String()
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	topic  string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a subscription to topic and returns the subscription ID.
// An empty topic receives every notification.
func (m *Manager) Subscribe(topic string, stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		topic:  topic,
		stream: stream,
	}
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps n with the next sequence number and sends it to every
// subscriber of its topic. Sends run in parallel, each bounded by a timeout.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.topic == "" || sub.topic == n.Topic {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: subscription=%s err=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return sub.stream.Send(n)
}

// SubscriberCount returns the number of subscribers of topic, or of all
// topics when topic is empty.
func (m *Manager) SubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topic == "" {
		return len(m.subscriptions)
	}
	n := 0
	for _, sub := range m.subscriptions {
		if sub.topic == topic {
			n++
		}
	}
	return n
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
