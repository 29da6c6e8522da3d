package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacraltrack/playcore/internal/app/playback"
	"github.com/sacraltrack/playcore/internal/domain/like"
)

type fakeStream struct {
	mu    sync.Mutex
	sent  []*Notification
	err   error
	block chan struct{}
}

func (s *fakeStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestManager_BroadcastByTopic(t *testing.T) {
	m := NewManager()
	scopeA := &fakeStream{}
	scopeB := &fakeStream{}
	all := &fakeStream{}

	m.Subscribe(ScopeTopic("a"), scopeA)
	m.Subscribe(ScopeTopic("b"), scopeB)
	m.Subscribe("", all)
	assert.Equal(t, 3, m.SubscriberCount(""))
	assert.Equal(t, 1, m.SubscriberCount(ScopeTopic("a")))

	m.Broadcast(&Notification{Topic: ScopeTopic("a"), Kind: KindPlayback, Playback: &playback.Snapshot{IsPlaying: true}})
	m.Broadcast(&Notification{Topic: LikeTopic(like.Key{EntityID: "p1", UserID: "u1"}), Kind: KindLike, Like: &like.Entry{Count: 1}})

	assert.Equal(t, 1, scopeA.count())
	assert.Equal(t, 0, scopeB.count())
	require.Equal(t, 2, all.count())
	assert.Equal(t, uint64(1), all.sent[0].SequenceNo)
	assert.Equal(t, uint64(2), all.sent[1].SequenceNo)
	assert.Equal(t, "likes/p1:u1", all.sent[1].Topic)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	s := &fakeStream{}
	id := m.Subscribe(ScopeTopic("a"), s)

	m.Unsubscribe(id)
	m.Broadcast(&Notification{Topic: ScopeTopic("a")})

	assert.Zero(t, s.count())
	assert.Zero(t, m.SubscriberCount(""))
}

func TestManager_SlowOrFailingStreamsDoNotBlock(t *testing.T) {
	m := NewManager()
	slow := &fakeStream{block: make(chan struct{})}
	failing := &fakeStream{err: errors.New("stream closed")}
	ok := &fakeStream{}
	defer close(slow.block)

	m.Subscribe("", slow)
	m.Subscribe("", failing)
	m.Subscribe("", ok)

	start := time.Now()
	m.Broadcast(&Notification{Topic: "x"})
	assert.Less(t, time.Since(start), 2*sendTimeout)
	assert.Equal(t, 1, ok.count())
}

func TestManager_SendAndClose(t *testing.T) {
	m := NewManager()
	s := &fakeStream{}
	id := m.Subscribe("", s)

	require.NoError(t, m.Send(id, &Notification{Kind: KindMedia, SessionID: "s1"}))
	assert.NoError(t, m.Send("unknown", &Notification{}))
	assert.Equal(t, 1, s.count())

	m.Close()
	assert.Zero(t, m.SubscriberCount(""))
}
