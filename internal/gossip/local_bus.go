package gossip

import (
	"sync"

	"github.com/google/uuid"
)

// LocalBus is an in-process Bus: every subscriber in the same
// *LocalBus lives in the same address space, so "peers" are just other
// subscriber IDs on the same topic. It is the bus used by tests wanting
// deterministic, synchronous delivery, and by any deployment running
// several coordinators in one process.
type LocalBus struct {
	mu     sync.Mutex
	topics map[string]*localTopic
}

type localTopic struct {
	subscribers map[string]*localSubscriber
}

type localSubscriber struct {
	id           string
	onMessage    OnMessage
	onPeerJoined OnPeerJoined
}

// NewLocalBus returns an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{topics: make(map[string]*localTopic)}
}

// Subscribe joins topic under a freshly generated peer ID, announcing this
// subscriber to every existing member of the topic and vice versa.
func (b *LocalBus) Subscribe(topic string, onMessage OnMessage, onPeerJoined OnPeerJoined) error {
	b.mu.Lock()
	t, ok := b.topics[topic]
	if !ok {
		t = &localTopic{subscribers: make(map[string]*localSubscriber)}
		b.topics[topic] = t
	}

	self := &localSubscriber{id: uuid.NewString(), onMessage: onMessage, onPeerJoined: onPeerJoined}

	existing := make([]*localSubscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		existing = append(existing, s)
	}
	t.subscribers[self.id] = self
	b.mu.Unlock()

	room := &localRoom{bus: b, topic: topic}
	for _, s := range existing {
		if s.onPeerJoined != nil {
			s.onPeerJoined(topic, self.id, room)
		}
		if self.onPeerJoined != nil {
			self.onPeerJoined(topic, s.id, room)
		}
	}
	return nil
}

// Publish delivers payload synchronously to every current subscriber of
// topic, in an unspecified order.
func (b *LocalBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	t, ok := b.topics[topic]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	subs := make([]*localSubscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.onMessage != nil {
			s.onMessage(topic, s.id, payload)
		}
	}
	return nil
}

// Unsubscribe removes every local subscriber from topic. LocalBus does not
// distinguish which in-process caller is unsubscribing since it has no
// per-caller handle; callers needing per-subscription teardown should run
// one LocalBus per database, matching how a coordinator already scopes one
// subscription per address.
func (b *LocalBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, topic)
	return nil
}

type localRoom struct {
	bus   *LocalBus
	topic string
}

// SendTo delivers payload directly to the named peer's onMessage, bypassing
// every other subscriber.
func (r *localRoom) SendTo(peer string, payload []byte) error {
	r.bus.mu.Lock()
	t, ok := r.bus.topics[r.topic]
	if !ok {
		r.bus.mu.Unlock()
		return nil
	}
	s, ok := t.subscribers[peer]
	r.bus.mu.Unlock()
	if !ok || s.onMessage == nil {
		return nil
	}
	s.onMessage(r.topic, peer, payload)
	return nil
}
