package gossip

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewLocalBus()
	var got []byte
	require.NoError(t, bus.Subscribe("topic1", func(topic, peer string, payload []byte) {
		got = payload
	}, nil))

	require.NoError(t, bus.Publish("topic1", []byte("hello")))
	require.Equal(t, []byte("hello"), got)
}

func TestLocalBusPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewLocalBus()
	called := false
	require.NoError(t, bus.Subscribe("topic1", func(topic, peer string, payload []byte) {
		called = true
	}, nil))

	require.NoError(t, bus.Publish("topic2", []byte("hello")))
	require.False(t, called)
}

func TestLocalBusAnnouncesExistingAndNewPeers(t *testing.T) {
	bus := NewLocalBus()
	var mu sync.Mutex
	var joinedAt1 []string
	require.NoError(t, bus.Subscribe("topic1", nil, func(topic, peer string, room Room) {
		mu.Lock()
		joinedAt1 = append(joinedAt1, peer)
		mu.Unlock()
	}))

	var joinedAt2 []string
	require.NoError(t, bus.Subscribe("topic1", nil, func(topic, peer string, room Room) {
		mu.Lock()
		joinedAt2 = append(joinedAt2, peer)
		mu.Unlock()
	}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, joinedAt1, 1) // first subscriber told about the second joining
	require.Len(t, joinedAt2, 1) // second subscriber told about the first, pre-existing
}

func TestLocalBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewLocalBus()
	called := false
	require.NoError(t, bus.Subscribe("topic1", func(topic, peer string, payload []byte) {
		called = true
	}, nil))

	require.NoError(t, bus.Unsubscribe("topic1"))
	require.NoError(t, bus.Publish("topic1", []byte("hello")))
	require.False(t, called)
}

func TestLocalRoomSendToTargetsOnePeer(t *testing.T) {
	bus := NewLocalBus()
	var receivedA, receivedB []byte
	var roomFromA Room
	var peerBIDSeenByA string

	require.NoError(t, bus.Subscribe("topic1", func(topic, peer string, payload []byte) {
		receivedA = payload
	}, func(topic, peer string, room Room) {
		// Called when B joins: peer is B's subscriber id.
		roomFromA = room
		peerBIDSeenByA = peer
	}))

	require.NoError(t, bus.Subscribe("topic1", func(topic, peer string, payload []byte) {
		receivedB = payload
	}, nil))

	require.NotNil(t, roomFromA)
	require.NoError(t, roomFromA.SendTo(peerBIDSeenByA, []byte("direct")))
	require.Equal(t, []byte("direct"), receivedB)
	require.Nil(t, receivedA)
}
