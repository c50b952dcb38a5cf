// Package gossip implements the pub/sub transport collaborator described in
// spec §6: per-topic message broadcast, peer-join notification, and
// direct-to-peer send. Two implementations are provided: LocalBus, an
// in-process bus for single-binary tests and multi-database-in-one-process
// deployments, and HTTPBus, a gorilla/websocket-backed transport for
// multi-process peers.
package gossip

// OnMessage is invoked for every payload published on a subscribed topic,
// including ones this process itself published (local echo is the
// receiver's responsibility to ignore, matching the "best-effort, no
// delivery guarantee" contract in spec §6).
type OnMessage func(topic string, peer string, payload []byte)

// OnPeerJoined is invoked once per peer the first time it is observed in a
// topic's room.
type OnPeerJoined func(topic string, peer string, room Room)

// Room lets a subscriber address one specific peer currently present in a
// topic, used by the coordinator to answer a peer-join with current heads
// (spec §4.6 onPeerConnected).
type Room interface {
	SendTo(peer string, payload []byte) error
}

// Bus is the gossip transport collaborator. Implementations must be safe
// for concurrent use since the object store and gossip bus are shared
// across coordinators within a process (spec §4.9).
type Bus interface {
	// Subscribe joins topic, invoking onMessage for every payload published
	// on it (by any peer, including this one) and onPeerJoined the first
	// time each remote peer is observed in the topic.
	Subscribe(topic string, onMessage OnMessage, onPeerJoined OnPeerJoined) error
	// Publish broadcasts payload to every current subscriber of topic.
	// Delivery is best-effort: a publish may race with or precede a
	// subscriber's own subscribe call.
	Publish(topic string, payload []byte) error
	// Unsubscribe leaves topic; a subsequent Publish or peer join is not
	// delivered to this subscriber. Idempotent.
	Unsubscribe(topic string) error
}
