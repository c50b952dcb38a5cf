package gossip

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frameType tags a websocket frame's purpose.
type frameType string

const (
	frameHello     frameType = "hello"
	frameSubscribe frameType = "subscribe"
	framePublish   frameType = "publish"
	frameDirect    frameType = "direct"
)

// frame is the wire format exchanged between HTTPBus peers.
type frame struct {
	Type    frameType `json:"type"`
	Topic   string    `json:"topic"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Payload []byte    `json:"payload,omitempty"`
}

type httpConn struct {
	peerID string
	conn   *websocket.Conn
	mu     sync.Mutex // guards writes; gorilla connections are not write-concurrency-safe
	topics map[string]bool
}

func (c *httpConn) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

type httpLocalSub struct {
	onMessage    OnMessage
	onPeerJoined OnPeerJoined
}

// HTTPBus is a multi-process gossip transport: peers connect to each other
// over websocket (gorilla/websocket), exchanging subscribe/publish/direct
// frames. Inbound connections arrive through Handler, which the caller
// mounts on its own gin engine; HTTPBus runs no server of its own.
type HTTPBus struct {
	self string
	log  *zap.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*httpConn // peerID -> connection
	subs  map[string]*httpLocalSub
}

// NewHTTPBus returns an HTTPBus identifying itself as selfID to peers it
// connects to. Call Handler to mount its websocket endpoint on a gin
// engine, and Connect to dial out to known peers.
func NewHTTPBus(selfID string, log *zap.Logger) *HTTPBus {
	if selfID == "" {
		selfID = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPBus{
		self:     selfID,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]*httpConn),
		subs:     make(map[string]*httpLocalSub),
	}
}

// Handler returns a gin.HandlerFunc that upgrades inbound requests to the
// gossip websocket protocol; mount it under whatever path the deployment
// chooses, e.g. router.GET("/gossip", bus.Handler()).
func (b *HTTPBus) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			b.log.Warn("gossip: upgrade failed", zap.Error(err))
			return
		}
		b.serve(conn)
	}
}

// Connect dials addr's gossip websocket endpoint and keeps the connection
// open for subsequent subscribe/publish traffic in both directions.
func (b *HTTPBus) Connect(addr string) error {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("gossip: dial %s: %w", addr, err)
	}
	go b.serve(conn)
	return nil
}

// serve runs one connection's read loop, for both dialed and accepted
// connections. It greets the peer with its own identity first so the
// other side's conns map is populated immediately — without this, a
// Subscribe call right after Connect would broadcast to no one, since
// Subscribe only reaches peers already present in conns.
func (b *HTTPBus) serve(conn *websocket.Conn) {
	hc := &httpConn{conn: conn, topics: make(map[string]bool)}
	_ = hc.send(frame{Type: frameHello, From: b.self})

	defer func() {
		b.mu.Lock()
		if hc.peerID != "" {
			delete(b.conns, hc.peerID)
		}
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if hc.peerID == "" && f.From != "" {
			hc.peerID = f.From
			b.mu.Lock()
			b.conns[f.From] = hc
			topics := make([]string, 0, len(b.subs))
			for topic := range b.subs {
				topics = append(topics, topic)
			}
			b.mu.Unlock()
			// Replay our current subscriptions to this peer: it may have
			// subscribed before we ever connected, in which case our
			// original Subscribe broadcast reached no one.
			for _, topic := range topics {
				_ = hc.send(frame{Type: frameSubscribe, Topic: topic, From: b.self})
			}
		}
		b.handleFrame(hc, f)
	}
}

func (b *HTTPBus) handleFrame(hc *httpConn, f frame) {
	switch f.Type {
	case frameSubscribe:
		b.mu.Lock()
		hc.topics[f.Topic] = true
		sub := b.subs[f.Topic]
		b.mu.Unlock()
		if sub != nil && sub.onPeerJoined != nil {
			sub.onPeerJoined(f.Topic, f.From, &httpRoom{bus: b, topic: f.Topic})
		}
	case framePublish:
		b.mu.Lock()
		sub := b.subs[f.Topic]
		b.mu.Unlock()
		if sub != nil && sub.onMessage != nil {
			sub.onMessage(f.Topic, f.From, f.Payload)
		}
		b.forward(hc.peerID, f)
	case frameDirect:
		if f.To == b.self {
			b.mu.Lock()
			sub := b.subs[f.Topic]
			b.mu.Unlock()
			if sub != nil && sub.onMessage != nil {
				sub.onMessage(f.Topic, f.From, f.Payload)
			}
			return
		}
		b.forward(hc.peerID, f)
	}
}

// forward relays a publish frame to every other known connection subscribed
// to its topic, or a direct frame to every other connection (flooded, since
// the sender may not hold a direct connection to the recipient), excluding
// the one it arrived on, so messages propagate across a mesh of more than
// two peers.
func (b *HTTPBus) forward(fromPeer string, f frame) {
	b.mu.Lock()
	targets := make([]*httpConn, 0, len(b.conns))
	for id, c := range b.conns {
		if id == fromPeer {
			continue
		}
		if f.Type == framePublish && !c.topics[f.Topic] {
			continue
		}
		targets = append(targets, c)
	}
	b.mu.Unlock()
	for _, c := range targets {
		_ = c.send(f)
	}
}

// Subscribe registers local handlers for topic and announces this peer's
// interest in topic on every open connection.
func (b *HTTPBus) Subscribe(topic string, onMessage OnMessage, onPeerJoined OnPeerJoined) error {
	b.mu.Lock()
	b.subs[topic] = &httpLocalSub{onMessage: onMessage, onPeerJoined: onPeerJoined}
	conns := make([]*httpConn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	f := frame{Type: frameSubscribe, Topic: topic, From: b.self}
	for _, c := range conns {
		_ = c.send(f)
	}
	return nil
}

// Publish broadcasts payload on topic to every connection known to have
// subscribed, and invokes this process's own onMessage handler for topic
// if present (local echo, matching Bus's documented semantics).
func (b *HTTPBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	sub := b.subs[topic]
	b.mu.Unlock()
	if sub != nil && sub.onMessage != nil {
		sub.onMessage(topic, b.self, payload)
	}
	b.forward("", frame{Type: framePublish, Topic: topic, From: b.self, Payload: payload})
	return nil
}

// Unsubscribe removes the local handler for topic. It does not notify
// peers; their forwarding simply becomes a no-op once nothing local is
// registered for that topic.
func (b *HTTPBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	return nil
}

// httpRoom remembers which topic it was handed out for (spec §4.6's
// onPeerConnected needs to reply on the same topic a peer joined on), since
// frame.Topic is how the receiving end picks the right local subscription
// to deliver a direct message to.
type httpRoom struct {
	bus   *HTTPBus
	topic string
}

// SendTo sends a direct frame addressed to peer, routed through whichever
// connection can reach it (directly if known, otherwise relayed by the
// mesh's forwarding).
func (r *httpRoom) SendTo(peer string, payload []byte) error {
	r.bus.mu.Lock()
	direct, ok := r.bus.conns[peer]
	r.bus.mu.Unlock()
	f := frame{Type: frameDirect, Topic: r.topic, From: r.bus.self, To: peer, Payload: payload}
	if ok {
		return direct.send(f)
	}
	r.bus.forward("", f)
	return nil
}
