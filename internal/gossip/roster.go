package gossip

import (
	"fmt"
	"sync"
)

// Peer is a known remote endpoint this node can dial for gossip traffic.
type Peer struct {
	ID      string
	Address string // dial target, e.g. "ws://host:port/gossip"
	Alive   bool
}

// Roster tracks the set of peer endpoints a node has been configured to
// know about, independent of which ones currently have a live HTTPBus
// connection — seed peers to dial on startup, or peers discovered out of
// band and handed to an operator's config reload.
type Roster struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRoster returns an empty Roster, optionally seeded with peers.
func NewRoster(seed []Peer) *Roster {
	r := &Roster{peers: make(map[string]*Peer)}
	for _, p := range seed {
		p.Alive = true
		r.peers[p.ID] = &p
	}
	return r
}

// Join adds peer to the roster.
func (r *Roster) Join(peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peer.ID]; ok {
		return fmt.Errorf("gossip: peer %s already known", peer.ID)
	}
	peer.Alive = true
	r.peers[peer.ID] = &peer
	return nil
}

// Leave removes peer from the roster.
func (r *Roster) Leave(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return fmt.Errorf("gossip: peer %s not known", id)
	}
	delete(r.peers, id)
	return nil
}

// All returns a snapshot of every known peer.
func (r *Roster) All() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

// ConnectAll dials every known peer's Address through bus, continuing past
// individual dial failures (a peer that's down at startup may come back
// later and dial us instead).
func (r *Roster) ConnectAll(bus *HTTPBus) []error {
	var errs []error
	for _, p := range r.All() {
		if err := bus.Connect(p.Address); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
