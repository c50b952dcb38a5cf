package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/ipfs/go-cid"
)

// defaultVnodes mirrors the vnode count used for balanced key distribution
// in consistent-hashing deployments (e.g. Cassandra/Dynamo-style rings).
const defaultVnodes = 150

// PeerStore is a consistent-hash ring over remote peer endpoints, used to
// pick which peer(s) to ask for a CID the local object store doesn't have.
// The object store's get(cid) contract (spec §6) is itself peer-agnostic;
// PeerStore is purely a routing aid for a RemoteStore that needs to turn a
// miss into an outbound fetch.
type PeerStore struct {
	mu     sync.RWMutex
	vnodes int
	ring   map[uint32]string
	sorted []uint32
}

// NewPeerStore returns an empty PeerStore. vnodes<=0 uses defaultVnodes.
func NewPeerStore(vnodes int) *PeerStore {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	return &PeerStore{vnodes: vnodes, ring: make(map[uint32]string)}
}

// AddPeer places endpoint's virtual nodes on the ring.
func (p *PeerStore) AddPeer(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.vnodes; i++ {
		p.ring[p.hash(endpoint, i)] = endpoint
	}
	p.rebuild()
}

// RemovePeer takes endpoint off the ring.
func (p *PeerStore) RemovePeer(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.vnodes; i++ {
		delete(p.ring, p.hash(endpoint, i))
	}
	p.rebuild()
}

// Candidates returns up to n distinct peer endpoints to try for c, in the
// order a RemoteStore should attempt them.
func (p *PeerStore) Candidates(c cid.Cid, n int) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.sorted) == 0 {
		return nil
	}

	pos := p.hashBytes(c.Bytes())
	idx := sort.Search(len(p.sorted), func(i int) bool { return p.sorted[i] >= pos })
	if idx == len(p.sorted) {
		idx = 0
	}

	seen := make(map[string]bool)
	var out []string
	for i := 0; i < len(p.sorted) && len(out) < n; i++ {
		vpos := p.sorted[(idx+i)%len(p.sorted)]
		endpoint := p.ring[vpos]
		if !seen[endpoint] {
			seen[endpoint] = true
			out = append(out, endpoint)
		}
	}
	return out
}

func (p *PeerStore) hash(endpoint string, vnode int) uint32 {
	return p.hashBytes([]byte(endpoint + "#" + strconv.Itoa(vnode)))
}

func (p *PeerStore) hashBytes(b []byte) uint32 {
	h := sha256.Sum256(b)
	return binary.BigEndian.Uint32(h[:4])
}

func (p *PeerStore) rebuild() {
	p.sorted = make([]uint32, 0, len(p.ring))
	for pos := range p.ring {
		p.sorted = append(p.sorted, pos)
	}
	slices.Sort(p.sorted)
}

// RemoteStore is a Store that falls back to fetching a CID over HTTP from
// whichever peers PeerStore ranks highest for it, caching the result in an
// underlying local Store so the same object is never re-fetched.
type RemoteStore struct {
	Store
	peers  *PeerStore
	client *http.Client
	tries  int
}

// NewRemoteStore wraps local with peer-aware remote fallback: a Get miss on
// local consults peers, trying up to tries candidates before giving up.
func NewRemoteStore(local Store, peers *PeerStore, client *http.Client, tries int) *RemoteStore {
	if client == nil {
		client = http.DefaultClient
	}
	if tries <= 0 {
		tries = 3
	}
	return &RemoteStore{Store: local, peers: peers, client: client, tries: tries}
}

// Get tries the local store first, then up to tries remote peers ranked by
// the consistent-hash ring, caching a successful remote fetch locally.
func (r *RemoteStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	b, err := r.Store.Get(ctx, c)
	if err == nil {
		return b, nil
	}

	for _, endpoint := range r.peers.Candidates(c, r.tries) {
		b, ferr := fetchRemote(ctx, r.client, endpoint, c)
		if ferr != nil {
			continue
		}
		if _, perr := r.Store.Put(b); perr == nil {
			return b, nil
		}
		return b, nil
	}
	return nil, err
}

func fetchRemote(ctx context.Context, client *http.Client, endpoint string, c cid.Cid) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/objects/"+c.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ErrTransport
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ErrTransport
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrTransport
	}
	return b, nil
}
