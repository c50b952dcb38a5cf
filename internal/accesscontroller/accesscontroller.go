// Package accesscontroller implements the per-database write policy: an
// immutable, content-addressed object listing which identities may append
// entries to a database's log.
package accesscontroller

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/canon"
)

// wildcardWrite, used verbatim in spec §3, allows any identity to append.
const wildcardWrite = "*"

// policy is the canonical, serializable form of a Controller — admin is
// accepted and stored but, per spec §4.2 / the "admin role" open question,
// never consulted for authorization decisions.
type policy struct {
	Admin []string `json:"admin"`
	Write []string `json:"write"`
}

// Controller answers canAppend(entry) for one database. It is immutable
// once saved: changing a policy produces a new CID, and therefore a new
// database address, rather than mutating this object in place.
type Controller struct {
	admin map[string]bool
	write map[string]bool
}

// New returns an empty Controller; callers add roles with Add before the
// first Save.
func New() *Controller {
	return &Controller{admin: map[string]bool{}, write: map[string]bool{}}
}

// NewWithWriters returns a Controller whose write role is exactly keys, or,
// if keys is empty, exactly {self} — the default-policy rule from spec
// §4.2.
func NewWithWriters(keys []string, self string) *Controller {
	c := New()
	if len(keys) == 0 {
		c.Add("write", self)
		return c
	}
	for _, k := range keys {
		c.Add("write", k)
	}
	return c
}

// Add grants role ("admin" or "write") to key.
func (c *Controller) Add(role, key string) {
	switch role {
	case "admin":
		c.admin[key] = true
	case "write":
		c.write[key] = true
	}
}

// CanAppend implements entry.Verifier: identity may append iff it holds the
// write role, or the write role is the wildcard "*".
func (c *Controller) CanAppend(identity string) bool {
	if c.write[wildcardWrite] {
		return true
	}
	return c.write[identity]
}

func (c *Controller) toPolicy() policy {
	p := policy{}
	for k := range c.admin {
		p.Admin = append(p.Admin, k)
	}
	for k := range c.write {
		p.Write = append(p.Write, k)
	}
	sort.Strings(p.Admin)
	sort.Strings(p.Write)
	return p
}

// Store is the narrow object-store capability Save needs.
type Store interface {
	Put(b []byte) (cid.Cid, error)
}

// Save canonically encodes the policy and stores it; toPolicy sorts both
// role lists, so two Controllers holding the same roles always produce the
// same CID regardless of Add order.
func (c *Controller) Save(store Store) (cid.Cid, error) {
	b, err := canon.Marshal(c.toPolicy())
	if err != nil {
		return cid.Cid{}, err
	}
	out, err := store.Put(b)
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "accesscontroller: save")
	}
	return out, nil
}

// Fetcher is the narrow object-store capability Load needs.
type Fetcher interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// ErrMalformed is returned when the stored object doesn't parse as a policy.
var ErrMalformed = errors.New("accesscontroller: malformed policy")

// Load fetches and parses the policy at c, rejecting content that does not
// parse — coordinators must fail open/create if this returns an error.
func Load(ctx context.Context, store Fetcher, c cid.Cid) (*Controller, error) {
	b, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var p policy
	if err := canon.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	ctrl := New()
	for _, k := range p.Admin {
		ctrl.Add("admin", k)
	}
	for _, k := range p.Write {
		ctrl.Add("write", k)
	}
	return ctrl, nil
}
