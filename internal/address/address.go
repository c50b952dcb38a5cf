// Package address implements the content-addressed database identity
// scheme: a manifest binds a database's name, type and access-controller
// CID, and the manifest's own CID plus the name form the database address
// "/<scheme>/<manifestCid>/<name>".
package address

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/canon"
)

// Scheme is the fixed URI-like scheme every address is rooted under.
const Scheme = "peerlog"

// Type enumerates the known database (view) kinds a manifest can declare.
type Type string

const (
	EventLog Type = "eventlog"
	Feed     Type = "feed"
	KeyValue Type = "keyvalue"
	Counter  Type = "counter"
	DocStore Type = "docstore"
)

// KnownTypes lists every Type recognized by Coordinator.Open.
var KnownTypes = []Type{EventLog, Feed, KeyValue, Counter, DocStore}

// IsKnown reports whether t is one of KnownTypes.
func (t Type) IsKnown() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ErrInvalidAddress is returned when a string does not parse as an address.
var ErrInvalidAddress = errors.New("address: invalid address")

// Manifest is the immutable object a database's address is derived from.
type Manifest struct {
	Name              string `json:"name"`
	Type              Type   `json:"type"`
	AccessController  string `json:"accessController"`
}

// Address identifies a single database: the CID of its manifest, plus the
// human-readable name carried in the path for convenience.
type Address struct {
	Root cid.Cid
	Name string
}

// String renders the canonical form "/<scheme>/<manifestCid>/<name>",
// trimming any trailing slash so address equality reduces to string
// equality.
func (a Address) String() string {
	return strings.TrimSuffix(fmt.Sprintf("/%s/%s/%s", Scheme, a.Root.String(), a.Name), "/")
}

// Equal compares two addresses by their normalized string form.
func (a Address) Equal(other Address) bool {
	return a.String() == other.String()
}

// IsValid reports whether s parses as a well-formed address.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse requires the form "/<scheme>/<cid>/<name>"; any other string
// (including a bare database name) returns ErrInvalidAddress so callers can
// fall back to "bare name" handling.
func Parse(s string) (Address, error) {
	s = strings.TrimSuffix(s, "/")
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	if len(parts) < 3 || parts[0] != Scheme {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q", s)
	}
	root, err := canon.ParseCid(parts[1])
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: %s", s, err)
	}
	name := strings.Join(parts[2:], "/")
	if name == "" {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: empty name", s)
	}
	return Address{Root: root, Name: name}, nil
}

// ObjectPutter is the narrow slice of the object store Address needs: it
// only ever writes manifests, never reads them back through this package.
type ObjectPutter interface {
	Put(b []byte) (cid.Cid, error)
}

// CreateManifest canonically encodes {name, type, accessController} and
// stores it, returning the manifest's CID — the database address is
// Address{Root: cid, Name: name}.
func CreateManifest(store ObjectPutter, name string, typ Type, accessController cid.Cid) (cid.Cid, error) {
	m := Manifest{Name: name, Type: typ, AccessController: accessController.String()}
	b, err := canon.Marshal(m)
	if err != nil {
		return cid.Cid{}, err
	}
	c, err := store.Put(b)
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "address: store manifest")
	}
	return c, nil
}

// ParseManifest decodes the canonical bytes fetched from the object store
// back into a Manifest, rejecting content that does not parse.
func ParseManifest(b []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, errors.Wrap(err, "address: malformed manifest")
	}
	if m.Name == "" || !m.Type.IsKnown() {
		return Manifest{}, errors.Wrap(ErrInvalidAddress, "address: malformed manifest fields")
	}
	return m, nil
}
