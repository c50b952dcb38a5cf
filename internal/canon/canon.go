// Package canon provides the canonical byte encoding and content
// addressing used across the database: manifests, access-controller
// policies, and log entries are all hashed the same way, so two peers that
// receive equal content always compute equal CIDs.
package canon

import (
	"encoding/json"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// codecRaw marks CIDs produced by this package as opaque raw bytes; nothing
// downstream needs to interpret the multicodec beyond "it's one of ours".
const codecRaw = cid.Raw

// Marshal canonically encodes v. Go's encoding/json already sorts map keys
// and struct fields are emitted in declaration order, which is sufficient
// determinism as long as every type in this module avoids maps for
// hash-sensitive fields (entry, manifest and access-controller policy all
// do).
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "canon: marshal")
	}
	return b, nil
}

// Sum derives a CID from the canonical bytes b using blake2b-256, the
// same hash family the upstream oplog implementation in this lineage uses
// for its content addresses.
func Sum(b []byte) (cid.Cid, error) {
	sum := blake2b.Sum256(b)
	digest, err := mh.Encode(sum[:], mh.BLAKE2B_MIN+31)
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "canon: encode multihash")
	}
	return cid.NewCidV1(uint64(codecRaw), digest), nil
}

// SumValue canonically encodes v and derives its CID in one step.
func SumValue(v any) (cid.Cid, []byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return cid.Cid{}, nil, err
	}
	c, err := Sum(b)
	if err != nil {
		return cid.Cid{}, nil, err
	}
	return c, b, nil
}

// Unmarshal decodes canonical bytes produced by Marshal back into v.
func Unmarshal(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "canon: unmarshal")
	}
	return nil
}

// ParseCid parses a CID from its string form, wrapping the error with
// context so callers don't need to import the cid package just to report
// a bad address.
func ParseCid(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Cid{}, errors.Wrapf(err, "canon: invalid cid %q", s)
	}
	return c, nil
}
