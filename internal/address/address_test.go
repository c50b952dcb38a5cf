package address

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/peerlog/peerlog/internal/canon"
	"github.com/peerlog/peerlog/internal/objectstore"
)

func mustCid(t *testing.T, s string) cid.Cid {
	t.Helper()
	c, err := canon.Sum([]byte(s))
	require.NoError(t, err)
	return c
}

func TestCreateManifestAndParseRoundTrip(t *testing.T) {
	store := objectstore.NewMemStore()
	acCid := mustCid(t, "access-controller-bytes")

	root, err := CreateManifest(store, "my-log", EventLog, acCid)
	require.NoError(t, err)

	b, err := store.Get(context.Background(), root)
	require.NoError(t, err)

	m, err := ParseManifest(b)
	require.NoError(t, err)
	require.Equal(t, "my-log", m.Name)
	require.Equal(t, EventLog, m.Type)
	require.Equal(t, acCid.String(), m.AccessController)

	addr := Address{Root: root, Name: "my-log"}
	require.Equal(t, "/peerlog/"+root.String()+"/my-log", addr.String())
}

func TestParseRejectsWrongScheme(t *testing.T) {
	_, err := Parse("/other/bafy/my-log")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseRejectsTooFewParts(t *testing.T) {
	_, err := Parse("/peerlog/bafy")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseRejectsInvalidCid(t *testing.T) {
	_, err := Parse("/peerlog/not-a-cid/my-log")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseRejectsEmptyName(t *testing.T) {
	c := mustCid(t, "x")
	_, err := Parse("/peerlog/" + c.String() + "/")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseAcceptsNameWithSlashes(t *testing.T) {
	c := mustCid(t, "x")
	addr, err := Parse("/peerlog/" + c.String() + "/team/room1")
	require.NoError(t, err)
	require.Equal(t, "team/room1", addr.Name)
}

func TestIsValid(t *testing.T) {
	c := mustCid(t, "x")
	require.True(t, IsValid("/peerlog/"+c.String()+"/name"))
	require.False(t, IsValid("just-a-name"))
}

func TestAddressEqual(t *testing.T) {
	c := mustCid(t, "x")
	a1 := Address{Root: c, Name: "n"}
	a2 := Address{Root: c, Name: "n"}
	require.True(t, a1.Equal(a2))

	a3 := Address{Root: c, Name: "other"}
	require.False(t, a1.Equal(a3))
}

func TestParseManifestRejectsMalformedContent(t *testing.T) {
	_, err := ParseManifest([]byte("not json"))
	require.Error(t, err)
}

func TestParseManifestRejectsUnknownType(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name":"n","type":"bogus","accessController":"x"}`))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseManifestRejectsEmptyName(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name":"","type":"eventlog","accessController":"x"}`))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTypeIsKnown(t *testing.T) {
	require.True(t, EventLog.IsKnown())
	require.False(t, Type("bogus").IsKnown())
}
