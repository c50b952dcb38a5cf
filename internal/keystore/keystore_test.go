package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	s := NewStore()
	k, err := s.CreateKey("id1")
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := k.Sign(msg)
	require.NoError(t, err)

	require.True(t, Verify(k.PublicKey(), msg, sig))
	require.False(t, Verify(k.PublicKey(), []byte("tampered"), sig))
}

func TestGetOrCreateIsStableAfterFirstCall(t *testing.T) {
	s := NewStore()
	k1, err := s.GetOrCreate("id1")
	require.NoError(t, err)

	k2, err := s.GetOrCreate("id1")
	require.NoError(t, err)
	require.Equal(t, k1.PublicKey(), k2.PublicKey())
}

func TestGetKeyMissingReturnsNil(t *testing.T) {
	s := NewStore()
	require.Nil(t, s.GetKey("missing"))
}

func TestVerifyRejectsMalformedPublicKey(t *testing.T) {
	require.False(t, Verify("not-hex", []byte("msg"), []byte("sig")))
}
