package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Stable(t *testing.T) {
	key := []byte("some-key")
	require.Equal(t, Hash(key), Hash(key))
	require.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
}

func TestKeyGroup_InRange(t *testing.T) {
	const numKeyGroups = 128
	for _, key := range [][]byte{nil, {}, []byte("x"), []byte("another key"), {0, 0, 0, 1}} {
		group := KeyGroup(key, numKeyGroups)
		require.GreaterOrEqual(t, group, 0)
		require.Less(t, group, numKeyGroups)
	}
}

func TestKeyGroup_MatchesHashAssignment(t *testing.T) {
	key := []byte{0, 0, 0, 42}
	require.Equal(t, KeyGroup(key, 16), KeyGroupForHash(Hash(key), 16))
}

func TestKeyGroupForHash_ZeroGroups(t *testing.T) {
	require.Equal(t, 0, KeyGroupForHash(1234, 0))
	require.Equal(t, 0, KeyGroupForHash(1234, -1))
}
