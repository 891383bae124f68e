package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("abcdefgh"),
		[]byte("abcdefghi"),
		[]byte("0123456789abcdef0123"),
	}
	for _, b := range cases {
		k := Encode(b)
		got := k.Decode()
		if len(b) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, b, got)
	}
}

func TestCompareAgreesWithByteOrder(t *testing.T) {
	cases := []struct {
		a, b []byte
	}{
		{[]byte("aaaa"), []byte("aaab")},
		{[]byte("aaaaaaaa"), []byte("aaaaaaaaa")},
		{[]byte("aaaaaaaax"), []byte("aaaaaaaay")},
		{[]byte(""), []byte("a")},
	}
	for _, c := range cases {
		ka, kb := Encode(c.a), Encode(c.b)
		cmp := ka.Compare(kb)
		require.Negative(t, cmp, "expected %q < %q", c.a, c.b)
	}
}

func TestSliceAtAndSuffix(t *testing.T) {
	k := Encode([]byte("abcdefghijk"))
	require.Equal(t, 2, len(k.Slices))
	s0, ok := k.SliceAt(0)
	require.True(t, ok)
	require.NotZero(t, s0)

	suf := k.Suffix(0)
	assert.Equal(t, []byte("ijk"), suf.Decode())
}

func TestEqualAndLen(t *testing.T) {
	k1 := Encode([]byte("hello"))
	k2 := Encode([]byte("hello"))
	assert.True(t, k1.Equal(k2))
	assert.Equal(t, 5, k1.Len())
}
