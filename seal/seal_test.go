package seal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	plaintext := []byte("sealed log set payload")
	sealed, err := Seal(plaintext)
	require.NoError(t, err)

	got, err := Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealIsDeterministic(t *testing.T) {
	plaintext := []byte("same input every time")
	a, err := Seal(plaintext)
	require.NoError(t, err)
	b, err := Seal(plaintext)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnsealRejectsTamperedBlob(t *testing.T) {
	sealed, err := Seal([]byte("integrity matters"))
	require.NoError(t, err)
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Unseal(tampered)
	assert.Error(t, err)
}

func TestUnsealRejectsShortBlob(t *testing.T) {
	_, err := Unseal([]byte{1, 2, 3})
	assert.Error(t, err)
}
