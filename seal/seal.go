// Package seal implements the opaque, authenticated envelope spec.md §6
// requires around every on-disk artifact (sealed log sets, the pepoch
// file): deterministic AEAD encryption keyed from a build-time
// passphrase, so repeated Seal calls on identical plaintext produce
// identical ciphertext, which the hash-chain verification in recovery
// relies on being reproducible.
package seal

import (
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"
)

// buildPassphrase is the key material baked into the trusted binary;
// in a real deployment this would be provisioned by the enclave's
// sealing key derivation rather than a literal constant.
const buildPassphrase = "sealedkv-build-time-sealing-key-32b"

func aead() (ciphergo, error) {
	key := sha256.Sum256([]byte(buildPassphrase))
	c, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return c, nil
}

type ciphergo interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// deterministicNonce derives a nonce from the plaintext's own digest so
// Seal is a pure function of its input, per spec.md §6's requirement
// that the envelope be deterministic.
func deterministicNonce(plaintext []byte, size int) []byte {
	sum := sha256.Sum256(plaintext)
	return sum[:size]
}

// Seal encrypts and authenticates plaintext, returning nonce||ciphertext.
func Seal(plaintext []byte) ([]byte, error) {
	c, err := aead()
	if err != nil {
		return nil, err
	}
	nonce := deterministicNonce(plaintext, c.NonceSize())
	out := make([]byte, 0, len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	out = c.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Unseal reverses Seal, verifying the authentication tag.
func Unseal(sealed []byte) ([]byte, error) {
	c, err := aead()
	if err != nil {
		return nil, err
	}
	n := c.NonceSize()
	if len(sealed) < n {
		return nil, errShortSealed
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	return c.Open(nil, nonce, ciphertext, nil)
}
