package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSelfSignedCAPEM(t *testing.T, path string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "sealedkv-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o644))
}

func TestLoadClientCAPoolParsesValidBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	writeSelfSignedCAPEM(t, path)

	pool, err := loadClientCAPool(path)
	require.NoError(t, err)
	require.NotNil(t, pool)
}

func TestLoadClientCAPoolRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o644))

	_, err := loadClientCAPool(path)
	require.Error(t, err)
}

func TestLoadClientCAPoolMissingFile(t *testing.T) {
	_, err := loadClientCAPool(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)
}
