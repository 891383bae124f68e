package engine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coredao-org/sealedkv/notify"
	"github.com/coredao-org/sealedkv/rtconfig"
)

// selfSignedCert builds a throwaway ECDSA certificate/key pair for tests
// that need a tls.Certificate but have no fixture to load from disk.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sealedkv-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func testConfig(dataDir string) rtconfig.Config {
	return rtconfig.Config{
		EpochTimeMillis:       40,
		WorkerNum:             2,
		LoggerNum:             1,
		BufferNum:             2,
		MaxBufferedLogEntries: 1024,
		EpochDiff:             2,
		Port:                  0,
		DataDir:               dataDir,
	}
}

// TestNewRecoversEmptyDataDir verifies wiring succeeds against a fresh data
// directory (no prior WAL/pepoch files) and starts the global epoch at 1.
func TestNewRecoversEmptyDataDir(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t)

	e, err := New(testConfig(dir), cert, &tls.Config{})
	require.NoError(t, err)
	require.NotNil(t, e)

	req := require.New(t)
	req.Equal(uint64(1), e.rt.GlobalEpoch())
	req.Equal(uint64(0), e.rt.DurableEpoch())
	req.Len(e.loggers, cfgLoggerNum(e))
}

// TestNewWiresOneQueuePerLogger checks assignWorkersToLoggers' round-robin
// binding and that each worker got its own buffer pool sharing its
// logger's queue.
func TestNewWiresOneQueuePerLogger(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t)

	cfg := testConfig(dir)
	cfg.WorkerNum = 4
	cfg.LoggerNum = 2

	e, err := New(cfg, cert, &tls.Config{})
	require.NoError(t, err)
	require.Len(t, e.pools, 4)
	require.Len(t, e.queues, 2)
	require.Len(t, e.loggers, 2)
}

func TestAssignWorkersToLoggersRoundRobins(t *testing.T) {
	bound := assignWorkersToLoggers(5, 2)
	require.Equal(t, [][]int{{0, 2, 4}, {1, 3}}, bound)
}

func TestLoggerLogPathAndPepochPathAreDistinctFiles(t *testing.T) {
	dir := "/tmp/sealedkv-data"
	require.Equal(t, filepath.Join(dir, "log0.seal"), loggerLogPath(dir, 0))
	require.Equal(t, filepath.Join(dir, "log1.seal"), loggerLogPath(dir, 1))
	require.Equal(t, filepath.Join(dir, "pepoch.seal"), pepochPath(dir))
	require.NotEqual(t, loggerLogPath(dir, 0), pepochPath(dir))
}

// TestNewResumesFromPriorPepoch seeds a pepoch file claiming durable epoch
// 5 with no matching log file (e.g. its logger never wrote anything before
// a prior shutdown) and checks the engine still resumes at the recorded
// epoch rather than silently resetting to epoch 1.
func TestNewResumesFromPriorPepoch(t *testing.T) {
	dir := t.TempDir()
	cert := selfSignedCert(t)

	err := notify.PersistPepoch(pepochPath(dir), 5, []string{""})
	require.NoError(t, err)

	e, err := New(testConfig(dir), cert, &tls.Config{})
	require.NoError(t, err)
	require.Equal(t, uint64(6), e.rt.GlobalEpoch())
	require.Equal(t, uint64(5), e.rt.DurableEpoch())
}

func cfgLoggerNum(e *Engine) int { return e.cfg.LoggerNum }
