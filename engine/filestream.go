package engine

import (
	"os"
	"path/filepath"
)

// fileStream adapts *os.File to wal.ByteStream: append-only, durable
// writes to a logger's sealed file.
type fileStream struct{ file *os.File }

func newFileStream(path string) (*fileStream, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileStream{file: f}, nil
}

func (s *fileStream) Write(p []byte) (int, error) { return s.file.Write(p) }
func (s *fileStream) Sync() error                 { return s.file.Sync() }
