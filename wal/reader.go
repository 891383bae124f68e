package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/coredao-org/sealedkv/seal"
)

var errTruncated = errors.New("wal: sealed file ended mid-record")

// ReadLogSets reads every length-prefixed, sealed log set from path in
// file order, the inverse of SealedWriter.WriteLogSet.
func ReadLogSets(path string) ([]*LogSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ReadLogSetsFrom(bufio.NewReader(f))
}

// ReadLogSetsFrom reads every sealed log set from r until EOF.
func ReadLogSetsFrom(r io.Reader) ([]*LogSet, error) {
	var sets []*LogSet
	for {
		var lenBuf [4]byte
		_, err := io.ReadFull(r, lenBuf[:])
		if err == io.EOF {
			return sets, nil
		}
		if err != nil {
			return sets, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		sealed := make([]byte, n)
		if _, err := io.ReadFull(r, sealed); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return sets, errTruncated
			}
			return sets, err
		}
		plain, err := seal.Unseal(sealed)
		if err != nil {
			return sets, err
		}
		var set LogSet
		if err := json.Unmarshal(plain, &set); err != nil {
			return sets, err
		}
		sets = append(sets, &set)
	}
}
