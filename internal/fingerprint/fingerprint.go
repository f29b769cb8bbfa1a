// Package fingerprint produces stable content hashes for workbooks and
// chunks.
package fingerprint

import (
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/minio/highwayhash"
)

var key = []byte("sheetrag-highwayhash-key-0000001")

func newHash() hash.Hash64 {
	h, err := highwayhash.New64(key)
	if err != nil {
		// key is a fixed 32-byte constant
		panic(err)
	}
	return h
}

func format(h hash.Hash64) string {
	return fmt.Sprintf("%016x", h.Sum64())
}

// Bytes hashes data.
func Bytes(data []byte) string {
	h := newHash()
	_, _ = h.Write(data)
	return format(h)
}

// Parts hashes a sequence of strings. Each part is length-prefixed so that
// ("ab", "c") and ("a", "bc") differ.
func Parts(parts ...string) string {
	h := newHash()
	for _, p := range parts {
		_, _ = fmt.Fprintf(h, "%d:", len(p))
		_, _ = io.WriteString(h, p)
	}
	return format(h)
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (string, error) {
	h := newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return format(h), nil
}

// File hashes the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Reader(f)
}
