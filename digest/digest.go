// Package digest computes a whole-run checksum over a pipeline's output
// streams, so that two runs with identical inputs, parameters, and thread
// count can be compared for byte-identical output without diffing the
// files themselves.
package digest

import (
	"hash"
	"io"

	"github.com/minio/highwayhash"
)

// Key is the fixed zero key used for every digest in this package. The
// digest is a determinism check, not a cryptographic commitment, so a
// fixed key is sufficient: two runs hash under the same key and are
// compared for equality.
var Key [highwayhash.Size]byte

// Writer wraps an io.Writer, feeding everything written through it into a
// running highwayhash digest.
type Writer struct {
	w io.Writer
	h hash.Hash
}

// NewWriter constructs a Writer around w. Sum may be called at any point
// to read the digest of everything written so far.
func NewWriter(w io.Writer) *Writer {
	h, err := highwayhash.New(Key[:])
	if err != nil {
		// Key is a fixed, correctly-sized array; New only fails on a
		// key of the wrong length.
		panic(err)
	}
	return &Writer{w: w, h: h}
}

func (dw *Writer) Write(p []byte) (int, error) {
	n, err := dw.w.Write(p)
	if n > 0 {
		dw.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the digest of everything written so far.
func (dw *Writer) Sum() [highwayhash.Size]byte {
	var out [highwayhash.Size]byte
	copy(out[:], dw.h.Sum(nil))
	return out
}
