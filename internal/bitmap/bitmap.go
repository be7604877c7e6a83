// Package bitmap implements bit get/set/negate over a plain byte slice
// view, MSB-first within each byte (bit 0 of byte B is mask 0x80).
// It allocates nothing and knows nothing about pages, lists, or the KV
// store beneath them; callers own the buffer's storage and lifetime.
package bitmap

import (
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/utils"
)

// CellSize is the number of bits per byte, named for index arithmetic
// the way the graph package names PageSize.
const CellSize = 8

// Get returns the bit at index i. It reports ErrOutOfRange instead of
// panicking: membership queries outside current capacity are a normal,
// non-fatal occurrence (spec: "For queries: returns false").
func Get(buf []byte, i int) (bool, error) {
	if i < 0 || i >= len(buf)*CellSize {
		return false, errors.ErrOutOfRange
	}
	return buf[i/CellSize]&(0x80>>uint(i%CellSize)) != 0, nil
}

// MustGet is Get without the bounds error, for call sites that have
// already range-checked i against a known capacity.
func MustGet(buf []byte, i int) bool {
	v, err := Get(buf, i)
	utils.Assert(err == nil, "bitmap.MustGet: index out of range")
	return v
}

// Set writes the bit at index i. Out-of-range i is fatal: a mutating
// out-of-range access is an unrecoverable condition (process abort),
// not a recoverable error.
func Set(buf []byte, i int, v bool) {
	utils.Assert(i >= 0 && i < len(buf)*CellSize, "bitmap.Set: index out of range")
	mask := byte(0x80 >> uint(i%CellSize))
	if v {
		buf[i/CellSize] |= mask
	} else {
		buf[i/CellSize] &^= mask
	}
}

// Negate complements every byte of buf in place.
func Negate(buf []byte) {
	for i := range buf {
		buf[i] = ^buf[i]
	}
}

// PopCount returns the number of set bits in buf.
func PopCount(buf []byte) int {
	n := 0
	for _, b := range buf {
		for b != 0 {
			n++
			b &= b - 1
		}
	}
	return n
}
