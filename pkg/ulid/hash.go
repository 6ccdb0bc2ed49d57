package ulid

import (
	"encoding/binary"
	"fmt"
	"hash"
)

// Hasher is a hash.Hash64 for IDs. IDs already carry 80 random bits, so the
// sum is the low 64 bits of the last ID written, unmixed.
//
// Only whole IDs may be written. Any other write is a programming error and
// panics.
type Hasher struct {
	sum uint64
}

var _ hash.Hash64 = (*Hasher)(nil)

// HashID is shorthand for writing id into a fresh Hasher and reading Sum64.
func HashID(id ID) uint64 {
	var h Hasher
	h.WriteID(id)
	return h.Sum64()
}

func (h *Hasher) WriteID(id ID) {
	h.sum = binary.BigEndian.Uint64(id[8:])
}

// Write accepts exactly one 16-byte ID.
func (h *Hasher) Write(p []byte) (int, error) {
	if len(p) != Size {
		panic(fmt.Sprintf("ulid.Hasher: write of %d bytes, only %d-byte ids are hashable", len(p), Size))
	}
	h.WriteID(ID(p))
	return len(p), nil
}

func (h *Hasher) Sum64() uint64 { return h.sum }

func (h *Hasher) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, h.sum)
}

func (h *Hasher) Reset()         { h.sum = 0 }
func (h *Hasher) Size() int      { return 8 }
func (h *Hasher) BlockSize() int { return Size }

// IntHasher is a hash.Hash64 for random 64-bit identifiers. The value passes
// through unchanged. Writes other than a single uint64 panic.
type IntHasher struct {
	sum uint64
}

var _ hash.Hash64 = (*IntHasher)(nil)

// HashUint64 is shorthand for writing v into a fresh IntHasher.
func HashUint64(v uint64) uint64 {
	var h IntHasher
	h.WriteUint64(v)
	return h.Sum64()
}

func (h *IntHasher) WriteUint64(v uint64) { h.sum = v }

// Write accepts exactly 8 big-endian bytes.
func (h *IntHasher) Write(p []byte) (int, error) {
	if len(p) != 8 {
		panic(fmt.Sprintf("ulid.IntHasher: write of %d bytes, only 8-byte values are hashable", len(p)))
	}
	h.sum = binary.BigEndian.Uint64(p)
	return len(p), nil
}

func (h *IntHasher) Sum64() uint64 { return h.sum }

func (h *IntHasher) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, h.sum)
}

func (h *IntHasher) Reset()         { h.sum = 0 }
func (h *IntHasher) Size() int      { return 8 }
func (h *IntHasher) BlockSize() int { return 8 }
