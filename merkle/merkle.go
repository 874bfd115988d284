// merkle turns a set of named, versioned dependency records into a single
// cryptographic root and produces compact inclusion proofs against it.
// Hashing is domain separated between leaves and interior nodes, in the
// manner of Certificate Transparency.
//
//	https://datatracker.ietf.org/doc/html/rfc9162#section-2.1
package merkle

import (
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Domain-separation prefixes. Mixing these up would let an interior node
// be replayed as a leaf (or an ecosystem root as a dependency record), so
// every hash input starts with exactly one of them.
const (
	leafPrefix     = 0x00
	interiorPrefix = 0x01
	rootLeafPrefix = 0x02 // ecosystem roots combined into a second-level tree
)

// Hash selects the digest algorithm for a tree. It is fixed at build time
// and recorded in serialized proofs so a later process verifies with the
// same algorithm.
type Hash uint8

const (
	// Blake3_256 produces 32-byte digests.
	Blake3_256 Hash = iota + 1
	// SHA3_384 produces 48-byte digests.
	SHA3_384
)

// Size returns the digest width in bytes, or 0 for an unknown algorithm.
func (h Hash) Size() int {
	switch h {
	case Blake3_256:
		return 32
	case SHA3_384:
		return 48
	}
	return 0
}

func (h Hash) String() string {
	switch h {
	case Blake3_256:
		return "blake3-256"
	case SHA3_384:
		return "sha3-384"
	}
	return fmt.Sprintf("unknown(%d)", uint8(h))
}

// ParseHash maps a CLI/config name to a Hash.
func ParseHash(s string) (Hash, error) {
	switch s {
	case "blake3-256":
		return Blake3_256, nil
	case "sha3-384":
		return SHA3_384, nil
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", s)
}

func (h Hash) valid() bool {
	return h == Blake3_256 || h == SHA3_384
}

func (h Hash) new() hash.Hash {
	switch h {
	case Blake3_256:
		return blake3.New(32, nil)
	case SHA3_384:
		return sha3.New384()
	}
	panic("merkle: unknown hash algorithm")
}

// writeField writes a length-prefixed field. The fixed-width big-endian
// prefix makes the overall encoding injective: no two distinct records
// share a canonical byte string.
func writeField(w hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	w.Write(n[:])
	w.Write(b)
}

// hashLeaf computes the leaf digest of one dependency record.
// Pure: same record, same digest, on any machine.
func (h Hash) hashLeaf(r Record) []byte {
	hs := h.new()
	hs.Write([]byte{leafPrefix})
	writeField(hs, []byte(r.Name))
	writeField(hs, []byte(r.Version))
	writeField(hs, r.ContentHash)
	return hs.Sum(nil)
}

// hashRootLeaf computes the second-level leaf digest of an ecosystem root.
func (h Hash) hashRootLeaf(root []byte) []byte {
	hs := h.new()
	hs.Write([]byte{rootLeafPrefix})
	writeField(hs, root)
	return hs.Sum(nil)
}

// hashInterior combines two child digests. Left/right order is part of
// the input, so swapped children produce a different digest.
func (h Hash) hashInterior(left, right []byte) []byte {
	hs := h.new()
	hs.Write([]byte{interiorPrefix})
	hs.Write(left)
	hs.Write(right)
	return hs.Sum(nil)
}

func cloneDigest(d []byte) []byte {
	out := make([]byte, len(d))
	copy(out, d)
	return out
}
