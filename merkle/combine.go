package merkle

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/vabhavx/deterministic/logger"
)

// CombinedTree aggregates independently built per-ecosystem roots into a
// second-level Merkle tree. Each root becomes a second-level leaf (with
// its own domain prefix), in the order given by the caller: the order of
// ecosystems is part of the combined root's meaning, so Combine never
// re-sorts.
type CombinedTree struct {
	hash   Hash
	mode   OddNodeMode
	roots  [][]byte
	levels [][][]byte
}

// ConsistencyProof asserts that one ecosystem's root was aggregated into
// a combined root without substitution. It embeds the ordered root list,
// the combined root, and the inclusion proof of root Index within the
// second-level tree.
type ConsistencyProof struct {
	Roots        [][]byte        `cbor:"1,keyasint"`
	CombinedRoot []byte          `cbor:"2,keyasint"`
	Index        uint64          `cbor:"3,keyasint"`
	Inclusion    *InclusionProof `cbor:"4,keyasint"`
}

// Combine builds the second-level tree over the given roots. All roots
// must have the digest width of the configured hash. At least one root is
// required; ErrEmptyInput otherwise.
func Combine(ctx context.Context, roots [][]byte, opts ...Option) (*CombinedTree, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, ErrEmptyInput
	}
	size := cfg.hash.Size()
	kept := make([][]byte, len(roots))
	for i, r := range roots {
		if len(r) != size {
			return nil, fmt.Errorf("merkle: root %d has %d bytes, want %d for %s", i, len(r), size, cfg.hash)
		}
		kept[i] = cloneDigest(r)
	}

	leaves := make([][]byte, len(kept))
	for i, r := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		leaves[i] = cfg.hash.hashRootLeaf(r)
	}
	levels, err := buildLevels(ctx, cfg.hash, cfg.mode, leaves)
	if err != nil {
		return nil, err
	}

	log := logger.Logger()
	log.Debug().
		Int("ecosystems", len(kept)).
		Stringer("hash", cfg.hash).
		Stringer("oddNode", cfg.mode).
		Msg("combined ecosystem roots")
	return &CombinedTree{
		hash:   cfg.hash,
		mode:   cfg.mode,
		roots:  kept,
		levels: levels,
	}, nil
}

// Root returns the combined root digest.
func (c *CombinedTree) Root() []byte {
	return cloneDigest(c.levels[len(c.levels)-1][0])
}

// Size returns the number of combined ecosystem roots.
func (c *CombinedTree) Size() int {
	return len(c.roots)
}

// Roots returns the ordered ecosystem roots.
func (c *CombinedTree) Roots() [][]byte {
	out := make([][]byte, len(c.roots))
	for i, r := range c.roots {
		out[i] = cloneDigest(r)
	}
	return out
}

// ConsistencyProof derives the consistency proof for ecosystem i.
func (c *CombinedTree) ConsistencyProof(i int) (*ConsistencyProof, error) {
	if i < 0 || i >= len(c.roots) {
		return nil, ErrNotFound
	}
	return &ConsistencyProof{
		Roots:        c.Roots(),
		CombinedRoot: c.Root(),
		Index:        uint64(i),
		Inclusion:    proveFromLevels(c.hash, c.mode, c.levels, i),
	}, nil
}

func (p *ConsistencyProof) validate() error {
	if p.Inclusion == nil {
		return &MalformedProofError{Reason: "missing inclusion proof"}
	}
	// Check the embedded proof first: everything below relies on its hash
	// algorithm being a known one.
	if err := p.Inclusion.validate(); err != nil {
		return err
	}
	if len(p.Roots) == 0 {
		return &MalformedProofError{Reason: "no ecosystem roots"}
	}
	if uint64(len(p.Roots)) != p.Inclusion.TreeSize {
		return &MalformedProofError{Reason: fmt.Sprintf("%d roots but inclusion proof covers tree size %d", len(p.Roots), p.Inclusion.TreeSize)}
	}
	if p.Index >= uint64(len(p.Roots)) {
		return &MalformedProofError{Reason: fmt.Sprintf("root index %d out of range for %d roots", p.Index, len(p.Roots))}
	}
	if p.Index != p.Inclusion.LeafIndex {
		return &MalformedProofError{Reason: "root index disagrees with inclusion proof leaf index"}
	}
	size := p.Inclusion.Hash.Size()
	for i, r := range p.Roots {
		if len(r) != size {
			return &MalformedProofError{Reason: fmt.Sprintf("root %d has %d bytes, want %d", i, len(r), size)}
		}
	}
	if len(p.CombinedRoot) != size {
		return &MalformedProofError{Reason: fmt.Sprintf("combined root has %d bytes, want %d", len(p.CombinedRoot), size)}
	}
	return nil
}

// VerifyConsistency checks that the proof's claimed ecosystem root hashes
// to the embedded second-level leaf, that the leaf is included under the
// proof's combined root, and that the combined root equals expectedRoot.
// Like Verify, a mismatch is (false, nil); only structural corruption is
// an error.
func VerifyConsistency(proof *ConsistencyProof, expectedRoot []byte) (bool, error) {
	if err := proof.validate(); err != nil {
		return false, err
	}
	leaf := proof.Inclusion.Hash.hashRootLeaf(proof.Roots[proof.Index])
	if subtle.ConstantTimeCompare(leaf, proof.Inclusion.LeafValue) != 1 {
		return false, nil
	}
	ok, err := Verify(proof.Inclusion, proof.CombinedRoot)
	if err != nil || !ok {
		return false, err
	}
	return subtle.ConstantTimeCompare(proof.CombinedRoot, expectedRoot) == 1, nil
}
