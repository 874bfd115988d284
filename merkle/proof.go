package merkle

import (
	"crypto/subtle"
	"fmt"
)

// ProofStep is one entry of an inclusion path: the sibling digest at that
// level and which side it sits on. The side matters because interior
// hashing is not commutative.
type ProofStep struct {
	Sibling       []byte `cbor:"1,keyasint"`
	SiblingIsLeft bool   `cbor:"2,keyasint"`
}

// InclusionProof is self-contained evidence that a leaf belongs under a
// root: it carries everything needed to recompute the root without access
// to the original tree, including the hash algorithm and odd-node rule
// the tree was built with.
type InclusionProof struct {
	Hash      Hash        `cbor:"1,keyasint"`
	Mode      OddNodeMode `cbor:"2,keyasint"`
	TreeSize  uint64      `cbor:"3,keyasint"`
	LeafIndex uint64      `cbor:"4,keyasint"`
	LeafValue []byte      `cbor:"5,keyasint"`
	Path      []ProofStep `cbor:"6,keyasint"`
}

// Prove generates an inclusion proof for the given record. The record's
// canonical leaf must be present: an identity match with a different
// content hash is still ErrNotFound.
func (t *Tree) Prove(record Record) (*InclusionProof, error) {
	i, ok := t.index(record)
	if !ok {
		return nil, ErrNotFound
	}
	return t.ProveIndex(i)
}

// ProveIndex generates an inclusion proof for leaf i in canonical order.
func (t *Tree) ProveIndex(i int) (*InclusionProof, error) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, ErrNotFound
	}
	return proveFromLevels(t.hash, t.mode, t.levels, i), nil
}

// proveFromLevels walks from leaf i up through the retained levels,
// collecting the sibling digest at each pairing. Under promote, an
// unpaired tail node passes a level without a step; under mirror, its
// step is its own digest on the right.
func proveFromLevels(h Hash, mode OddNodeMode, levels [][][]byte, i int) *InclusionProof {
	var path []ProofStep
	idx := i
	for l := 0; l < len(levels)-1; l++ {
		level := levels[l]
		switch {
		case idx == len(level)-1 && len(level)%2 == 1:
			if mode == OddNodeMirror {
				path = append(path, ProofStep{Sibling: cloneDigest(level[idx]), SiblingIsLeft: false})
			}
		case idx%2 == 0:
			path = append(path, ProofStep{Sibling: cloneDigest(level[idx+1]), SiblingIsLeft: false})
		default:
			path = append(path, ProofStep{Sibling: cloneDigest(level[idx-1]), SiblingIsLeft: true})
		}
		idx /= 2
	}
	return &InclusionProof{
		Hash:      h,
		Mode:      mode,
		TreeSize:  uint64(len(levels[0])),
		LeafIndex: uint64(i),
		LeafValue: cloneDigest(levels[0][i]),
		Path:      path,
	}
}

// pathLen returns the exact number of path entries a proof for leaf m in
// a tree of n leaves must have under the given mode.
func pathLen(mode OddNodeMode, n, m uint64) int {
	steps := 0
	for n > 1 {
		if m == n-1 && n%2 == 1 {
			if mode == OddNodeMirror {
				steps++
			}
		} else {
			steps++
		}
		m /= 2
		n = (n + 1) / 2
	}
	return steps
}

// validate checks proof structure only. A structurally broken proof is a
// transport or programming bug and gets a MalformedProofError; whether a
// sound proof matches a root is Verify's business.
func (p *InclusionProof) validate() error {
	if !p.Hash.valid() {
		return &MalformedProofError{Reason: fmt.Sprintf("unknown hash algorithm %d", uint8(p.Hash))}
	}
	if !p.Mode.valid() {
		return &MalformedProofError{Reason: fmt.Sprintf("unknown odd-node mode %d", uint8(p.Mode))}
	}
	if p.TreeSize == 0 {
		return &MalformedProofError{Reason: "tree size is zero"}
	}
	if p.LeafIndex >= p.TreeSize {
		return &MalformedProofError{Reason: fmt.Sprintf("leaf index %d out of range for tree size %d", p.LeafIndex, p.TreeSize)}
	}
	size := p.Hash.Size()
	if len(p.LeafValue) != size {
		return &MalformedProofError{Reason: fmt.Sprintf("leaf value has %d bytes, want %d", len(p.LeafValue), size)}
	}
	if want := pathLen(p.Mode, p.TreeSize, p.LeafIndex); len(p.Path) != want {
		return &MalformedProofError{Reason: fmt.Sprintf("path has %d entries, want %d", len(p.Path), want)}
	}
	for i, step := range p.Path {
		if len(step.Sibling) != size {
			return &MalformedProofError{Reason: fmt.Sprintf("path entry %d has %d bytes, want %d", i, len(step.Sibling), size)}
		}
	}
	return nil
}

// Verify recomputes a root from the proof's leaf value and sibling path
// and compares it to expectedRoot in constant time. It is pure and
// stateless: it needs no tree, only the proof object.
//
// A mismatch is (false, nil) — an expected, common outcome, not an
// error. Only structural corruption of the proof itself returns a
// MalformedProofError.
func Verify(proof *InclusionProof, expectedRoot []byte) (bool, error) {
	if err := proof.validate(); err != nil {
		return false, err
	}
	cur := proof.LeafValue
	for _, step := range proof.Path {
		if step.SiblingIsLeft {
			cur = proof.Hash.hashInterior(step.Sibling, cur)
		} else {
			cur = proof.Hash.hashInterior(cur, step.Sibling)
		}
	}
	return subtle.ConstantTimeCompare(cur, expectedRoot) == 1, nil
}
