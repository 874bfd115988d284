package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/vabhavx/deterministic/merkle"
)

// treeFile is the on-disk form of a dependency tree: the canonical record
// sequence plus the build parameters, which are enough to rebuild the
// full tree deterministically. The root is stored too so a load can
// detect corruption or tampering.
type treeFile struct {
	Records   []merkle.Record    `cbor:"1,keyasint"`
	Hash      merkle.Hash        `cbor:"2,keyasint"`
	Mode      merkle.OddNodeMode `cbor:"3,keyasint"`
	Root      []byte             `cbor:"4,keyasint"`
	CreatedAt time.Time          `cbor:"5,keyasint"`
}

// combinedFile is the on-disk form of a cross-ecosystem combination:
// the ordered per-ecosystem roots, build parameters, and combined root.
type combinedFile struct {
	Roots        [][]byte           `cbor:"1,keyasint"`
	CombinedRoot []byte             `cbor:"2,keyasint"`
	Hash         merkle.Hash        `cbor:"3,keyasint"`
	Mode         merkle.OddNodeMode `cbor:"4,keyasint"`
	CreatedAt    time.Time          `cbor:"5,keyasint"`
}

func newTreeFile(t *merkle.Tree, createdAt time.Time) *treeFile {
	return &treeFile{
		Records:   t.Records(),
		Hash:      t.HashAlgorithm(),
		Mode:      t.OddNode(),
		Root:      t.Root(),
		CreatedAt: createdAt,
	}
}

// rebuild reconstructs the in-memory tree from a loaded file. The records
// are already canonical, so the rebuilt root must match the stored one
// bit for bit.
func (tf *treeFile) rebuild(ctx context.Context) (*merkle.Tree, error) {
	t, err := merkle.Build(ctx, tf.Records,
		merkle.WithHash(tf.Hash),
		merkle.WithOddNodeMode(tf.Mode),
		merkle.WithStrict(),
	)
	if err != nil {
		return nil, fmt.Errorf("error rebuilding tree: %w", err)
	}
	if !bytes.Equal(t.Root(), tf.Root) {
		return nil, fmt.Errorf("stored root does not match rebuilt root, tree file is corrupted or tampered with")
	}
	return t, nil
}

// rebuildCombined reconstructs the second-level tree from a loaded
// combination file, with the same root check.
func (cf *combinedFile) rebuildCombined(ctx context.Context) (*merkle.CombinedTree, error) {
	ct, err := merkle.Combine(ctx, cf.Roots,
		merkle.WithHash(cf.Hash),
		merkle.WithOddNodeMode(cf.Mode),
	)
	if err != nil {
		return nil, fmt.Errorf("error rebuilding combined tree: %w", err)
	}
	if !bytes.Equal(ct.Root(), cf.CombinedRoot) {
		return nil, fmt.Errorf("stored combined root does not match rebuilt root, file is corrupted or tampered with")
	}
	return ct, nil
}
