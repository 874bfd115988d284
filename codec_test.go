package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vabhavx/deterministic/merkle"
)

func testTree(t *testing.T, n int) *merkle.Tree {
	t.Helper()
	recs := make([]merkle.Record, n)
	for i := range recs {
		recs[i] = merkle.Record{
			Name:        "pkg-" + string(rune('a'+i)),
			Version:     "1.0.0",
			ContentHash: []byte{byte(i), 0xab, 0xcd},
		}
	}
	tree, err := merkle.Build(context.Background(), recs)
	require.NoError(t, err)
	return tree
}

func TestTreeFileRoundTrip(t *testing.T) {
	tree := testTree(t, 7)
	path := filepath.Join(t.TempDir(), "deps.tree")

	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, writeTreeFile(newTreeFile(tree, created), path))

	tf, err := readTreeFile(path)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), tf.Root)
	assert.Equal(t, tree.Records(), tf.Records)
	assert.Equal(t, merkle.Blake3_256, tf.Hash)
	assert.True(t, created.Equal(tf.CreatedAt))

	rebuilt, err := tf.rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), rebuilt.Root())
}

func TestTreeFileTamperDetected(t *testing.T) {
	tree := testTree(t, 4)
	path := filepath.Join(t.TempDir(), "deps.tree")
	tf := newTreeFile(tree, time.Now().UTC())
	tf.Root[3] ^= 0x01
	require.NoError(t, writeTreeFile(tf, path))

	loaded, err := readTreeFile(path)
	require.NoError(t, err)
	_, err = loaded.rebuild(context.Background())
	assert.ErrorContains(t, err, "does not match")
}

func TestInclusionProofRoundTrip(t *testing.T) {
	tree := testTree(t, 9)
	proof, err := tree.ProveIndex(4)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dep.proof")
	require.NoError(t, writeInclusionProof(proof, path))
	loaded, err := readInclusionProof(path)
	require.NoError(t, err)
	assert.Equal(t, proof, loaded)

	ok, err := merkle.Verify(loaded, tree.Root())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSerializationIsExactBytes(t *testing.T) {
	// Proofs are stored and checked later by other processes, so the same
	// object must always serialize to the same bytes.
	tree := testTree(t, 5)
	proof, err := tree.ProveIndex(2)
	require.NoError(t, err)

	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.proof")
	p2 := filepath.Join(dir, "b.proof")
	require.NoError(t, writeInclusionProof(proof, p1))
	require.NoError(t, writeInclusionProof(proof, p2))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestConsistencyProofRoundTrip(t *testing.T) {
	roots := [][]byte{testTree(t, 3).Root(), testTree(t, 6).Root()}
	ct, err := merkle.Combine(context.Background(), roots)
	require.NoError(t, err)
	proof, err := ct.ConsistencyProof(1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "eco.proof")
	require.NoError(t, writeConsistencyProof(proof, path))
	loaded, err := readConsistencyProof(path)
	require.NoError(t, err)
	assert.Equal(t, proof, loaded)

	ok, err := merkle.VerifyConsistency(loaded, ct.Root())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCombinedFileRoundTrip(t *testing.T) {
	roots := [][]byte{testTree(t, 2).Root(), testTree(t, 4).Root(), testTree(t, 8).Root()}
	ct, err := merkle.Combine(context.Background(), roots)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "combined")
	cf := &combinedFile{
		Roots:        ct.Roots(),
		CombinedRoot: ct.Root(),
		Hash:         merkle.Blake3_256,
		Mode:         merkle.OddNodePromote,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, writeCombinedFile(cf, path))

	loaded, err := readCombinedFile(path)
	require.NoError(t, err)
	assert.Equal(t, cf.Roots, loaded.Roots)
	assert.Equal(t, cf.CombinedRoot, loaded.CombinedRoot)

	rebuilt, err := loaded.rebuildCombined(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ct.Root(), rebuilt.Root())
}

func TestBadHeaderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(path, []byte("notdepmerkle\x01garbage"), 0644))
	_, err := readTreeFile(path)
	assert.ErrorContains(t, err, "invalid file header")
}
