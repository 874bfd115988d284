package merkle

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func testRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		h := blake3.Sum256([]byte(fmt.Sprintf("content-%d", i)))
		recs[i] = Record{
			Name:        fmt.Sprintf("pkg-%03d", i),
			Version:     "1.0.0",
			ContentHash: h[:],
		}
	}
	return recs
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	// All records rejected in lenient mode is still an empty tree
	_, err = Build(context.Background(), []Record{{Name: "", Version: "1", ContentHash: []byte{1}}})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBuildDeterministic(t *testing.T) {
	// Code takes different paths depending on tree shape, so sweep sizes
	for n := 1; n <= 33; n++ {
		recs := testRecords(n)
		a, err := Build(context.Background(), recs)
		require.NoError(t, err)
		b, err := Build(context.Background(), recs)
		require.NoError(t, err)
		assert.Equal(t, a.Root(), b.Root(), "size %d", n)
	}
}

func TestBuildInputOrderIrrelevant(t *testing.T) {
	recs := testRecords(20)
	want, err := Build(context.Background(), recs)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := make([]Record, len(recs))
		copy(shuffled, recs)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, err := Build(context.Background(), shuffled)
		require.NoError(t, err)
		assert.Equal(t, want.Root(), got.Root())
	}
}

func TestBuildCollapsesExactDuplicate(t *testing.T) {
	h := blake3.Sum256([]byte("left-pad tarball"))
	recs := []Record{
		{Name: "left-pad", Version: "1.0.0", ContentHash: h[:]},
		{Name: "left-pad", Version: "1.0.0", ContentHash: h[:]},
	}
	tree, err := Build(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Size())
}

func TestBuildConflictingDuplicate(t *testing.T) {
	h1 := blake3.Sum256([]byte("real tarball"))
	h2 := blake3.Sum256([]byte("tampered tarball"))
	recs := []Record{
		{Name: "a", Version: "1.0.0", ContentHash: h1[:]},
		{Name: "a", Version: "1.0.0", ContentHash: h2[:]},
	}
	_, err := Build(context.Background(), recs)
	var dup *DuplicateError
	assert.ErrorAs(t, err, &dup)
}

// Pin down the exact shapes both odd-node rules produce for three leaves.
// Changing either rule changes roots in the wild, so these digests are
// contract, not implementation detail.
func TestOddNodeRules(t *testing.T) {
	recs := testRecords(3) // already in canonical order
	lA := Blake3_256.hashLeaf(recs[0])
	lB := Blake3_256.hashLeaf(recs[1])
	lC := Blake3_256.hashLeaf(recs[2])
	ab := Blake3_256.hashInterior(lA, lB)

	mirror, err := Build(context.Background(), recs, WithOddNodeMode(OddNodeMirror))
	require.NoError(t, err)
	assert.Equal(t, Blake3_256.hashInterior(ab, Blake3_256.hashInterior(lC, lC)), mirror.Root())

	promote, err := Build(context.Background(), recs, WithOddNodeMode(OddNodePromote))
	require.NoError(t, err)
	assert.Equal(t, Blake3_256.hashInterior(ab, lC), promote.Root())

	assert.NotEqual(t, mirror.Root(), promote.Root())
}

func TestRootIsStable(t *testing.T) {
	tree, err := Build(context.Background(), testRecords(7))
	require.NoError(t, err)
	root := tree.Root()
	// Mutating the returned slice must not touch the tree
	root[0] ^= 0xff
	assert.NotEqual(t, root, tree.Root())
}

func TestSensitivity(t *testing.T) {
	recs := testRecords(8)
	base, err := Build(context.Background(), recs)
	require.NoError(t, err)

	for i := range recs {
		changed := make([]Record, len(recs))
		copy(changed, recs)
		h := cloneDigest(changed[i].ContentHash)
		h[i%len(h)] ^= 0x01
		changed[i].ContentHash = h
		tree, err := Build(context.Background(), changed)
		require.NoError(t, err)
		assert.NotEqual(t, base.Root(), tree.Root(), "record %d", i)
	}
}

func TestHashWidths(t *testing.T) {
	recs := testRecords(5)
	b3, err := Build(context.Background(), recs, WithHash(Blake3_256))
	require.NoError(t, err)
	assert.Len(t, b3.Root(), 32)

	sha, err := Build(context.Background(), recs, WithHash(SHA3_384))
	require.NoError(t, err)
	assert.Len(t, sha.Root(), 48)

	assert.NotEqual(t, b3.Root(), sha.Root())
}

func TestLenientAndStrict(t *testing.T) {
	recs := append(testRecords(4), Record{Name: "", Version: "1.0.0", ContentHash: []byte{1}})

	tree, err := Build(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Size())
	require.Len(t, tree.Rejected(), 1)
	assert.Equal(t, "empty name", tree.Rejected()[0].Reason)

	_, err = Build(context.Background(), recs, WithStrict())
	var ire *InvalidRecordError
	assert.ErrorAs(t, err, &ire)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testRecords(100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerCountIrrelevant(t *testing.T) {
	recs := testRecords(50)
	single, err := Build(context.Background(), recs, WithWorkers(1))
	require.NoError(t, err)
	many, err := Build(context.Background(), recs, WithWorkers(16))
	require.NoError(t, err)
	assert.Equal(t, single.Root(), many.Root())
}

func TestProgressCallback(t *testing.T) {
	hashed := make(chan struct{}, 100)
	recs := testRecords(9)
	_, err := Build(context.Background(), recs, WithProgress(func() {
		hashed <- struct{}{}
	}))
	require.NoError(t, err)
	assert.Len(t, hashed, 9)
}

func TestLeafAccessor(t *testing.T) {
	recs := testRecords(3)
	tree, err := Build(context.Background(), recs)
	require.NoError(t, err)

	leaf, err := tree.Leaf(0)
	require.NoError(t, err)
	assert.Equal(t, Blake3_256.hashLeaf(recs[0]), leaf)

	_, err = tree.Leaf(3)
	assert.Error(t, err)
	_, err = tree.Leaf(-1)
	assert.Error(t, err)
}
