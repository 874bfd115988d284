package merkle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vabhavx/deterministic/logger"
)

// OddNodeMode is the tie-break rule for a level with an odd node count.
// The rule changes the root digest, so it is part of the wire format:
// serialized trees and proofs record it, and it never varies inside one
// tree.
type OddNodeMode uint8

const (
	// OddNodePromote carries the unpaired last digest up to the next level
	// unchanged. Promoted nodes contribute no proof path entry.
	OddNodePromote OddNodeMode = iota + 1
	// OddNodeMirror pairs the unpaired last digest with a copy of itself.
	OddNodeMirror
)

func (m OddNodeMode) String() string {
	switch m {
	case OddNodePromote:
		return "promote"
	case OddNodeMirror:
		return "mirror"
	}
	return fmt.Sprintf("unknown(%d)", uint8(m))
}

// ParseOddNodeMode maps a CLI/config name to an OddNodeMode.
func ParseOddNodeMode(s string) (OddNodeMode, error) {
	switch s {
	case "promote":
		return OddNodePromote, nil
	case "mirror":
		return OddNodeMirror, nil
	}
	return 0, fmt.Errorf("unknown odd-node mode %q", s)
}

func (m OddNodeMode) valid() bool {
	return m == OddNodePromote || m == OddNodeMirror
}

type config struct {
	hash     Hash
	mode     OddNodeMode
	strict   bool
	workers  int
	progress func()
}

// Option configures Build and Combine.
type Option func(*config)

// WithHash selects the digest algorithm. Default is Blake3_256.
func WithHash(h Hash) Option {
	return func(c *config) { c.hash = h }
}

// WithOddNodeMode selects the odd-node tie-break rule. Default is
// OddNodePromote.
func WithOddNodeMode(m OddNodeMode) Option {
	return func(c *config) { c.mode = m }
}

// WithStrict makes the first invalid record fail the build instead of
// being dropped and reported.
func WithStrict() Option {
	return func(c *config) { c.strict = true }
}

// WithWorkers caps the number of goroutines hashing leaves.
// Default is the number of CPUs.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithProgress registers a callback invoked once per hashed leaf.
// The callback may be invoked from multiple goroutines.
func WithProgress(fn func()) Option {
	return func(c *config) { c.progress = fn }
}

func newConfig(opts []Option) (config, error) {
	cfg := config{
		hash:    Blake3_256,
		mode:    OddNodePromote,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.hash.valid() {
		return cfg, fmt.Errorf("merkle: invalid hash algorithm %s", cfg.hash)
	}
	if !cfg.mode.valid() {
		return cfg, fmt.Errorf("merkle: invalid odd-node mode %s", cfg.mode)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg, nil
}

// Tree is an immutable Merkle tree over a canonical sequence of
// dependency records. Membership changes mean building a new Tree; once
// built it is read-only and safe to share across goroutines without
// locking.
//
// Every level of interior digests is retained (about 2n digests for n
// leaves) so proof generation is a plain O(log n) walk with no
// rehashing. At dependency-set scale that memory is cheap, and it keeps
// Prove allocation-free apart from the proof itself.
type Tree struct {
	hash     Hash
	mode     OddNodeMode
	records  []Record   // canonical order, aligned with levels[0]
	levels   [][][]byte // levels[0] = leaves, last level = [root]
	root     []byte
	rejected []InvalidRecordError
}

// Build constructs a tree from records. Input order is irrelevant: the
// records are sorted into canonical (name, version) order, exact
// duplicates collapse to one leaf, and conflicting duplicates fail with
// DuplicateError. An empty usable input fails with ErrEmptyInput.
//
// Building is all-or-nothing: a cancelled context yields an error and no
// partially built tree.
func Build(ctx context.Context, records []Record, opts ...Option) (*Tree, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	log := logger.Logger()
	start := time.Now()

	valid := make([]Record, 0, len(records))
	var rejected []InvalidRecordError
	for _, r := range records {
		if err := r.validate(); err != nil {
			if cfg.strict {
				return nil, err
			}
			var ire *InvalidRecordError
			errors.As(err, &ire)
			rejected = append(rejected, *ire)
			log.Warn().Str("record", r.ID()).Str("reason", ire.Reason).Msg("rejecting invalid record")
			continue
		}
		valid = append(valid, r)
	}

	canon, err := canonicalize(valid)
	if err != nil {
		return nil, err
	}
	if len(canon) == 0 {
		return nil, ErrEmptyInput
	}

	leaves, err := hashLeaves(ctx, cfg, canon)
	if err != nil {
		return nil, err
	}
	levels, err := buildLevels(ctx, cfg.hash, cfg.mode, leaves)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		hash:     cfg.hash,
		mode:     cfg.mode,
		records:  canon,
		levels:   levels,
		root:     levels[len(levels)-1][0],
		rejected: rejected,
	}
	log.Debug().
		Int("leaves", len(canon)).
		Int("rejected", len(rejected)).
		Stringer("hash", cfg.hash).
		Stringer("oddNode", cfg.mode).
		Dur("took", time.Since(start)).
		Msg("built dependency tree")
	return t, nil
}

// hashLeaves fans leaf hashing out over a bounded worker group. Results
// land in an index-addressed slice, so concurrency never disturbs the
// canonical order.
func hashLeaves(ctx context.Context, cfg config, records []Record) ([][]byte, error) {
	out := make([][]byte, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = cfg.hash.hashLeaf(records[i])
			if cfg.progress != nil {
				cfg.progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildLevels pairs adjacent digests left to right, level by level, until
// a single root remains. A level is a barrier: the next one starts only
// from fully computed digests, so the result is identical to the
// single-threaded build.
func buildLevels(ctx context.Context, h Hash, mode OddNodeMode, leaves [][]byte) ([][][]byte, error) {
	levels := [][][]byte{leaves}
	cur := leaves
	for len(cur) > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make([][]byte, 0, (len(cur)+1)/2)
		for i := 0; i+1 < len(cur); i += 2 {
			next = append(next, h.hashInterior(cur[i], cur[i+1]))
		}
		if len(cur)%2 == 1 {
			last := cur[len(cur)-1]
			if mode == OddNodeMirror {
				next = append(next, h.hashInterior(last, last))
			} else {
				next = append(next, last)
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return levels, nil
}

// Root returns the root digest. It is computed exactly once during Build;
// this accessor only copies it out.
func (t *Tree) Root() []byte {
	return cloneDigest(t.root)
}

// Size returns the number of leaves.
func (t *Tree) Size() int {
	return len(t.records)
}

// HashAlgorithm returns the digest algorithm the tree was built with.
func (t *Tree) HashAlgorithm() Hash {
	return t.hash
}

// OddNode returns the odd-node tie-break rule the tree was built with.
func (t *Tree) OddNode() OddNodeMode {
	return t.mode
}

// Records returns the records in canonical leaf order.
func (t *Tree) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Rejected returns the records dropped during a lenient build, in input
// order. Empty after a strict build.
func (t *Tree) Rejected() []InvalidRecordError {
	out := make([]InvalidRecordError, len(t.rejected))
	copy(out, t.rejected)
	return out
}

// Leaf returns the digest of leaf i in canonical order.
func (t *Tree) Leaf(i int) ([]byte, error) {
	if i < 0 || i >= len(t.records) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", i, len(t.records))
	}
	return cloneDigest(t.levels[0][i]), nil
}

// index locates a record's canonical leaf index. The content hash must
// match as well: a record whose identity is present but whose hash
// disagrees is not in this tree.
func (t *Tree) index(r Record) (int, bool) {
	i := sort.Search(len(t.records), func(i int) bool {
		return !t.records[i].less(r)
	})
	if i >= len(t.records) || !t.records[i].sameIdentity(r) {
		return 0, false
	}
	if !bytes.Equal(t.records[i].ContentHash, r.ContentHash) {
		return 0, false
	}
	return i, true
}
