package merkle

import (
	"bytes"
	"fmt"
	"sort"
)

// MaxFieldBytes caps each record field. Anything longer is rejected as an
// InvalidRecordError rather than hashed.
const MaxFieldBytes = 4096

// Record is one normalized dependency as handed over by an external
// lockfile extractor: a name, a resolved version, and the content hash the
// ecosystem's own tooling computed for the artifact. Records are value
// types and never mutated after hand-off.
type Record struct {
	Name        string `json:"name" cbor:"1,keyasint"`
	Version     string `json:"version" cbor:"2,keyasint"`
	ContentHash []byte `json:"content_hash" cbor:"3,keyasint"`
}

// ID renders the record identity for messages and logs.
func (r Record) ID() string {
	return r.Name + "@" + r.Version
}

func (r Record) validate() error {
	switch {
	case r.Name == "":
		return &InvalidRecordError{Record: r, Reason: "empty name"}
	case r.Version == "":
		return &InvalidRecordError{Record: r, Reason: "empty version"}
	case len(r.ContentHash) == 0:
		return &InvalidRecordError{Record: r, Reason: "empty content hash"}
	case len(r.Name) > MaxFieldBytes:
		return &InvalidRecordError{Record: r, Reason: fmt.Sprintf("name exceeds %d bytes", MaxFieldBytes)}
	case len(r.Version) > MaxFieldBytes:
		return &InvalidRecordError{Record: r, Reason: fmt.Sprintf("version exceeds %d bytes", MaxFieldBytes)}
	case len(r.ContentHash) > MaxFieldBytes:
		return &InvalidRecordError{Record: r, Reason: fmt.Sprintf("content hash exceeds %d bytes", MaxFieldBytes)}
	}
	return nil
}

// less orders records by (name, version), byte-wise ascending. This order
// is the canonical leaf order: roots and proofs are only meaningful
// relative to it, never to insertion order.
func (r Record) less(o Record) bool {
	if r.Name != o.Name {
		return r.Name < o.Name
	}
	return r.Version < o.Version
}

func (r Record) sameIdentity(o Record) bool {
	return r.Name == o.Name && r.Version == o.Version
}

// canonicalize sorts records into canonical order and collapses exact
// duplicates to a single entry. Two records sharing an identity but
// disagreeing on content hash are a real supply-chain inconsistency and
// fail the whole batch with DuplicateError.
func canonicalize(records []Record) ([]Record, error) {
	out := make([]Record, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })

	dedup := out[:0]
	for _, r := range out {
		if len(dedup) > 0 && dedup[len(dedup)-1].sameIdentity(r) {
			if !bytes.Equal(dedup[len(dedup)-1].ContentHash, r.ContentHash) {
				return nil, &DuplicateError{Name: r.Name, Version: r.Version}
			}
			continue
		}
		dedup = append(dedup, r)
	}
	return dedup, nil
}
