package merkle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a tree is built from zero usable
	// records. There is no reserved empty root.
	ErrEmptyInput = errors.New("merkle: no records to build tree from")

	// ErrNotFound is returned when a proof is requested for a record whose
	// canonical leaf is not in the tree.
	ErrNotFound = errors.New("merkle: record not found in tree")
)

// InvalidRecordError reports a malformed or oversized record field. In
// lenient mode the offending record is dropped and reported; strict mode
// fails the build with it.
type InvalidRecordError struct {
	Record Record
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("merkle: invalid record %s: %s", e.Record.ID(), e.Reason)
}

// DuplicateError reports two records with the same (name, version) but
// different content hashes. This is never resolved silently.
type DuplicateError struct {
	Name    string
	Version string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("merkle: conflicting content hashes for %s@%s", e.Name, e.Version)
}

// MalformedProofError reports structural corruption of a proof object:
// wrong digest widths, impossible indices, inconsistent path lengths.
// A structurally sound proof that simply fails to match a root is not an
// error, it is a false verification result.
type MalformedProofError struct {
	Reason string
}

func (e *MalformedProofError) Error() string {
	return "merkle: malformed proof: " + e.Reason
}
