package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/vabhavx/deterministic/merkle"
)

const (
	// Version written to disk. 0 version is reserved as an error.
	fileVersion = 0x1
)

var (
	fileMagicNumber = []byte("depmerkle")
	fileHeader      = append(fileMagicNumber, fileVersion)

	// Canonical encoding so identical objects serialize to identical
	// bytes, since proofs are stored and compared by later processes.
	encMode cbor.EncMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func writeFile(v any, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err = f.Write(fileHeader); err != nil {
		return err
	}
	enc := encMode.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return nil
}

func readFile(v any, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	// Confirm file type and version
	header := make([]byte, len(fileHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return err
	}
	if !bytes.Equal(header, fileHeader) {
		return fmt.Errorf("invalid file header")
	}
	dec := cbor.NewDecoder(f)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func writeTreeFile(tf *treeFile, path string) error {
	return writeFile(tf, path)
}

func readTreeFile(path string) (*treeFile, error) {
	var tf treeFile
	if err := readFile(&tf, path); err != nil {
		return nil, err
	}
	return &tf, nil
}

func writeInclusionProof(proof *merkle.InclusionProof, path string) error {
	return writeFile(proof, path)
}

func readInclusionProof(path string) (*merkle.InclusionProof, error) {
	var proof merkle.InclusionProof
	if err := readFile(&proof, path); err != nil {
		return nil, err
	}
	return &proof, nil
}

func writeCombinedFile(cf *combinedFile, path string) error {
	return writeFile(cf, path)
}

func readCombinedFile(path string) (*combinedFile, error) {
	var cf combinedFile
	if err := readFile(&cf, path); err != nil {
		return nil, err
	}
	return &cf, nil
}

func writeConsistencyProof(proof *merkle.ConsistencyProof, path string) error {
	return writeFile(proof, path)
}

func readConsistencyProof(path string) (*merkle.ConsistencyProof, error) {
	var proof merkle.ConsistencyProof
	if err := readFile(&proof, path); err != nil {
		return nil, err
	}
	return &proof, nil
}
