package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/vabhavx/deterministic/merkle"
)

func buildOpts(ctx *cli.Context) ([]merkle.Option, error) {
	h, err := merkle.ParseHash(ctx.String("hash"))
	if err != nil {
		return nil, err
	}
	m, err := merkle.ParseOddNodeMode(ctx.String("odd-node"))
	if err != nil {
		return nil, err
	}
	opts := []merkle.Option{merkle.WithHash(h), merkle.WithOddNodeMode(m)}
	if ctx.Bool("strict") {
		opts = append(opts, merkle.WithStrict())
	}
	return opts, nil
}

func build(ctx *cli.Context) error {
	records, err := readRecords(ctx.String("input"))
	if err != nil {
		return err
	}
	opts, err := buildOpts(ctx)
	if err != nil {
		return err
	}
	startTime := time.Now().UTC()

	fmt.Printf("Read %d records. Starting hashing...\n", len(records))
	bar := progressbar.Default(int64(len(records)))
	opts = append(opts, merkle.WithProgress(func() {
		_ = bar.Add(1)
	}))

	t, err := merkle.Build(ctx.Context, records, opts...)
	if err != nil {
		return err
	}
	_ = bar.Finish()
	for _, rej := range t.Rejected() {
		fmt.Printf("Rejected record %s: %s\n", rej.Record.ID(), rej.Reason)
	}
	fmt.Printf("Root hash: %x\n", t.Root())

	return writeTreeFile(newTreeFile(t, startTime), ctx.String("output"))
}

func root(ctx *cli.Context) error {
	tf, err := readTreeFile(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}
	if ctx.Bool("hex") {
		fmt.Printf("%x\n", tf.Root)
	} else {
		os.Stdout.Write(tf.Root)
	}
	return nil
}

func prove(ctx *cli.Context) error {
	tf, err := readTreeFile(ctx.String("tree"))
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}
	t, err := tf.rebuild(ctx.Context)
	if err != nil {
		return err
	}

	record := merkle.Record{Name: ctx.String("name"), Version: ctx.String("version")}
	if len(ctx.String("content-hash")) > 0 {
		record.ContentHash, err = hex.DecodeString(ctx.String("content-hash"))
		if err != nil {
			return fmt.Errorf("failed to decode given hexadecimal content hash: %w", err)
		}
	} else {
		// Fall back on the content hash stored in the tree itself
		for _, r := range tf.Records {
			if r.Name == record.Name && r.Version == record.Version {
				record.ContentHash = r.ContentHash
				break
			}
		}
	}

	proof, err := t.Prove(record)
	if err != nil {
		return fmt.Errorf("error generating proof: %w", err)
	}
	if len(ctx.String("output")) > 0 {
		return writeInclusionProof(proof, ctx.String("output"))
	}
	fmt.Printf("Leaf index: %d\n", proof.LeafIndex)
	fmt.Printf("Tree size: %d\n", proof.TreeSize)
	fmt.Printf("Leaf value: %x\n", proof.LeafValue)
	fmt.Printf("Proof length: %d hashes\n", len(proof.Path))
	return nil
}

func verify(ctx *cli.Context) error {
	proof, err := readInclusionProof(ctx.String("proof"))
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}

	var expected []byte
	if len(ctx.String("root")) > 0 {
		expected, err = hex.DecodeString(ctx.String("root"))
		if err != nil {
			return fmt.Errorf("failed to decode given hexadecimal hash: %w", err)
		}
	} else if len(ctx.String("tree")) > 0 {
		tf, err := readTreeFile(ctx.String("tree"))
		if err != nil {
			return fmt.Errorf("error reading or decoding file: %w", err)
		}
		expected = tf.Root
	} else {
		return fmt.Errorf("either --root or --tree is required")
	}

	ok, err := merkle.Verify(proof, expected)
	if err != nil {
		return fmt.Errorf("unexpected verification failure: %w", err)
	}
	if ok {
		fmt.Println("OK: proof matches root hash")
		return nil
	}
	fmt.Println("NOT OK: proof doesn't match root hash")
	return nil
}

func combine(ctx *cli.Context) error {
	startTime := time.Now().UTC()
	var roots [][]byte
	var hash merkle.Hash
	var mode merkle.OddNodeMode
	for i := 0; i < ctx.Args().Len(); i++ {
		tf, err := readTreeFile(ctx.Args().Get(i))
		if err != nil {
			return fmt.Errorf("error reading or decoding %s: %w", ctx.Args().Get(i), err)
		}
		if i == 0 {
			hash = tf.Hash
			mode = tf.Mode
		} else if tf.Hash != hash || tf.Mode != mode {
			return fmt.Errorf("%s was built with %s/%s, want %s/%s: all trees must share build parameters",
				ctx.Args().Get(i), tf.Hash, tf.Mode, hash, mode)
		}
		roots = append(roots, tf.Root)
	}

	ct, err := merkle.Combine(ctx.Context, roots,
		merkle.WithHash(hash), merkle.WithOddNodeMode(mode))
	if err != nil {
		return err
	}
	fmt.Printf("Combined root hash: %x\n", ct.Root())

	return writeCombinedFile(&combinedFile{
		Roots:        ct.Roots(),
		CombinedRoot: ct.Root(),
		Hash:         hash,
		Mode:         mode,
		CreatedAt:    startTime,
	}, ctx.String("output"))
}

func consistency(ctx *cli.Context) error {
	cf, err := readCombinedFile(ctx.String("combined"))
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}
	ct, err := cf.rebuildCombined(ctx.Context)
	if err != nil {
		return err
	}
	proof, err := ct.ConsistencyProof(ctx.Int("index"))
	if err != nil {
		return fmt.Errorf("error generating consistency proof: %w", err)
	}
	if len(ctx.String("output")) > 0 {
		return writeConsistencyProof(proof, ctx.String("output"))
	}
	fmt.Printf("Ecosystem index: %d\n", proof.Index)
	fmt.Printf("Ecosystem root: %x\n", proof.Roots[proof.Index])
	fmt.Printf("Combined root: %x\n", proof.CombinedRoot)
	fmt.Printf("Proof length: %d hashes\n", len(proof.Inclusion.Path))
	return nil
}

func verifyConsistency(ctx *cli.Context) error {
	proof, err := readConsistencyProof(ctx.String("proof"))
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}

	expected := proof.CombinedRoot
	if len(ctx.String("root")) > 0 {
		expected, err = hex.DecodeString(ctx.String("root"))
		if err != nil {
			return fmt.Errorf("failed to decode given hexadecimal hash: %w", err)
		}
	}
	ok, err := merkle.VerifyConsistency(proof, expected)
	if err != nil {
		return fmt.Errorf("unexpected verification failure: %w", err)
	}
	if !ok {
		fmt.Println("NOT OK: consistency proof doesn't match combined root")
		return nil
	}
	if len(ctx.String("root")) > 0 {
		fmt.Println("OK: consistency proof matches given combined root")
	} else {
		fmt.Printf("OK: consistency proof is internally consistent\nCombined root: %x\n", proof.CombinedRoot)
	}
	return nil
}

func info(ctx *cli.Context) error {
	tf, err := readTreeFile(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("error reading or decoding file: %w", err)
	}

	if ctx.Bool("dot") {
		t, err := tf.rebuild(ctx.Context)
		if err != nil {
			return err
		}
		return t.DotGraph(os.Stdout)
	}

	if len(ctx.String("proof")) > 0 {
		// Info for inclusion proof
		ip, err := readInclusionProof(ctx.String("proof"))
		if err != nil {
			return fmt.Errorf("error reading or decoding file: %w", err)
		}
		if ip.LeafIndex >= uint64(len(tf.Records)) {
			return fmt.Errorf("proof leaf index %d is outside this tree", ip.LeafIndex)
		}
		r := tf.Records[ip.LeafIndex]
		fmt.Printf("Leaf index: %d\n", ip.LeafIndex)
		fmt.Printf("Record: %s\n", r.ID())
		fmt.Printf("Hash: %s\n", ip.Hash)
		fmt.Printf("Odd-node rule: %s\n", ip.Mode)
		fmt.Printf("Proof length: %d hashes\n", len(ip.Path))
		return nil
	}

	// Info for tree
	fmt.Printf("Root hash: %x\n", tf.Root)
	fmt.Printf("Num. of records: %d\n", len(tf.Records))
	fmt.Printf("Hash: %s\n", tf.Hash)
	fmt.Printf("Odd-node rule: %s\n", tf.Mode)
	fmt.Printf("Creation time: %v\n", tf.CreatedAt)
	return nil
}
