package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Set by goreleaser or just
var (
	version string
	commit  string
	date    string
	builtBy string
)

func treeBuildFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "hash",
			Usage: "digest algorithm: blake3-256 or sha3-384",
			Value: "blake3-256",
		},
		&cli.StringFlag{
			Name:  "odd-node",
			Usage: "odd-node tie-break rule: promote or mirror",
			Value: "promote",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "fail on the first invalid record instead of dropping it",
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "depmerkle",
		Usage: "build merkle trees over dependency sets and prove inclusion",
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "get version information",
				Action: func(ctx *cli.Context) error {
					fmt.Printf("%s\n%s\n%s\n%s\n", version, commit, date, builtBy)
					return nil
				},
			},
			{
				Name:   "build",
				Usage:  "build a merkle tree from a normalized records file",
				Action: build,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "JSON records file from a lockfile extractor",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "output tree file",
						Required: true,
					},
				}, treeBuildFlags()...),
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 0 {
						return fmt.Errorf("command requires no arguments")
					}
					return nil
				},
			},
			{
				Name:   "root",
				Usage:  "get the root hash for a tree",
				Action: root,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "hex",
						Usage: "get hash as hex",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 1 {
						return fmt.Errorf("only one argument allowed: tree file path")
					}
					return nil
				},
			},
			{
				Name:   "prove",
				Usage:  "generate an inclusion proof for a dependency in a tree",
				Action: prove,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tree",
						Aliases:  []string{"t"},
						Usage:    "input tree file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "dependency name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "version",
						Aliases:  []string{"v"},
						Usage:    "dependency version",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "content-hash",
						Usage: "hex content hash (defaults to the one stored in the tree)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "output path for inclusion proof (otherwise a summary goes to stdout)",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 0 {
						return fmt.Errorf("command requires no arguments")
					}
					return nil
				},
			},
			{
				Name:   "verify",
				Usage:  "verify an inclusion proof against a root hash",
				Action: verify,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "proof",
						Aliases:  []string{"p"},
						Usage:    "inclusion proof file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "root",
						Usage: "hex root hash to compare to",
					},
					&cli.StringFlag{
						Name:    "tree",
						Aliases: []string{"t"},
						Usage:   "tree file to take the root hash from",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 0 {
						return fmt.Errorf("command requires no arguments")
					}
					return nil
				},
			},
			{
				Name:   "combine",
				Usage:  "combine per-ecosystem tree roots into one combined root",
				Action: combine,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "output combined file",
						Required: true,
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() < 1 {
						return fmt.Errorf("command requires tree file arguments")
					}
					return nil
				},
			},
			{
				Name:   "consistency",
				Usage:  "generate a consistency proof for one ecosystem in a combined root",
				Action: consistency,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "combined",
						Aliases:  []string{"c"},
						Usage:    "combined file from the combine command",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "index",
						Usage:    "ecosystem index within the combined root",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "output path for consistency proof (otherwise a summary goes to stdout)",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 0 {
						return fmt.Errorf("command requires no arguments")
					}
					return nil
				},
			},
			{
				Name:   "verify-consistency",
				Usage:  "verify a consistency proof against a combined root hash",
				Action: verifyConsistency,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "proof",
						Aliases:  []string{"p"},
						Usage:    "consistency proof file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "root",
						Usage: "hex combined root hash to compare to",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 0 {
						return fmt.Errorf("command requires no arguments")
					}
					return nil
				},
			},
			{
				Name:   "info",
				Usage:  "get information about a tree, or tree and inclusion proof",
				Action: info,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "proof",
						Aliases: []string{"p"},
						Usage:   "inclusion proof file",
					},
					&cli.BoolFlag{
						Name:  "dot",
						Usage: "write the tree as a DOT graph to stdout",
					},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Args().Len() != 1 {
						return fmt.Errorf("command requires one arg: the tree file")
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}
