package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vabhavx/deterministic/merkle"
)

// recordJSON is the normalized hand-off format produced by external
// lockfile extractors (npm, pip, cargo, ...): one object per resolved
// dependency with its content hash hex-encoded. No package-manager
// formats are parsed here.
type recordJSON struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash"`
}

// readRecords decodes a JSON array of normalized dependency records.
func readRecords(path string) ([]merkle.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing records file: %w", err)
	}
	records := make([]merkle.Record, len(raw))
	for i, r := range raw {
		hash, err := hex.DecodeString(r.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s@%s): bad content hash hex: %w", i, r.Name, r.Version, err)
		}
		records[i] = merkle.Record{
			Name:        r.Name,
			Version:     r.Version,
			ContentHash: hash,
		}
	}
	return records, nil
}
