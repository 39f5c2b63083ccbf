package object

import (
	"encoding/hex"
	"fmt"
)

// TreeEntry is one row of a tree object: a mode, a name, and the sha of the
// blob or subtree it names.
type TreeEntry struct {
	Mode uint32
	Name string
	Sha  string
}

// ParseTree parses the binary tree format: a sequence of
// "<mode-octal-ascii> <name>\0<20-byte-sha>" entries with no separator
// between entries.
func ParseTree(data []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	i := 0
	for i < len(data) {
		spaceIdx := indexByte(data[i:], ' ')
		if spaceIdx < 0 {
			return nil, fmt.Errorf("object: malformed tree entry: missing mode separator")
		}
		modeBytes := data[i : i+spaceIdx]
		mode, err := parseOctal(modeBytes)
		if err != nil {
			return nil, fmt.Errorf("object: malformed tree entry mode %q: %w", modeBytes, err)
		}
		i += spaceIdx + 1

		nulIdx := indexByte(data[i:], 0)
		if nulIdx < 0 {
			return nil, fmt.Errorf("object: malformed tree entry: missing name terminator")
		}
		name := string(data[i : i+nulIdx])
		i += nulIdx + 1

		if i+20 > len(data) {
			return nil, fmt.Errorf("object: malformed tree entry: truncated sha")
		}
		sha := hex.EncodeToString(data[i : i+20])
		i += 20

		entries = append(entries, TreeEntry{Mode: mode, Name: name, Sha: sha})
	}
	return entries, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func parseOctal(b []byte) (uint32, error) {
	var v uint32
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("invalid octal digit %q", c)
		}
		v = v*8 + uint32(c-'0')
	}
	return v, nil
}

// TypeFromMode classifies a tree entry's mode into a Type: 0o040000 is a
// tree, 0o160000 is a gitlink (treated as blob-opaque here), everything
// else is a blob.
func TypeFromMode(mode uint32) Type {
	switch mode {
	case 0o040000:
		return TypeTree
	default:
		return TypeBlob
	}
}
