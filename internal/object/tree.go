package object

import (
	"fmt"
	"sort"
	"strings"

	"forester/internal/cas"
)

// EntryKind is the kind of a tree entry.
type EntryKind string

const (
	EntryBlob EntryKind = "blob"
	EntryTree EntryKind = "tree"
	EntryMesh EntryKind = "mesh"
)

// TreeEntry is one child of a tree: a name mapped to a hashed object.
type TreeEntry struct {
	Name string
	Kind EntryKind
	Hash string
}

// Tree is an ordered mapping from path segment to child entry. Trees form
// a DAG: the same tree may be referenced by multiple commits and stashes.
type Tree struct {
	Entries []TreeEntry
}

// Sort orders entries by name in case-sensitive byte order, the canonical
// ordering for serialization.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].Name < t.Entries[j].Name
	})
}

// Canonical returns the wire form of the tree: UTF-8 text, one
// name\tkind\thash line per entry, name-sorted.
func (t *Tree) Canonical() []byte {
	t.Sort()
	var b strings.Builder
	for _, e := range t.Entries {
		b.WriteString(e.Name)
		b.WriteByte('\t')
		b.WriteString(string(e.Kind))
		b.WriteByte('\t')
		b.WriteString(e.Hash)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Hash returns the tree's content hash.
func (t *Tree) Hash() string {
	return cas.SumHex(t.Canonical())
}

// Lookup returns the entry with the given name, or nil.
func (t *Tree) Lookup(name string) *TreeEntry {
	for i := range t.Entries {
		if t.Entries[i].Name == name {
			return &t.Entries[i]
		}
	}
	return nil
}

// ParseTree decodes the canonical tree wire form.
func ParseTree(data []byte) (*Tree, error) {
	tree := &Tree{}
	for lineNo, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tree line %d: expected 3 fields, got %d", lineNo+1, len(parts))
		}
		kind := EntryKind(parts[1])
		switch kind {
		case EntryBlob, EntryTree, EntryMesh:
		default:
			return nil, fmt.Errorf("tree line %d: unknown entry kind %q", lineNo+1, parts[1])
		}
		if !cas.IsHash(parts[2]) {
			return nil, fmt.Errorf("tree line %d: invalid hash %q", lineNo+1, parts[2])
		}
		tree.Entries = append(tree.Entries, TreeEntry{Name: parts[0], Kind: kind, Hash: parts[2]})
	}
	return tree, nil
}
