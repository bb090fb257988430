package object

import (
	"encoding/json"
	"fmt"

	"forester/internal/cas"
)

// CommitType distinguishes full-project commits from quick mesh-only saves.
type CommitType string

const (
	CommitProject  CommitType = "project"
	CommitMeshOnly CommitType = "mesh_only"
)

// Commit is the immutable record behind a branch tip. A stash is the same
// record shape with Parent empty and no branch ref pointing at it; the
// store treats both uniformly.
type Commit struct {
	Parent         string     `json:"parent,omitempty"`
	TreeHash       string     `json:"tree_hash"`
	Message        string     `json:"message"`
	Author         string     `json:"author"`
	Timestamp      int64      `json:"timestamp"`
	Branch         string     `json:"branch"`
	Type           CommitType `json:"commit_type"`
	ScreenshotHash string     `json:"screenshot_hash,omitempty"`
	MeshHashes     []string   `json:"mesh_hashes,omitempty"`
	TextureHashes  []string   `json:"texture_hashes,omitempty"`
}

// Canonical returns the commit's wire form: JSON with keys sorted ascending.
func (c *Commit) Canonical() ([]byte, error) {
	data, err := cas.CanonicalJSON(c)
	if err != nil {
		return nil, fmt.Errorf("serializing commit: %w", err)
	}
	return data, nil
}

// Hash returns the commit's content hash, taken over the canonical
// serialization including the parent link.
func (c *Commit) Hash() (string, error) {
	data, err := c.Canonical()
	if err != nil {
		return "", err
	}
	return cas.SumHex(data), nil
}

// ParseCommit decodes a stored commit or stash record.
func ParseCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing commit: %w", err)
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("parsing commit: missing tree_hash")
	}
	if c.Type == "" {
		c.Type = CommitProject
	}
	return &c, nil
}
