package object

import (
	"encoding/json"
	"fmt"

	"forester/internal/cas"
)

// TextureRef is a mesh's reference to a texture. In working-directory mesh
// descriptors the payload arrives inline (base64 Data) or as a sibling
// file path; after ingestion only Name and Hash remain.
type TextureRef struct {
	Name string `json:"name"`
	Hash string `json:"texture_hash,omitempty"`
	File string `json:"file,omitempty"`
	Data string `json:"data,omitempty"`
}

// Mesh is a structured 3D asset. Its identity is the hash of the canonical
// JSON serialization, so two descriptors with the same normalized content
// share one stored object.
type Mesh struct {
	Name      string                 `json:"name"`
	Vertices  [][]float64            `json:"vertices"`
	Faces     [][]int                `json:"faces"`
	UVs       [][]float64            `json:"uvs,omitempty"`
	Normals   [][]float64            `json:"normals,omitempty"`
	Transform []float64              `json:"transform,omitempty"`
	Materials map[string]interface{} `json:"materials,omitempty"`
	Textures  []TextureRef           `json:"textures,omitempty"`
}

// Canonical returns the mesh's wire form: JSON with sorted keys and
// round-trip-safe float formatting.
func (m *Mesh) Canonical() ([]byte, error) {
	data, err := cas.CanonicalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("serializing mesh: %w", err)
	}
	return data, nil
}

// Hash returns the mesh's content hash. Call only after normalization:
// inline texture payloads must already be replaced by texture hashes.
func (m *Mesh) Hash() (string, error) {
	data, err := m.Canonical()
	if err != nil {
		return "", err
	}
	return cas.SumHex(data), nil
}

// Normalized reports whether every texture reference carries a hash and no
// inline payload remains.
func (m *Mesh) Normalized() bool {
	for _, t := range m.Textures {
		if t.Hash == "" || t.Data != "" || t.File != "" {
			return false
		}
	}
	return true
}

// Validate checks structural invariants of a parsed mesh descriptor.
func (m *Mesh) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("mesh has no name")
	}
	for i, v := range m.Vertices {
		if len(v) != 3 {
			return fmt.Errorf("vertex %d: expected 3 coordinates, got %d", i, len(v))
		}
	}
	nVerts := len(m.Vertices)
	for i, f := range m.Faces {
		if len(f) < 3 {
			return fmt.Errorf("face %d: fewer than 3 vertex indices", i)
		}
		for _, idx := range f {
			if idx < 0 || idx >= nVerts {
				return fmt.Errorf("face %d: vertex index %d out of range", i, idx)
			}
		}
	}
	return nil
}

// ParseMesh decodes a mesh descriptor or stored mesh object.
func ParseMesh(data []byte) (*Mesh, error) {
	var m Mesh
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mesh: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("parsing mesh: %w", err)
	}
	return &m, nil
}
