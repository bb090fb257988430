// Package object implements the content-addressed object store and the
// typed codecs for the objects it holds: blobs, trees, commits, stashes,
// meshes and textures.
package object

import (
	"fmt"
	"os"
	"path/filepath"

	"forester/internal/cas"
)

// Kind identifies an object namespace within the store.
type Kind string

const (
	KindBlob    Kind = "blobs"
	KindTree    Kind = "trees"
	KindCommit  Kind = "commits"
	KindMesh    Kind = "meshes"
	KindTexture Kind = "textures"
)

// Kinds lists every object namespace, in sweep order.
var Kinds = []Kind{KindBlob, KindTree, KindCommit, KindMesh, KindTexture}

// Store is a content-addressed file store rooted at <dfm>/objects.
// Objects of kind K with hash abcd... live at objects/K/ab/cd...
type Store struct {
	objectsDir string
}

// NewStore creates a store under the given .DFM directory and ensures the
// per-kind directories exist.
func NewStore(dfmDir string) (*Store, error) {
	objectsDir := filepath.Join(dfmDir, "objects")
	for _, kind := range Kinds {
		if err := os.MkdirAll(filepath.Join(objectsDir, string(kind)), 0755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", kind, err)
		}
	}
	return &Store{objectsDir: objectsDir}, nil
}

// Path returns the on-disk path for an object hash.
func (s *Store) Path(kind Kind, hash string) string {
	return filepath.Join(s.objectsDir, string(kind), hash[:2], hash[2:])
}

// Put writes data under its content hash and returns the hash. A second
// write of identical content is a no-op.
func (s *Store) Put(kind Kind, data []byte) (string, error) {
	hash := cas.SumHex(data)
	if err := s.PutAs(kind, hash, data); err != nil {
		return "", err
	}
	return hash, nil
}

// PutAs writes data under a caller-computed hash. The write is atomic:
// data is staged to a sibling temp file and renamed into place, so two
// concurrent writers of the same hash cannot corrupt each other.
func (s *Store) PutAs(kind Kind, hash string, data []byte) error {
	if !cas.IsHash(hash) {
		return fmt.Errorf("invalid object hash %q", hash)
	}
	dst := s.Path(kind, hash)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating fan-out directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", dst, os.Getpid())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("staging object %s: %w", hash[:8], err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming object %s into place: %w", hash[:8], err)
	}
	return nil
}

// Get reads an object's bytes. It returns (nil, nil) if the object does
// not exist.
func (s *Store) Get(kind Kind, hash string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(kind, hash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s object %s: %w", kind, hash[:8], err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (s *Store) Exists(kind Kind, hash string) bool {
	_, err := os.Stat(s.Path(kind, hash))
	return err == nil
}

// Delete removes an object, pruning its fan-out directory if it became
// empty. It reports whether an object was actually removed.
func (s *Store) Delete(kind Kind, hash string) bool {
	path := s.Path(kind, hash)
	if err := os.Remove(path); err != nil {
		return false
	}
	// Best effort: the fan-out directory may still hold siblings.
	os.Remove(filepath.Dir(path))
	return true
}

// List returns every stored hash of a kind.
func (s *Store) List(kind Kind) ([]string, error) {
	kindDir := filepath.Join(s.objectsDir, string(kind))
	prefixes, err := os.ReadDir(kindDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s directory: %w", kind, err)
	}

	var hashes []string
	for _, prefix := range prefixes {
		if !prefix.IsDir() || len(prefix.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(kindDir, prefix.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading fan-out %s/%s: %w", kind, prefix.Name(), err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			hash := prefix.Name() + entry.Name()
			if cas.IsHash(hash) {
				hashes = append(hashes, hash)
			}
		}
	}
	return hashes, nil
}

// Verify re-hashes an object's bytes and reports whether they still match
// the identifier they are stored under.
func (s *Store) Verify(kind Kind, hash string) (bool, error) {
	data, err := s.Get(kind, hash)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	return cas.SumHex(data) == hash, nil
}
