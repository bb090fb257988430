// Package scan walks the working tree and yields hashed file records.
package scan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/exp/mmap"

	"forester/internal/cas"
	"forester/internal/ignore"
)

// Files at or above this size are hashed through a memory map instead of
// buffered reads.
const mmapThreshold = 8 << 20

// FileRecord is one scanned working-tree file.
type FileRecord struct {
	// Path is relative to the scan root, forward-slashed.
	Path string
	Hash string
	Size int64
}

// Scanner walks a working tree, skipping ignored paths, and produces
// (path, hash, size) records. Symlinks are followed only when the target
// stays inside the tree; cycles are broken by visited-inode tracking.
type Scanner struct {
	root    string
	matcher *ignore.Matcher
}

// New returns a scanner rooted at dir. A nil matcher scans everything
// except the metadata directory.
func New(dir string, matcher *ignore.Matcher) (*Scanner, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	if matcher == nil {
		matcher = &ignore.Matcher{}
	}
	return &Scanner{root: abs, matcher: matcher}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree and returns its records sorted by path.
func (s *Scanner) Scan() ([]FileRecord, error) {
	seen := map[inode]bool{}
	if id, err := inodeOf(s.root); err == nil {
		seen[id] = true
	}
	var records []FileRecord
	if err := s.walk(s.root, "", seen, &records); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

type inode struct {
	dev uint64
	ino uint64
}

func (s *Scanner) walk(dir, rel string, seen map[inode]bool, out *[]FileRecord) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		childAbs := filepath.Join(dir, name)

		target := childAbs
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", childAbs, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(childAbs)
			if err != nil {
				// Dangling links are not part of the working set.
				continue
			}
			if !insideRoot(s.root, resolved) {
				continue
			}
			target = resolved
			info, err = os.Stat(resolved)
			if err != nil {
				continue
			}
		}

		if s.matcher.Match(childRel, info.IsDir()) {
			continue
		}

		if info.IsDir() {
			id, err := inodeOf(target)
			if err == nil {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			if err := s.walk(target, childRel, seen, out); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		hash, err := HashFile(target)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", childRel, err)
		}
		*out = append(*out, FileRecord{Path: childRel, Hash: hash, Size: info.Size()})
	}
	return nil
}

func insideRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func inodeOf(path string) (inode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return inode{}, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return inode{}, fmt.Errorf("no inode info for %s", path)
	}
	return inode{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}

// HashFile computes the content hash of a file by streaming. Large files
// go through a memory map to avoid double-buffering.
func HashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() >= mmapThreshold {
		return hashMapped(path, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := cas.NewHasher()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.SumHex(), nil
}

func hashMapped(path string, size int64) (string, error) {
	const chunkSize = 1 << 30

	r, err := mmap.Open(path)
	if err != nil {
		return "", fmt.Errorf("mapping %s: %w", path, err)
	}
	defer r.Close()

	h := cas.NewHasher()
	buf := make([]byte, 0)
	for off := int64(0); off < size; off += chunkSize {
		n := size - off
		if n > chunkSize {
			n = chunkSize
		}
		if int64(cap(buf)) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err := r.ReadAt(buf, off); err != nil {
			return "", fmt.Errorf("reading mapped chunk at %d: %w", off, err)
		}
		h.Write(buf)
	}
	return h.SumHex(), nil
}
