package repo

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"forester/internal/object"
	"forester/internal/scan"
)

// Snapshot is a hashed view of the working set: the root tree plus the
// flat inputs it was built from.
type Snapshot struct {
	RootTree string
	// Files are the tracked blob records, mesh directories excluded.
	Files []scan.FileRecord
	// Trees maps every tree hash in the snapshot to its object.
	Trees map[string]*object.Tree
	// Meshes and Textures come from ingesting mesh descriptors.
	Meshes   []IngestedMesh
	Textures []IngestedTexture
}

// snapshotWorktree scans the working set, ingests mesh descriptors and
// builds the tree objects bottom-up. With persist=true every new blob,
// tree, mesh and texture object is written to the store; with false only
// hashes are computed, leaving the store untouched.
func (r *Repository) snapshotWorktree(persist bool) (*Snapshot, error) {
	matcher, err := r.ignoreMatcher()
	if err != nil {
		return nil, err
	}
	scanner, err := scan.New(r.Root, matcher)
	if err != nil {
		return nil, Wrap(KindIOError, err, "opening working tree")
	}
	records, err := scanner.Scan()
	if err != nil {
		return nil, Wrap(KindIOError, err, "scanning working tree")
	}

	// A directory holding mesh.json is a mesh, not a batch of blobs.
	meshDirs := map[string]bool{}
	for _, rec := range records {
		if filepath.Base(rec.Path) == meshDescriptorName {
			meshDirs[filepath.ToSlash(filepath.Dir(rec.Path))] = true
		}
	}

	snap := &Snapshot{Trees: map[string]*object.Tree{}}
	for _, rec := range records {
		if insideMeshDir(meshDirs, rec.Path) {
			continue
		}
		snap.Files = append(snap.Files, rec)
	}

	dirs := make([]string, 0, len(meshDirs))
	for d := range meshDirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		mesh, textures, err := r.ingestMesh(dir, persist)
		if err != nil {
			return nil, err
		}
		snap.Meshes = append(snap.Meshes, *mesh)
		snap.Textures = append(snap.Textures, textures...)
	}

	root, err := r.buildTrees(snap, persist)
	if err != nil {
		return nil, err
	}
	snap.RootTree = root
	return snap, nil
}

func insideMeshDir(meshDirs map[string]bool, path string) bool {
	dir := filepath.ToSlash(filepath.Dir(path))
	for dir != "." {
		if meshDirs[dir] {
			return true
		}
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
	return false
}

// buildTrees groups the snapshot's leaves by directory and stores Tree
// objects from the leaves upward, returning the root tree hash.
func (r *Repository) buildTrees(snap *Snapshot, persist bool) (string, error) {
	type leaf struct {
		kind object.EntryKind
		hash string
	}
	// leaves maps slash paths to their entry; directories are implied.
	leaves := map[string]leaf{}
	for _, f := range snap.Files {
		if persist {
			data, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(f.Path)))
			if err != nil {
				return "", Wrap(KindIOError, err, "reading %s", f.Path)
			}
			if err := r.Store.PutAs(object.KindBlob, f.Hash, data); err != nil {
				return "", Wrap(KindIOError, err, "storing blob %s", f.Path)
			}
		}
		leaves[f.Path] = leaf{kind: object.EntryBlob, hash: f.Hash}
	}
	for _, m := range snap.Meshes {
		leaves[m.Dir] = leaf{kind: object.EntryMesh, hash: m.Hash}
	}

	// children[dir] collects the entries of each tree level.
	children := map[string][]object.TreeEntry{}
	dirSet := map[string]bool{"": true}
	for path, l := range leaves {
		dir, name := splitTreePath(path)
		children[dir] = append(children[dir], object.TreeEntry{Name: name, Kind: l.kind, Hash: l.hash})
		for d := dir; d != ""; d, _ = splitTreePath(d) {
			dirSet[d] = true
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	// Deepest first, so child trees are hashed before their parents.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})

	var rootHash string
	for _, dir := range dirs {
		tree := &object.Tree{Entries: children[dir]}
		tree.Sort()
		hash := tree.Hash()
		snap.Trees[hash] = tree
		if persist {
			if err := r.Store.PutAs(object.KindTree, hash, tree.Canonical()); err != nil {
				return "", Wrap(KindIOError, err, "storing tree %s", dir)
			}
		}
		if dir == "" {
			rootHash = hash
		} else {
			parent, name := splitTreePath(dir)
			children[parent] = append(children[parent], object.TreeEntry{
				Name: name, Kind: object.EntryTree, Hash: hash,
			})
		}
	}
	return rootHash, nil
}

// splitTreePath splits a slash path into its parent dir ("" for root
// level) and base name.
func splitTreePath(path string) (dir, name string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Change classifications reported by Status.
const (
	StatusAdded    = "added"
	StatusModified = "modified"
	StatusDeleted  = "deleted"
)

// WorktreeStatus summarizes the working set against the HEAD commit.
type WorktreeStatus struct {
	Branch   string
	Detached string
	Clean    bool
	Added    []string
	Modified []string
	Deleted  []string
}

// Status compares the working set with the HEAD commit's snapshot.
func (r *Repository) Status() (*WorktreeStatus, error) {
	branch, detached, err := r.Head()
	if err != nil {
		return nil, err
	}
	st := &WorktreeStatus{Branch: branch, Detached: detached}

	snap, err := r.snapshotWorktree(false)
	if err != nil {
		return nil, err
	}

	headCommit, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}

	baseline := map[string]string{}
	if headCommit != "" {
		files, err := r.DB.CommitFiles(headCommit)
		if err != nil {
			return nil, Wrap(KindIOError, err, "reading commit files")
		}
		for _, f := range files {
			baseline[f.Path] = f.BlobHash
		}
	}

	current := map[string]string{}
	for _, f := range snap.Files {
		current[f.Path] = f.Hash
	}

	for path, hash := range current {
		base, ok := baseline[path]
		switch {
		case !ok:
			st.Added = append(st.Added, path)
		case base != hash:
			st.Modified = append(st.Modified, path)
		}
	}
	for path := range baseline {
		if _, ok := current[path]; !ok {
			st.Deleted = append(st.Deleted, path)
		}
	}
	sort.Strings(st.Added)
	sort.Strings(st.Modified)
	sort.Strings(st.Deleted)

	dirty, err := r.isDirty(snap, headCommit)
	if err != nil {
		return nil, err
	}
	st.Clean = !dirty
	return st, nil
}

// isDirty reports whether the snapshot's root tree differs from the HEAD
// commit's tree. An empty repository is dirty as soon as it has content.
func (r *Repository) isDirty(snap *Snapshot, headCommit string) (bool, error) {
	if headCommit == "" {
		return len(snap.Files) > 0 || len(snap.Meshes) > 0, nil
	}
	c, err := r.loadCommit(headCommit)
	if err != nil {
		return false, err
	}
	return c.TreeHash != snap.RootTree, nil
}

// HasUncommittedChanges is the guard used by checkout and stash apply.
func (r *Repository) HasUncommittedChanges() (bool, error) {
	snap, err := r.snapshotWorktree(false)
	if err != nil {
		return false, err
	}
	head, err := r.HeadCommit()
	if err != nil {
		return false, err
	}
	return r.isDirty(snap, head)
}

// loadCommit reads and decodes a commit object.
func (r *Repository) loadCommit(hash string) (*object.Commit, error) {
	data, err := r.Store.Get(object.KindCommit, hash)
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading commit %s", hash[:8])
	}
	if data == nil {
		return nil, Errf(KindUnknownRef, "commit object %s missing", hash[:8])
	}
	c, err := object.ParseCommit(data)
	if err != nil {
		return nil, Wrap(KindCorruptObject, err, "commit %s", hash[:8])
	}
	return c, nil
}

// loadTree reads and decodes a tree object.
func (r *Repository) loadTree(hash string) (*object.Tree, error) {
	data, err := r.Store.Get(object.KindTree, hash)
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading tree %s", hash[:8])
	}
	if data == nil {
		return nil, Errf(KindCorruptObject, "tree object %s missing", hash[:8])
	}
	t, err := object.ParseTree(data)
	if err != nil {
		return nil, Wrap(KindCorruptObject, err, "tree %s", hash[:8])
	}
	return t, nil
}
