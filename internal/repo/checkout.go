package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"forester/internal/hook"
	"forester/internal/object"
)

// CheckoutOptions tunes a checkout.
type CheckoutOptions struct {
	// Force skips the uncommitted-changes guard.
	Force bool
	// NoVerify skips the pre-checkout hook.
	NoVerify bool
	// FilePatterns restricts materialization to matching paths.
	FilePatterns []string
	// MeshNames restricts mesh materialization to matching object names.
	MeshNames []string
}

// Checkout reconstructs the working directory from target, which
// resolves as a branch name first and a commit hash prefix second.
func (r *Repository) Checkout(ctx context.Context, target string, opts CheckoutOptions) error {
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	branch, commit, err := r.ResolveTarget(target)
	if err != nil {
		return err
	}
	if branch != "" && commit == "" {
		// Unborn branch: switching HEAD is all there is to do.
		if err := r.writeHeadBranch(branch); err != nil {
			return err
		}
		if err := r.DB.SetMeta("head_branch", branch); err != nil {
			return Wrap(KindIOError, err, "recording head")
		}
		return r.DB.Checkpoint()
	}

	if !opts.Force {
		dirty, err := r.HasUncommittedChanges()
		if err != nil {
			return err
		}
		if dirty {
			return Errf(KindUncommittedChanges, "working tree has uncommitted changes; use force to discard them")
		}
	}

	hookEnv := map[string]string{"DFM_TARGET": target}
	if !opts.NoVerify {
		if err := r.Hooks.RunBlocking(ctx, hook.PreCheckout, hookEnv); err != nil {
			if errors.Is(err, hook.ErrTimeout) {
				return Wrap(KindTimeout, err, "pre-checkout hook")
			}
			return Wrap(KindHookRejected, err, "pre-checkout hook")
		}
	}

	c, err := r.loadCommit(commit)
	if err != nil {
		return err
	}

	selective := len(opts.FilePatterns) > 0 || len(opts.MeshNames) > 0
	materialized := map[string]bool{}
	if err := r.materializeTree(c.TreeHash, "", opts, materialized); err != nil {
		return err
	}
	if !selective {
		if err := r.pruneUntracked(materialized); err != nil {
			return err
		}
	}

	if branch != "" {
		if err := r.writeHeadBranch(branch); err != nil {
			return err
		}
		if err := r.DB.SetMeta("head_branch", branch); err != nil {
			return Wrap(KindIOError, err, "recording head")
		}
	} else {
		if err := r.writeHeadDetached(commit); err != nil {
			return err
		}
		if err := r.DB.SetMeta("head_branch", ""); err != nil {
			return Wrap(KindIOError, err, "recording head")
		}
	}
	if err := r.DB.Checkpoint(); err != nil {
		return Wrap(KindIOError, err, "checkpointing index")
	}

	r.Hooks.RunAdvisory(ctx, hook.PostCheckout, hookEnv)
	return nil
}

// materializeTree writes a tree's entries into the working directory,
// recursing into subtrees. Matched entries overwrite differing files and
// create missing ones.
func (r *Repository) materializeTree(treeHash, prefix string, opts CheckoutOptions, materialized map[string]bool) error {
	tree, err := r.loadTree(treeHash)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		rel := e.Name
		if prefix != "" {
			rel = prefix + "/" + e.Name
		}
		switch e.Kind {
		case object.EntryTree:
			if err := r.materializeTree(e.Hash, rel, opts, materialized); err != nil {
				return err
			}
		case object.EntryBlob:
			if !matchesPatterns(rel, opts.FilePatterns, len(opts.MeshNames) > 0) {
				continue
			}
			if err := r.materializeBlob(rel, e.Hash); err != nil {
				return err
			}
			materialized[rel] = true
		case object.EntryMesh:
			written, err := r.materializeMesh(rel, e.Hash, opts)
			if err != nil {
				return err
			}
			for _, p := range written {
				materialized[p] = true
			}
		}
	}
	return nil
}

// matchesPatterns applies the file_patterns filter. With no patterns at
// all the entry always matches; with only mesh_names set, plain files
// are skipped.
func matchesPatterns(rel string, patterns []string, meshOnly bool) bool {
	if len(patterns) == 0 {
		return !meshOnly
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func matchesMeshNames(name string, names []string, patternsSet bool) bool {
	if len(names) == 0 {
		return !patternsSet
	}
	for _, n := range names {
		if n == name {
			return true
		}
		if ok, _ := doublestar.Match(n, name); ok {
			return true
		}
	}
	return false
}

func (r *Repository) materializeBlob(rel, hash string) error {
	data, err := r.Store.Get(object.KindBlob, hash)
	if err != nil {
		return Wrap(KindIOError, err, "reading blob for %s", rel)
	}
	if data == nil {
		return Errf(KindCorruptObject, "blob %s for %s missing", hash[:8], rel)
	}

	abs := filepath.Join(r.Root, filepath.FromSlash(rel))
	if existing, err := os.ReadFile(abs); err == nil {
		if string(existing) == string(data) {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return Wrap(KindIOError, err, "creating directory for %s", rel)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return Wrap(KindIOError, err, "writing %s", rel)
	}
	return nil
}

// materializeMesh writes a mesh entry back as <dir>/mesh.json in its
// normalized form, plus any referenced texture whose name carries a file
// extension. It returns the working-relative paths written.
func (r *Repository) materializeMesh(rel, hash string, opts CheckoutOptions) ([]string, error) {
	data, err := r.Store.Get(object.KindMesh, hash)
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading mesh %s", rel)
	}
	if data == nil {
		return nil, Errf(KindCorruptObject, "mesh object %s missing", hash[:8])
	}
	mesh, err := object.ParseMesh(data)
	if err != nil {
		return nil, Wrap(KindCorruptObject, err, "mesh %s", rel)
	}
	if !matchesMeshNames(mesh.Name, opts.MeshNames, len(opts.FilePatterns) > 0) {
		return nil, nil
	}

	dir := filepath.Join(r.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Wrap(KindIOError, err, "creating mesh directory %s", rel)
	}
	descPath := filepath.Join(dir, meshDescriptorName)
	if err := os.WriteFile(descPath, data, 0644); err != nil {
		return nil, Wrap(KindIOError, err, "writing mesh descriptor %s", rel)
	}
	written := []string{rel + "/" + meshDescriptorName}

	for _, ref := range mesh.Textures {
		if ref.Hash == "" || !strings.Contains(ref.Name, ".") {
			continue
		}
		payload, err := r.Store.Get(object.KindTexture, ref.Hash)
		if err != nil {
			return nil, Wrap(KindIOError, err, "reading texture %s", ref.Name)
		}
		if payload == nil {
			return nil, Errf(KindCorruptObject, "texture object %s missing", ref.Hash[:8])
		}
		texPath := filepath.Join(dir, filepath.FromSlash(ref.Name))
		if err := os.WriteFile(texPath, payload, 0644); err != nil {
			return nil, Wrap(KindIOError, err, "writing texture %s", ref.Name)
		}
		written = append(written, rel+"/"+ref.Name)
	}
	return written, nil
}

// pruneUntracked deletes working files absent from the materialized set.
// Only full checkouts prune; selective ones leave foreign files alone.
func (r *Repository) pruneUntracked(materialized map[string]bool) error {
	snap, err := r.snapshotWorktree(false)
	if err != nil {
		return err
	}
	var doomed []string
	for _, f := range snap.Files {
		if !materialized[f.Path] {
			doomed = append(doomed, f.Path)
		}
	}
	for _, m := range snap.Meshes {
		if !materialized[m.Dir+"/"+meshDescriptorName] {
			doomed = append(doomed, m.Dir)
		}
	}
	// Depth-first so files inside a doomed mesh dir go before the dir.
	sort.Sort(sort.Reverse(sort.StringSlice(doomed)))
	for _, rel := range doomed {
		abs := filepath.Join(r.Root, filepath.FromSlash(rel))
		if err := os.RemoveAll(abs); err != nil {
			return Wrap(KindIOError, err, "removing %s", rel)
		}
		pruneEmptyDirs(r.Root, filepath.Dir(abs))
	}
	return nil
}

// pruneEmptyDirs removes now-empty parents up to (but excluding) root.
func pruneEmptyDirs(root, dir string) {
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
