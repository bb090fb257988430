package repo

import (
	"os"

	log "github.com/sirupsen/logrus"

	"forester/internal/object"
)

// GCStats reports what a garbage-collection pass deleted (or, for a dry
// run, would delete).
type GCStats struct {
	CommitsDeleted  int
	TreesDeleted    int
	BlobsDeleted    int
	MeshesDeleted   int
	TexturesDeleted int
	BytesFreed      int64
}

// GC removes every object unreachable from branch tips, tags and
// stashes. With dryRun the reachability analysis runs but nothing is
// deleted. A second pass after convergence deletes nothing.
func (r *Repository) GC(dryRun bool) (*GCStats, error) {
	release, err := r.lockRepo()
	if err != nil {
		return nil, err
	}
	defer release()

	marked, err := r.markReachable()
	if err != nil {
		return nil, err
	}

	stats := &GCStats{}
	for _, kind := range object.Kinds {
		hashes, err := r.Store.List(kind)
		if err != nil {
			return nil, Wrap(KindIOError, err, "listing %s objects", kind)
		}
		for _, hash := range hashes {
			if marked[kind][hash] {
				continue
			}
			if info, err := os.Stat(r.Store.Path(kind, hash)); err == nil {
				stats.BytesFreed += info.Size()
			}
			if !dryRun && !r.Store.Delete(kind, hash) {
				continue
			}
			switch kind {
			case object.KindCommit:
				stats.CommitsDeleted++
			case object.KindTree:
				stats.TreesDeleted++
			case object.KindBlob:
				stats.BlobsDeleted++
			case object.KindMesh:
				stats.MeshesDeleted++
			case object.KindTexture:
				stats.TexturesDeleted++
			}
		}
	}

	if !dryRun {
		if err := r.pruneIndexRows(marked); err != nil {
			return nil, err
		}
		if err := r.DB.PurgeExpiredLocks(); err != nil {
			return nil, Wrap(KindIOError, err, "purging expired locks")
		}
	}

	log.WithFields(log.Fields{
		"dry_run": dryRun,
		"commits": stats.CommitsDeleted,
		"blobs":   stats.BlobsDeleted,
		"bytes":   stats.BytesFreed,
	}).Debug("garbage collection finished")
	return stats, nil
}

// markReachable computes the transitive closure of objects referenced
// from every branch tip, tag and stash.
func (r *Repository) markReachable() (map[object.Kind]map[string]bool, error) {
	marked := map[object.Kind]map[string]bool{}
	for _, kind := range object.Kinds {
		marked[kind] = map[string]bool{}
	}

	var seeds []string
	branches, err := r.DB.ListBranches()
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing branches")
	}
	for _, b := range branches {
		if b.Tip != "" {
			seeds = append(seeds, b.Tip)
		}
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		seeds = append(seeds, t.Commit)
	}

	// Commit chains from the seeds.
	for _, seed := range seeds {
		hash := seed
		for hash != "" && !marked[object.KindCommit][hash] {
			marked[object.KindCommit][hash] = true
			c, err := r.loadCommit(hash)
			if err != nil {
				return nil, err
			}
			if err := r.markTree(c.TreeHash, marked); err != nil {
				return nil, err
			}
			hash = c.Parent
		}
	}

	// Stashes reference a commit-shaped object plus its tree.
	stashes, err := r.DB.ListStashes()
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing stashes")
	}
	for _, s := range stashes {
		marked[object.KindCommit][s.Hash] = true
		if err := r.markTree(s.TreeHash, marked); err != nil {
			return nil, err
		}
	}
	return marked, nil
}

// markTree marks a tree and everything below it, including the textures
// referenced by mesh entries.
func (r *Repository) markTree(hash string, marked map[object.Kind]map[string]bool) error {
	if marked[object.KindTree][hash] {
		return nil
	}
	marked[object.KindTree][hash] = true

	tree, err := r.loadTree(hash)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		switch e.Kind {
		case object.EntryTree:
			if err := r.markTree(e.Hash, marked); err != nil {
				return err
			}
		case object.EntryBlob:
			marked[object.KindBlob][e.Hash] = true
		case object.EntryMesh:
			if err := r.markMesh(e.Hash, marked); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repository) markMesh(hash string, marked map[object.Kind]map[string]bool) error {
	if marked[object.KindMesh][hash] {
		return nil
	}
	marked[object.KindMesh][hash] = true

	data, err := r.Store.Get(object.KindMesh, hash)
	if err != nil {
		return Wrap(KindIOError, err, "reading mesh %s", hash[:8])
	}
	if data == nil {
		return Errf(KindCorruptObject, "mesh object %s missing", hash[:8])
	}
	mesh, err := object.ParseMesh(data)
	if err != nil {
		return Wrap(KindCorruptObject, err, "mesh %s", hash[:8])
	}
	for _, ref := range mesh.Textures {
		if ref.Hash != "" {
			marked[object.KindTexture][ref.Hash] = true
		}
	}
	return nil
}

// pruneIndexRows drops index rows whose objects were just swept.
func (r *Repository) pruneIndexRows(marked map[object.Kind]map[string]bool) error {
	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}

	commits, err := r.DB.AllCommits()
	if err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "listing commits")
	}
	for _, c := range commits {
		if !marked[object.KindCommit][c.Hash] {
			if err := r.DB.DeleteCommit(tx, c.Hash); err != nil {
				tx.Rollback()
				return Wrap(KindIOError, err, "pruning commit row")
			}
		}
		if !marked[object.KindTree][c.TreeHash] {
			if err := r.DB.DeleteTreeEntries(tx, c.TreeHash); err != nil {
				tx.Rollback()
				return Wrap(KindIOError, err, "pruning tree rows")
			}
		}
	}
	meshHashes, err := r.DB.AllMeshHashes()
	if err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "listing mesh rows")
	}
	for _, h := range meshHashes {
		if !marked[object.KindMesh][h] {
			if err := r.DB.DeleteMesh(tx, h); err != nil {
				tx.Rollback()
				return Wrap(KindIOError, err, "pruning mesh row")
			}
		}
	}
	textureHashes, err := r.DB.AllTextureHashes()
	if err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "listing texture rows")
	}
	for _, h := range textureHashes {
		if !marked[object.KindTexture][h] {
			if err := r.DB.DeleteTexture(tx, h); err != nil {
				tx.Rollback()
				return Wrap(KindIOError, err, "pruning texture row")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}
	return nil
}
