package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"forester/internal/hook"
	"forester/internal/index"
	"forester/internal/object"
)

// CommitOptions tunes a single commit.
type CommitOptions struct {
	Author string
	// CheckLocks rejects the commit when a changed file is locked by
	// someone else on the current branch.
	CheckLocks bool
	// NoVerify skips the pre-commit hook.
	NoVerify bool
	// Screenshot, when non-nil, is stored as a blob and linked into the
	// commit row.
	Screenshot []byte
}

// Commit snapshots the working set onto the current branch and returns
// the new commit hash. With no changes against the branch tip it fails
// with no_changes.
func (r *Repository) Commit(ctx context.Context, message string, opts CommitOptions) (string, error) {
	release, err := r.lockRepo()
	if err != nil {
		return "", err
	}
	defer release()

	branch, _, err := r.Head()
	if err != nil {
		return "", err
	}
	if branch == "" {
		return "", Errf(KindUnknownRef, "HEAD is detached; switch to a branch before committing")
	}
	author := opts.Author
	if author == "" {
		author = r.Config.Author
	}

	snap, err := r.snapshotWorktree(true)
	if err != nil {
		return "", err
	}

	branchRow, err := r.DB.GetBranch(branch)
	if err != nil {
		return "", Wrap(KindIOError, err, "reading branch %s", branch)
	}
	if branchRow == nil {
		return "", Errf(KindUnknownRef, "branch %s missing from index", branch)
	}
	parent := branchRow.Tip

	var parentCommit *object.Commit
	if parent != "" {
		parentCommit, err = r.loadCommit(parent)
		if err != nil {
			return "", err
		}
		if parentCommit.TreeHash == snap.RootTree {
			return "", Errf(KindNoChanges, "nothing to commit on %s", branch)
		}
	} else if len(snap.Files) == 0 && len(snap.Meshes) == 0 {
		return "", Errf(KindNoChanges, "nothing to commit on %s", branch)
	}

	if opts.CheckLocks {
		changed := r.changedPaths(snap, parent)
		conflicts, err := r.DB.CheckConflicts(changed, branch, author)
		if err != nil {
			return "", Wrap(KindIOError, err, "checking lock conflicts")
		}
		if len(conflicts) > 0 {
			return "", Errf(KindLockedFiles, "%s is locked by %s", conflicts[0].FilePath, conflicts[0].LockedBy)
		}
	}

	hookEnv := map[string]string{
		"DFM_BRANCH":  branch,
		"DFM_AUTHOR":  author,
		"DFM_MESSAGE": message,
	}
	if !opts.NoVerify {
		if err := r.Hooks.RunBlocking(ctx, hook.PreCommit, hookEnv); err != nil {
			if errors.Is(err, hook.ErrTimeout) {
				return "", Wrap(KindTimeout, err, "pre-commit hook")
			}
			return "", Wrap(KindHookRejected, err, "pre-commit hook")
		}
	}

	timestamp := time.Now().Unix()
	if parentCommit != nil && timestamp < parentCommit.Timestamp {
		// Clock went backwards; keep branch timestamps monotone.
		timestamp = parentCommit.Timestamp
	}

	commit := &object.Commit{
		Parent:    parent,
		TreeHash:  snap.RootTree,
		Message:   message,
		Author:    author,
		Timestamp: timestamp,
		Branch:    branch,
		Type:      commitType(snap),
	}
	for _, m := range snap.Meshes {
		commit.MeshHashes = append(commit.MeshHashes, m.Hash)
	}
	for _, t := range snap.Textures {
		commit.TextureHashes = append(commit.TextureHashes, t.Hash)
	}

	hash, err := commit.Hash()
	if err != nil {
		return "", Wrap(KindIOError, err, "hashing commit")
	}
	canonical, err := commit.Canonical()
	if err != nil {
		return "", Wrap(KindIOError, err, "serializing commit")
	}
	if err := r.Store.PutAs(object.KindCommit, hash, canonical); err != nil {
		return "", Wrap(KindIOError, err, "storing commit")
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return "", Wrap(KindIOError, err, "starting commit transaction")
	}
	if err := r.recordCommitTx(tx, hash, commit, snap); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", Wrap(KindIOError, err, "committing transaction")
	}

	if err := r.writeBranchRef(branch, hash); err != nil {
		return "", err
	}

	if len(opts.Screenshot) > 0 {
		shot, err := r.Store.Put(object.KindBlob, opts.Screenshot)
		if err != nil {
			return "", Wrap(KindIOError, err, "storing screenshot")
		}
		if err := r.DB.SetCommitScreenshot(hash, shot); err != nil {
			return "", Wrap(KindIOError, err, "linking screenshot")
		}
	}

	if err := r.DB.Checkpoint(); err != nil {
		return "", Wrap(KindIOError, err, "checkpointing index")
	}

	hookEnv["DFM_COMMIT_HASH"] = hash
	r.Hooks.RunAdvisory(ctx, hook.PostCommit, hookEnv)

	if r.Config.AutoCompressKeep > 0 {
		if err := r.compressMeshCommits(branch, r.Config.AutoCompressKeep); err != nil {
			log.WithError(err).Warn("auto-compress failed")
		}
	}
	return hash, nil
}

// recordCommitTx writes the commit row and every index row derived from
// the snapshot inside one transaction.
func (r *Repository) recordCommitTx(tx *sql.Tx, hash string, commit *object.Commit, snap *Snapshot) error {
	row := index.CommitRow{
		Hash:      hash,
		Branch:    commit.Branch,
		Parent:    commit.Parent,
		Timestamp: commit.Timestamp,
		Message:   commit.Message,
		TreeHash:  commit.TreeHash,
		Author:    commit.Author,
		Type:      string(commit.Type),
	}
	if err := r.DB.InsertCommit(tx, row); err != nil {
		return Wrap(KindIOError, err, "recording commit")
	}
	if err := r.DB.SetBranchTip(tx, commit.Branch, hash); err != nil {
		return Wrap(KindIOError, err, "advancing branch %s", commit.Branch)
	}
	if err := r.DB.SetMetaTx(tx, "head_branch", commit.Branch); err != nil {
		return Wrap(KindIOError, err, "recording head")
	}

	for treeHash, tree := range snap.Trees {
		rows := make([]index.TreeEntryRow, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			rows = append(rows, index.TreeEntryRow{
				TreeHash: treeHash, Name: e.Name, Kind: string(e.Kind), ChildHash: e.Hash,
			})
		}
		if err := r.DB.InsertTreeEntries(tx, treeHash, rows); err != nil {
			return Wrap(KindIOError, err, "recording tree entries")
		}
	}

	files := make([]index.CommitFileRow, 0, len(snap.Files))
	for _, f := range snap.Files {
		files = append(files, index.CommitFileRow{
			CommitHash: hash, Path: f.Path, BlobHash: f.Hash, Size: f.Size,
		})
	}
	if err := r.DB.InsertCommitFiles(tx, hash, files); err != nil {
		return Wrap(KindIOError, err, "recording commit files")
	}
	return r.recordAssets(tx, hash, snap.Meshes, snap.Textures)
}

// changedPaths lists the blob paths whose hash differs from the parent
// commit's snapshot.
func (r *Repository) changedPaths(snap *Snapshot, parent string) []string {
	baseline := map[string]string{}
	if parent != "" {
		if files, err := r.DB.CommitFiles(parent); err == nil {
			for _, f := range files {
				baseline[f.Path] = f.BlobHash
			}
		}
	}
	var changed []string
	for _, f := range snap.Files {
		if baseline[f.Path] != f.Hash {
			changed = append(changed, f.Path)
		}
	}
	return changed
}

// commitType distinguishes full-project snapshots from quick mesh saves.
func commitType(snap *Snapshot) object.CommitType {
	if len(snap.Meshes) > 0 && len(snap.Files) == 0 {
		return object.CommitMeshOnly
	}
	return object.CommitProject
}

// compressMeshCommits prunes old mesh_only commit rows on a branch
// beyond the retention count. Commits reachable from any branch tip or
// stash are never touched.
func (r *Repository) compressMeshCommits(branch string, keep int) error {
	commits, err := r.DB.CommitsByBranch(branch)
	if err != nil {
		return err
	}
	var meshOnly []*index.CommitRow
	for _, c := range commits {
		if c.Type == string(object.CommitMeshOnly) {
			meshOnly = append(meshOnly, c)
		}
	}
	if len(meshOnly) <= keep {
		return nil
	}

	reachable, err := r.reachableCommits()
	if err != nil {
		return err
	}

	candidates := meshOnly[:len(meshOnly)-keep]
	tx, err := r.DB.BeginTx()
	if err != nil {
		return err
	}
	deleted := 0
	for _, c := range candidates {
		if reachable[c.Hash] {
			continue
		}
		if err := r.DB.DeleteCommit(tx, c.Hash); err != nil {
			tx.Rollback()
			return err
		}
		deleted++
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if deleted > 0 {
		log.WithFields(log.Fields{"branch": branch, "deleted": deleted}).Debug("compressed mesh commits")
	}
	return nil
}

// reachableCommits walks parent chains from every branch tip.
func (r *Repository) reachableCommits() (map[string]bool, error) {
	reachable := map[string]bool{}
	branches, err := r.DB.ListBranches()
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing branches")
	}
	for _, b := range branches {
		hash := b.Tip
		for hash != "" && !reachable[hash] {
			reachable[hash] = true
			c, err := r.DB.GetCommit(hash)
			if err != nil {
				return nil, Wrap(KindIOError, err, "walking commit graph")
			}
			if c == nil {
				break
			}
			hash = c.Parent
		}
	}
	return reachable, nil
}
