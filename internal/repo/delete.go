package repo

import (
	log "github.com/sirupsen/logrus"
)

// DeleteCommit removes a commit from the index. The commit's objects
// stay on disk until a GC pass finds them unreachable. Without force,
// a commit that is a branch tip or carries a tag is refused. With
// force, every branch whose tip it is falls back to the commit's
// parent, or becomes unborn when there is none.
func (r *Repository) DeleteCommit(ref string, force bool) error {
	release, err := r.lockRepo()
	if err != nil {
		return err
	}
	defer release()

	hash, err := r.ResolveCommit(ref)
	if err != nil {
		return err
	}
	row, err := r.DB.GetCommit(hash)
	if err != nil {
		return Wrap(KindIOError, err, "reading commit")
	}
	if row == nil {
		return Errf(KindUnknownRef, "commit %s missing from index", hash[:8])
	}

	branches, err := r.DB.ListBranches()
	if err != nil {
		return Wrap(KindIOError, err, "listing branches")
	}
	var tipOf []string
	for _, b := range branches {
		if b.Tip == hash {
			tipOf = append(tipOf, b.Name)
		}
	}
	if !force {
		if len(tipOf) > 0 {
			return Errf(KindInvalidState, "commit %s is the tip of branch %s; use force to delete it", hash[:8], tipOf[0])
		}
		tags, err := r.Tags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.Commit == hash {
				return Errf(KindInvalidState, "commit %s is tagged %s; use force to delete it", hash[:8], t.Name)
			}
		}
	}

	tx, err := r.DB.BeginTx()
	if err != nil {
		return Wrap(KindIOError, err, "starting transaction")
	}
	if err := r.DB.DeleteCommit(tx, hash); err != nil {
		tx.Rollback()
		return Wrap(KindIOError, err, "deleting commit rows")
	}
	for _, name := range tipOf {
		if err := r.DB.SetBranchTip(tx, name, row.Parent); err != nil {
			tx.Rollback()
			return Wrap(KindIOError, err, "moving branch %s", name)
		}
	}
	if err := tx.Commit(); err != nil {
		return Wrap(KindIOError, err, "committing transaction")
	}

	for _, name := range tipOf {
		if err := r.writeBranchRef(name, row.Parent); err != nil {
			return err
		}
	}
	if err := r.DB.Checkpoint(); err != nil {
		return Wrap(KindIOError, err, "checkpointing index")
	}
	log.WithFields(log.Fields{"hash": hash[:8], "force": force}).Info("commit deleted")
	return nil
}
