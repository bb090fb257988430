package repo

import "forester/internal/index"

// Log returns a branch's history oldest first (current branch when
// empty), walking parent pointers from the tip. The walk ends where an
// ancestor row has been pruned by mesh compression.
func (r *Repository) Log(branch string) ([]*index.CommitRow, error) {
	branch, err := r.defaultBranch(branch)
	if err != nil {
		return nil, err
	}
	b, err := r.DB.GetBranch(branch)
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading branch %s", branch)
	}
	if b == nil {
		return nil, Errf(KindUnknownRef, "no branch named %s", branch)
	}

	var commits []*index.CommitRow
	seen := map[string]bool{}
	for hash := b.Tip; hash != "" && !seen[hash]; {
		seen[hash] = true
		c, err := r.DB.GetCommit(hash)
		if err != nil {
			return nil, Wrap(KindIOError, err, "walking commit history")
		}
		if c == nil {
			break
		}
		commits = append(commits, c)
		hash = c.Parent
	}
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// CommitInfo is the result of Show: the commit row plus its file list.
type CommitInfo struct {
	Commit   *index.CommitRow
	Files    []index.CommitFileRow
	Textures []string
}

// Show resolves a commit ref and returns its metadata. With full=true
// the commit's file and texture lists are included.
func (r *Repository) Show(ref string, full bool) (*CommitInfo, error) {
	hash, err := r.ResolveCommit(ref)
	if err != nil {
		return nil, err
	}
	row, err := r.DB.GetCommit(hash)
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading commit")
	}
	if row == nil {
		return nil, Errf(KindUnknownRef, "commit %s missing from index", hash[:8])
	}

	info := &CommitInfo{Commit: row}
	if full {
		info.Files, err = r.DB.CommitFiles(hash)
		if err != nil {
			return nil, Wrap(KindIOError, err, "listing commit files")
		}
		info.Textures, err = r.DB.CommitTextures(hash)
		if err != nil {
			return nil, Wrap(KindIOError, err, "listing commit textures")
		}
	}
	return info, nil
}
