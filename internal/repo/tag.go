package repo

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tag is a lightweight named pointer to a commit, stored as a ref file.
type Tag struct {
	Name   string
	Commit string
}

func (r *Repository) tagPath(name string) string {
	return filepath.Join(r.dfmDir, "refs", "tags", name)
}

// CreateTag points a tag at a commit, or at HEAD when target is empty.
func (r *Repository) CreateTag(name, target string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	if _, err := os.Stat(r.tagPath(name)); err == nil {
		return Errf(KindAlreadyExists, "tag %s already exists", name)
	}

	var commit string
	var err error
	if target == "" {
		commit, err = r.HeadCommit()
		if err != nil {
			return err
		}
		if commit == "" {
			return Errf(KindUnknownRef, "HEAD has no commit to tag")
		}
	} else {
		commit, err = r.ResolveCommit(target)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(r.tagPath(name)), 0755); err != nil {
		return Wrap(KindIOError, err, "creating tags directory")
	}
	if err := os.WriteFile(r.tagPath(name), []byte(commit+"\n"), 0644); err != nil {
		return Wrap(KindIOError, err, "writing tag %s", name)
	}
	return nil
}

// GetTag resolves a tag to its commit hash.
func (r *Repository) GetTag(name string) (string, error) {
	data, err := os.ReadFile(r.tagPath(name))
	if os.IsNotExist(err) {
		return "", Errf(KindUnknownRef, "no tag named %s", name)
	}
	if err != nil {
		return "", Wrap(KindIOError, err, "reading tag %s", name)
	}
	return strings.TrimSpace(string(data)), nil
}

// DeleteTag removes a tag ref.
func (r *Repository) DeleteTag(name string) error {
	err := os.Remove(r.tagPath(name))
	if os.IsNotExist(err) {
		return Errf(KindUnknownRef, "no tag named %s", name)
	}
	if err != nil {
		return Wrap(KindIOError, err, "deleting tag %s", name)
	}
	return nil
}

// Tags lists every tag ordered by name.
func (r *Repository) Tags() ([]Tag, error) {
	dir := filepath.Join(r.dfmDir, "refs", "tags")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Wrap(KindIOError, err, "reading tags directory")
	}

	var tags []Tag
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		commit, err := r.GetTag(e.Name())
		if err != nil {
			return nil, err
		}
		tags = append(tags, Tag{Name: e.Name(), Commit: commit})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}
