// Package repo implements the version-control core: repository
// lifecycle, commits, checkout, branches, stash, locks, review records,
// garbage collection and index rebuild.
package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forester/internal/config"
	"forester/internal/hook"
	"forester/internal/ignore"
	"forester/internal/index"
	"forester/internal/object"
)

// DefaultBranch is the branch created by Init.
const DefaultBranch = "main"

// dfmDirName is the metadata directory at the repository root.
const dfmDirName = ".DFM"

// headRefPrefix marks a HEAD file pointing at a branch rather than a raw
// commit.
const headRefPrefix = "ref: branches/"

// Repository is an opened working copy.
type Repository struct {
	// Root is the absolute working-tree root.
	Root string

	Store  *object.Store
	DB     *index.DB
	Config *config.RepoConfig
	Hooks  *hook.Runner

	dfmDir   string
	lockFile string
}

type repoMetadata struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	Tool      string `json:"tool"`
}

// Init creates a fresh repository at path. With force, an existing
// repository is wiped and recreated; without it, Init fails with
// already_exists.
func Init(path string, force bool) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, Wrap(KindIOError, err, "resolving path %s", path)
	}
	dfmDir := filepath.Join(abs, dfmDirName)

	if _, err := os.Stat(dfmDir); err == nil {
		if !force {
			return nil, Errf(KindAlreadyExists, "repository already exists at %s", abs)
		}
		if err := os.RemoveAll(dfmDir); err != nil {
			return nil, Wrap(KindIOError, err, "removing existing repository")
		}
	}

	for _, dir := range []string{
		dfmDir,
		filepath.Join(dfmDir, "refs", "branches"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, Wrap(KindIOError, err, "creating %s", dir)
		}
	}
	if err := hook.EnsureDir(abs); err != nil {
		return nil, Wrap(KindIOError, err, "creating hooks directory")
	}

	store, err := object.NewStore(dfmDir)
	if err != nil {
		return nil, Wrap(KindIOError, err, "creating object store")
	}

	meta := repoMetadata{Version: 1, CreatedAt: time.Now().Unix(), Tool: "forester"}
	metaBytes, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(dfmDir, "metadata.json"), metaBytes, 0644); err != nil {
		return nil, Wrap(KindIOError, err, "writing metadata.json")
	}
	if err := ignore.WriteDefaultFile(filepath.Join(dfmDir, ".dfmignore")); err != nil {
		return nil, Wrap(KindIOError, err, "writing .dfmignore")
	}

	cfg := config.Default()
	if err := cfg.Save(filepath.Join(dfmDir, "config.yaml")); err != nil {
		return nil, Wrap(KindIOError, err, "writing config.yaml")
	}

	db, err := index.Open(filepath.Join(dfmDir, "forester.db"))
	if err != nil {
		return nil, Wrap(KindIOError, err, "opening metadata index")
	}

	r := &Repository{
		Root:     abs,
		Store:    store,
		DB:       db,
		Config:   cfg,
		Hooks:    hook.NewRunner(abs, cfg.HookTimeout()),
		dfmDir:   dfmDir,
		lockFile: filepath.Join(dfmDir, "repo.lock"),
	}

	tx, err := db.BeginTx()
	if err != nil {
		db.Close()
		return nil, Wrap(KindIOError, err, "starting init transaction")
	}
	if err := db.CreateBranch(tx, DefaultBranch, ""); err != nil {
		tx.Rollback()
		db.Close()
		return nil, Wrap(KindIOError, err, "creating default branch")
	}
	if err := db.SetMetaTx(tx, "head_branch", DefaultBranch); err != nil {
		tx.Rollback()
		db.Close()
		return nil, Wrap(KindIOError, err, "recording head")
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, Wrap(KindIOError, err, "committing init transaction")
	}

	if err := r.writeHeadBranch(DefaultBranch); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.writeBranchRef(DefaultBranch, ""); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Open opens the repository containing path, walking upward until a
// metadata directory is found.
func Open(path string) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, Wrap(KindIOError, err, "resolving path %s", path)
	}

	root := abs
	for {
		if info, err := os.Stat(filepath.Join(root, dfmDirName)); err == nil && info.IsDir() {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return nil, Errf(KindNotARepo, "no repository found at or above %s", abs)
		}
		root = parent
	}
	dfmDir := filepath.Join(root, dfmDirName)

	store, err := object.NewStore(dfmDir)
	if err != nil {
		return nil, Wrap(KindIOError, err, "opening object store")
	}
	cfg, err := config.Load(filepath.Join(dfmDir, "config.yaml"))
	if err != nil {
		return nil, Wrap(KindIOError, err, "loading config")
	}
	db, err := index.Open(filepath.Join(dfmDir, "forester.db"))
	if err != nil {
		return nil, Wrap(KindIOError, err, "opening metadata index")
	}

	return &Repository{
		Root:     root,
		Store:    store,
		DB:       db,
		Config:   cfg,
		Hooks:    hook.NewRunner(root, cfg.HookTimeout()),
		dfmDir:   dfmDir,
		lockFile: filepath.Join(dfmDir, "repo.lock"),
	}, nil
}

// Close releases the repository's resources.
func (r *Repository) Close() error {
	return r.DB.Close()
}

// DFMDir returns the absolute metadata directory.
func (r *Repository) DFMDir() string {
	return r.dfmDir
}

// lockRepo takes the repository-wide writer lock. Writers are expected
// to be short-lived; acquisition retries briefly before giving up with a
// timeout error.
func (r *Repository) lockRepo() (release func(), err error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		f, err := os.OpenFile(r.lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(r.lockFile) }, nil
		}
		if !os.IsExist(err) {
			return nil, Wrap(KindIOError, err, "taking repository lock")
		}
		if time.Now().After(deadline) {
			return nil, Errf(KindTimeout, "repository is locked by another operation")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Head returns the current branch name, or "" with a commit hash when
// HEAD is detached.
func (r *Repository) Head() (branch, commit string, err error) {
	data, err := os.ReadFile(filepath.Join(r.dfmDir, "HEAD"))
	if err != nil {
		return "", "", Wrap(KindIOError, err, "reading HEAD")
	}
	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, headRefPrefix) {
		return strings.TrimPrefix(content, headRefPrefix), "", nil
	}
	return "", content, nil
}

// CurrentBranch returns the checked-out branch, or "" when detached.
func (r *Repository) CurrentBranch() (string, error) {
	branch, _, err := r.Head()
	return branch, err
}

// HeadCommit resolves HEAD to a commit hash, or "" on an unborn branch.
func (r *Repository) HeadCommit() (string, error) {
	branch, commit, err := r.Head()
	if err != nil {
		return "", err
	}
	if branch == "" {
		return commit, nil
	}
	b, err := r.DB.GetBranch(branch)
	if err != nil {
		return "", Wrap(KindIOError, err, "reading branch %s", branch)
	}
	if b == nil {
		return "", Errf(KindUnknownRef, "HEAD points at missing branch %s", branch)
	}
	return b.Tip, nil
}

func (r *Repository) writeHeadBranch(branch string) error {
	return r.writeHead(headRefPrefix + branch)
}

func (r *Repository) writeHeadDetached(commit string) error {
	return r.writeHead(commit)
}

func (r *Repository) writeHead(content string) error {
	path := filepath.Join(r.dfmDir, "HEAD")
	if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
		return Wrap(KindIOError, err, "writing HEAD")
	}
	return nil
}

// writeBranchRef mirrors a branch tip into refs/branches for rebuild.
func (r *Repository) writeBranchRef(branch, tip string) error {
	path := filepath.Join(r.dfmDir, "refs", "branches", branch)
	if err := os.WriteFile(path, []byte(tip+"\n"), 0644); err != nil {
		return Wrap(KindIOError, err, "writing branch ref %s", branch)
	}
	return nil
}

func (r *Repository) removeBranchRef(branch string) error {
	path := filepath.Join(r.dfmDir, "refs", "branches", branch)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Wrap(KindIOError, err, "removing branch ref %s", branch)
	}
	return nil
}

// ignoreMatcher builds the scan matcher from defaults plus .dfmignore.
func (r *Repository) ignoreMatcher() (*ignore.Matcher, error) {
	m := ignore.NewMatcher()
	if err := m.LoadFile(filepath.Join(r.dfmDir, ".dfmignore")); err != nil {
		return nil, Wrap(KindIOError, err, "loading .dfmignore")
	}
	return m, nil
}

// ResolveCommit resolves a full or abbreviated commit hash.
func (r *Repository) ResolveCommit(ref string) (string, error) {
	matches, err := r.DB.ResolveCommitPrefix(ref)
	if err != nil {
		return "", Wrap(KindIOError, err, "resolving %s", ref)
	}
	switch len(matches) {
	case 0:
		return "", Errf(KindUnknownRef, "no commit matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguityError{Prefix: ref, Matches: matches}
	}
}

// ResolveTarget resolves a checkout target: branch name first, then
// commit hash prefix.
func (r *Repository) ResolveTarget(target string) (branch, commit string, err error) {
	b, err := r.DB.GetBranch(target)
	if err != nil {
		return "", "", Wrap(KindIOError, err, "resolving %s", target)
	}
	if b != nil {
		return b.Name, b.Tip, nil
	}
	commit, err = r.ResolveCommit(target)
	if err != nil {
		return "", "", err
	}
	return "", commit, nil
}
