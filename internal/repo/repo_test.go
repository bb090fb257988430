package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forester/internal/cas"
	"forester/internal/index"
	"forester/internal/object"
)

func initTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Init(t.TempDir(), false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func writeWorkFile(t *testing.T, r *Repository, rel, content string) {
	t.Helper()
	path := filepath.Join(r.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func mustCommit(t *testing.T, r *Repository, message, author string) string {
	t.Helper()
	hash, err := r.Commit(context.Background(), message, CommitOptions{Author: author, CheckLocks: true})
	if err != nil {
		t.Fatalf("Commit(%q) failed: %v", message, err)
	}
	return hash
}

func TestInitAndFirstCommit(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "hello")

	h1 := mustCommit(t, r, "first", "alice")
	if !cas.IsHash(h1) {
		t.Fatalf("commit hash %q is not a 64-hex id", h1)
	}

	info, err := r.Show(h1, false)
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if info.Commit.Message != "first" || info.Commit.Author != "alice" {
		t.Errorf("unexpected commit row: %+v", info.Commit)
	}

	branches, err := r.Branches()
	if err != nil {
		t.Fatalf("Branches failed: %v", err)
	}
	if len(branches) != 1 || branches[0].Name != DefaultBranch {
		t.Fatalf("unexpected branches: %+v", branches)
	}
	// Stash records live only in the index; no metadata subdirectory.
	if _, err := os.Stat(filepath.Join(r.DFMDir(), "stash")); !os.IsNotExist(err) {
		t.Errorf("stray stash directory: %v", err)
	}
	count, err := r.DB.CommitCount(DefaultBranch)
	if err != nil || count != 1 {
		t.Errorf("commit count = %d, %v; want 1", count, err)
	}
}

func TestInitRefusesExistingWithoutForce(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	r.Close()

	if _, err := Init(dir, false); KindOf(err) != KindAlreadyExists {
		t.Errorf("second Init error = %v, want already_exists", err)
	}
	r2, err := Init(dir, true)
	if err != nil {
		t.Errorf("forced Init failed: %v", err)
	} else {
		r2.Close()
	}
}

func TestOpenWalksUpward(t *testing.T) {
	r := initTestRepo(t)
	sub := filepath.Join(r.Root, "assets", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	opened, err := Open(sub)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer opened.Close()
	if opened.Root != r.Root {
		t.Errorf("Open resolved root %s, want %s", opened.Root, r.Root)
	}

	if _, err := Open(t.TempDir()); KindOf(err) != KindNotARepo {
		t.Errorf("Open outside repo = %v, want not_a_repo", err)
	}
}

func TestDedupAcrossFiles(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "X")
	writeWorkFile(t, r, "b.txt", "X")
	mustCommit(t, r, "dup", "alice")

	blobs, err := r.Store.List(object.KindBlob)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blobs) != 1 || blobs[0] != cas.SumHex([]byte("X")) {
		t.Errorf("blob store = %v, want exactly one object for X", blobs)
	}
}

func TestCommitNoChanges(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "hello")
	mustCommit(t, r, "first", "alice")

	_, err := r.Commit(context.Background(), "again", CommitOptions{Author: "alice"})
	if KindOf(err) != KindNoChanges {
		t.Errorf("unchanged commit error = %v, want no_changes", err)
	}
}

func TestCommitParentChainAndLog(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "one", "alice")
	writeWorkFile(t, r, "a.txt", "v2")
	h2 := mustCommit(t, r, "two", "alice")

	c2, err := r.loadCommit(h2)
	if err != nil {
		t.Fatalf("loadCommit failed: %v", err)
	}
	if c2.Parent != h1 {
		t.Errorf("second commit parent = %s, want %s", c2.Parent, h1)
	}
	if c2.Timestamp < 0 {
		t.Error("bad timestamp")
	}

	commits, err := r.Log("")
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 || commits[0].Hash != h1 || commits[1].Hash != h2 {
		t.Errorf("log order wrong: %+v", commits)
	}
	if commits[1].Timestamp < commits[0].Timestamp {
		t.Error("timestamps not monotone on branch")
	}
}

func TestLogFollowsParentChainOnSharedTimestamps(t *testing.T) {
	r := initTestRepo(t)

	// Both rows share a timestamp and the child's hash sorts lexically
	// before the parent's, so anything but a parent-chain walk would
	// report the child first.
	parent := strings.Repeat("f", 64)
	child := strings.Repeat("0", 63) + "1"
	ts := time.Now().Unix()

	tx, err := r.DB.BeginTx()
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	rows := []index.CommitRow{
		{Hash: parent, Branch: "main", Timestamp: ts, TreeHash: strings.Repeat("a", 64), Type: "project"},
		{Hash: child, Branch: "main", Parent: parent, Timestamp: ts, TreeHash: strings.Repeat("b", 64), Type: "project"},
	}
	for _, row := range rows {
		if err := r.DB.InsertCommit(tx, row); err != nil {
			t.Fatalf("InsertCommit failed: %v", err)
		}
	}
	if err := r.DB.SetBranchTip(tx, "main", child); err != nil {
		t.Fatalf("SetBranchTip failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit tx failed: %v", err)
	}

	commits, err := r.Log("main")
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 || commits[0].Hash != parent || commits[1].Hash != child {
		got := make([]string, len(commits))
		for i, c := range commits {
			got[i] = c.Hash[:8]
		}
		t.Errorf("log order = %v, want [%s %s]", got, parent[:8], child[:8])
	}
}

func TestStatusReportsChanges(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	writeWorkFile(t, r, "b.txt", "keep")
	mustCommit(t, r, "base", "alice")

	writeWorkFile(t, r, "a.txt", "v2")
	writeWorkFile(t, r, "c.txt", "new")
	if err := os.Remove(filepath.Join(r.Root, "b.txt")); err != nil {
		t.Fatal(err)
	}

	st, err := r.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Clean {
		t.Error("dirty tree reported clean")
	}
	if len(st.Modified) != 1 || st.Modified[0] != "a.txt" {
		t.Errorf("Modified = %v", st.Modified)
	}
	if len(st.Added) != 1 || st.Added[0] != "c.txt" {
		t.Errorf("Added = %v", st.Added)
	}
	if len(st.Deleted) != 1 || st.Deleted[0] != "b.txt" {
		t.Errorf("Deleted = %v", st.Deleted)
	}
}

func TestCheckoutRoundTrip(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	writeWorkFile(t, r, "sub/b.txt", "bee")
	h1 := mustCommit(t, r, "one", "alice")

	writeWorkFile(t, r, "a.txt", "v2")
	mustCommit(t, r, "two", "alice")

	if err := r.Checkout(context.Background(), h1, CheckoutOptions{Force: true}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(r.Root, "a.txt"))
	if err != nil || string(data) != "v1" {
		t.Errorf("a.txt = %q, %v; want v1", data, err)
	}

	// Detached HEAD after checking out a raw commit.
	branch, detached, err := r.Head()
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if branch != "" || detached != h1 {
		t.Errorf("HEAD = (%q, %q), want detached at %s", branch, detached, h1)
	}
}

func TestCheckoutGuardsDirtyTree(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "one", "alice")
	writeWorkFile(t, r, "a.txt", "dirty")

	err := r.Checkout(context.Background(), h1, CheckoutOptions{})
	if KindOf(err) != KindUncommittedChanges {
		t.Errorf("dirty checkout error = %v, want uncommitted_changes", err)
	}
}

func TestSelectiveCheckout(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "textures/t.png", "png-bytes")
	writeWorkFile(t, r, "mesh/m.json", "{}")
	h := mustCommit(t, r, "assets", "alice")

	writeWorkFile(t, r, "textures/t.png", "changed")
	writeWorkFile(t, r, "mesh/m.json", "local-edit")

	err := r.Checkout(context.Background(), h, CheckoutOptions{
		Force:        true,
		FilePatterns: []string{"textures/*"},
	})
	if err != nil {
		t.Fatalf("selective checkout failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(r.Root, "textures", "t.png"))
	if string(data) != "png-bytes" {
		t.Errorf("textures/t.png = %q, want restored content", data)
	}
	data, _ = os.ReadFile(filepath.Join(r.Root, "mesh", "m.json"))
	if string(data) != "local-edit" {
		t.Errorf("non-matching file was touched: %q", data)
	}
}

func TestCheckoutBranchPrunesUntracked(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	mustCommit(t, r, "one", "alice")

	writeWorkFile(t, r, "extra.txt", "orphan")
	if err := r.Checkout(context.Background(), DefaultBranch, CheckoutOptions{Force: true}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.Root, "extra.txt")); !os.IsNotExist(err) {
		t.Error("untracked file survived full checkout")
	}
	if _, err := os.Stat(filepath.Join(r.Root, "a.txt")); err != nil {
		t.Errorf("tracked file missing after checkout: %v", err)
	}
}

func TestLockConflictOnCommit(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	mustCommit(t, r, "base", "alice")

	ok, err := r.LockFile("a.txt", "", "bob", index.LockExclusive, 0)
	if err != nil || !ok {
		t.Fatalf("LockFile = %v, %v", ok, err)
	}

	writeWorkFile(t, r, "a.txt", "alice-edit")
	_, err = r.Commit(context.Background(), "x", CommitOptions{Author: "alice", CheckLocks: true})
	if KindOf(err) != KindLockedFiles {
		t.Fatalf("commit over lock = %v, want locked_files", err)
	}

	b, _ := r.DB.GetBranch(DefaultBranch)
	c, _ := r.loadCommit(b.Tip)
	if c.Message != "base" {
		t.Error("branch advanced despite lock rejection")
	}

	// The lock owner can commit.
	if _, err := r.Commit(context.Background(), "bob's", CommitOptions{Author: "bob", CheckLocks: true}); err != nil {
		t.Errorf("owner commit failed: %v", err)
	}
}

func TestStashRoundTrip(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "clean")
	mustCommit(t, r, "base", "alice")

	writeWorkFile(t, r, "a.txt", "dirty")
	s1, err := r.Stash("wip")
	if err != nil {
		t.Fatalf("Stash failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(r.Root, "a.txt"))
	if string(data) != "clean" {
		t.Errorf("stash did not restore pre-dirty state: %q", data)
	}

	if err := r.ApplyStash(s1, true); err != nil {
		t.Fatalf("ApplyStash failed: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(r.Root, "a.txt"))
	if string(data) != "dirty" {
		t.Errorf("stash apply yielded %q, want dirty content", data)
	}

	if err := r.DeleteStash(s1); err != nil {
		t.Fatalf("DeleteStash failed: %v", err)
	}
	if err := r.ApplyStash(s1, true); KindOf(err) != KindUnknownRef {
		t.Errorf("apply of deleted stash = %v, want unknown_ref", err)
	}
}

func TestStashOnCleanTree(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	mustCommit(t, r, "base", "alice")

	if _, err := r.Stash("nothing"); KindOf(err) != KindNoChanges {
		t.Errorf("clean stash = %v, want no_changes", err)
	}
}

func TestBranchLifecycle(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "base", "alice")

	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if err := r.CreateBranch("dev", ""); KindOf(err) != KindAlreadyExists {
		t.Error("duplicate branch creation allowed")
	}
	b, _ := r.DB.GetBranch("dev")
	if b == nil || b.Tip != h1 {
		t.Errorf("dev branch tip = %+v, want %s", b, h1)
	}

	if err := r.SwitchBranch("dev"); err != nil {
		t.Fatalf("SwitchBranch failed: %v", err)
	}
	current, _ := r.CurrentBranch()
	if current != "dev" {
		t.Errorf("current branch = %s, want dev", current)
	}

	// Commits land on the new branch; main stays put.
	writeWorkFile(t, r, "dev.txt", "d")
	h2 := mustCommit(t, r, "on dev", "alice")
	main, _ := r.DB.GetBranch(DefaultBranch)
	if main.Tip != h1 {
		t.Errorf("main moved to %s", main.Tip)
	}
	dev, _ := r.DB.GetBranch("dev")
	if dev.Tip != h2 {
		t.Errorf("dev tip = %s, want %s", dev.Tip, h2)
	}

	if err := r.DeleteBranch("dev", false); KindOf(err) != KindInvalidState {
		t.Error("deleting current branch without force allowed")
	}
	if err := r.DeleteBranch("dev", true); err != nil {
		t.Fatalf("forced delete failed: %v", err)
	}
	if current, _ = r.CurrentBranch(); current != DefaultBranch {
		t.Errorf("HEAD after forced delete = %s", current)
	}
	if err := r.DeleteBranch(DefaultBranch, true); KindOf(err) != KindInvalidState {
		t.Error("deleting the only branch allowed")
	}
}

func TestBranchNameValidation(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"main", true},
		{"feature/chair", true},
		{"", false},
		{"  padded  ", false},
		{"/leading", false},
		{"has space", false},
		{"ctrl\x01char", false},
	}
	for _, tt := range tests {
		err := ValidateBranchName(tt.name)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateBranchName(%q) = %v, want valid=%v", tt.name, err, tt.valid)
		}
	}
}

func TestSwitchBranchVisibleToFreshHandle(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	mustCommit(t, r, "base", "alice")
	if err := r.CreateBranch("dev", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.SwitchBranch("dev"); err != nil {
		t.Fatal(err)
	}

	// A second connection must see the switch immediately.
	other, err := Open(r.Root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer other.Close()
	current, err := other.CurrentBranch()
	if err != nil || current != "dev" {
		t.Errorf("fresh handle sees branch %q, %v; want dev", current, err)
	}
	head, _ := other.DB.GetMeta("head_branch")
	if head != "dev" {
		t.Errorf("index head_branch = %q, want dev", head)
	}
}

func TestTags(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "base", "alice")

	if err := r.CreateTag("v1.0", ""); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := r.CreateTag("v1.0", ""); KindOf(err) != KindAlreadyExists {
		t.Error("duplicate tag allowed")
	}
	commit, err := r.GetTag("v1.0")
	if err != nil || commit != h1 {
		t.Errorf("GetTag = %s, %v; want %s", commit, err, h1)
	}

	tags, _ := r.Tags()
	if len(tags) != 1 || tags[0].Name != "v1.0" {
		t.Errorf("Tags = %+v", tags)
	}

	if err := r.DeleteTag("v1.0"); err != nil {
		t.Fatalf("DeleteTag failed: %v", err)
	}
	if _, err := r.GetTag("v1.0"); KindOf(err) != KindUnknownRef {
		t.Error("deleted tag still resolves")
	}
}

func TestGCPreservesReachability(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "one")
	mustCommit(t, r, "c1", "alice")
	writeWorkFile(t, r, "a.txt", "two")
	mustCommit(t, r, "c2", "alice")
	writeWorkFile(t, r, "a.txt", "three")
	h3 := mustCommit(t, r, "c3", "alice")

	// Orphan one commit by branching at it and deleting the branch.
	if err := r.CreateBranch("scratch", ""); err != nil {
		t.Fatal(err)
	}
	writeWorkFile(t, r, "orphan.txt", "doomed")
	if err := r.SwitchBranch("scratch"); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, r, "orphaned", "alice")
	if err := r.SwitchBranch(DefaultBranch); err != nil {
		t.Fatal(err)
	}
	// Drop the dirty orphan file so main's tree matches its tip again.
	if err := r.Checkout(context.Background(), DefaultBranch, CheckoutOptions{Force: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteBranch("scratch", false); err != nil {
		t.Fatal(err)
	}

	stats, err := r.GC(false)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if stats.CommitsDeleted != 1 {
		t.Errorf("CommitsDeleted = %d, want 1", stats.CommitsDeleted)
	}
	if r.Store.Exists(object.KindBlob, cas.SumHex([]byte("doomed"))) {
		t.Error("orphaned blob survived GC")
	}

	// Reachable history intact.
	for _, content := range []string{"one", "two", "three"} {
		if !r.Store.Exists(object.KindBlob, cas.SumHex([]byte(content))) {
			t.Errorf("reachable blob %q swept", content)
		}
	}
	if c, err := r.loadCommit(h3); err != nil || c == nil {
		t.Errorf("tip commit unreadable after GC: %v", err)
	}

	// Idempotence: the second pass deletes nothing.
	stats, err = r.GC(false)
	if err != nil {
		t.Fatalf("second GC failed: %v", err)
	}
	if stats.CommitsDeleted != 0 || stats.BlobsDeleted != 0 || stats.TreesDeleted != 0 {
		t.Errorf("second GC deleted objects: %+v", stats)
	}
}

func TestGCDryRunDeletesNothing(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "keep")
	mustCommit(t, r, "c1", "alice")

	// Plant an unreferenced blob.
	orphan, err := r.Store.Put(object.KindBlob, []byte("unreferenced"))
	if err != nil {
		t.Fatal(err)
	}

	stats, err := r.GC(true)
	if err != nil {
		t.Fatalf("dry-run GC failed: %v", err)
	}
	if stats.BlobsDeleted != 1 {
		t.Errorf("dry run counted %d blobs, want 1", stats.BlobsDeleted)
	}
	if !r.Store.Exists(object.KindBlob, orphan) {
		t.Error("dry run deleted an object")
	}
}

func TestMeshIngestionAndRoundTrip(t *testing.T) {
	r := initTestRepo(t)

	// aGVsbG8= is "hello"; the payload is stored as a texture object.
	meshJSON := `{
		"name": "chair",
		"vertices": [[0,0,0],[1,0,0],[0,1,0]],
		"faces": [[0,1,2]],
		"textures": [{"name": "diffuse.png", "data": "aGVsbG8="}]
	}`
	writeWorkFile(t, r, "assets/chair/mesh.json", meshJSON)
	hash := mustCommit(t, r, "add chair", "alice")

	texHash := cas.SumHex([]byte("hello"))
	if !r.Store.Exists(object.KindTexture, texHash) {
		t.Error("inline texture payload not stored as texture object")
	}

	meshes, err := r.Store.List(object.KindMesh)
	if err != nil || len(meshes) != 1 {
		t.Fatalf("mesh objects = %v, %v; want exactly one", meshes, err)
	}
	data, _ := r.Store.Get(object.KindMesh, meshes[0])
	mesh, err := object.ParseMesh(data)
	if err != nil {
		t.Fatalf("stored mesh unparsable: %v", err)
	}
	if !mesh.Normalized() {
		t.Error("stored mesh still carries inline payloads")
	}
	if mesh.Textures[0].Hash != texHash {
		t.Errorf("texture ref = %s, want %s", mesh.Textures[0].Hash, texHash)
	}

	name, err := r.DB.MeshName(meshes[0])
	if err != nil || name != "chair" {
		t.Errorf("mesh row name = %q, %v", name, err)
	}
	linked, err := r.DB.CommitTextures(hash)
	if err != nil || len(linked) != 1 || linked[0] != texHash {
		t.Errorf("texture links = %v, %v", linked, err)
	}

	// Wipe the mesh dir and restore it from the commit.
	if err := os.RemoveAll(filepath.Join(r.Root, "assets")); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkout(context.Background(), hash, CheckoutOptions{Force: true}); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	restored, err := os.ReadFile(filepath.Join(r.Root, "assets", "chair", "mesh.json"))
	if err != nil {
		t.Fatalf("mesh descriptor not restored: %v", err)
	}
	parsed, err := object.ParseMesh(restored)
	if err != nil || parsed.Name != "chair" {
		t.Errorf("restored descriptor bad: %v", err)
	}
	texData, err := os.ReadFile(filepath.Join(r.Root, "assets", "chair", "diffuse.png"))
	if err != nil || string(texData) != "hello" {
		t.Errorf("texture not rematerialized: %q, %v", texData, err)
	}
}

func TestMeshOnlyCommitType(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "chair/mesh.json", `{
		"name": "chair",
		"vertices": [[0,0,0],[1,0,0],[0,1,0]],
		"faces": [[0,1,2]]
	}`)
	hash := mustCommit(t, r, "quick save", "alice")

	row, err := r.DB.GetCommit(hash)
	if err != nil {
		t.Fatalf("GetCommit failed: %v", err)
	}
	if row.Type != string(object.CommitMeshOnly) {
		t.Errorf("commit type = %s, want mesh_only", row.Type)
	}
}

func TestDeleteCommitGuards(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "one", "alice")
	writeWorkFile(t, r, "a.txt", "v2")
	h2 := mustCommit(t, r, "two", "alice")

	if err := r.DeleteCommit(h2, false); KindOf(err) != KindInvalidState {
		t.Errorf("deleting the branch tip: kind = %q, want invalid_state", KindOf(err))
	}
	if err := r.CreateTag("keep", h1); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteCommit(h1, false); KindOf(err) != KindInvalidState {
		t.Errorf("deleting a tagged commit: kind = %q, want invalid_state", KindOf(err))
	}
	if err := r.DeleteTag("keep"); err != nil {
		t.Fatal(err)
	}

	// Untagged, non-tip: deletable without force.
	if err := r.DeleteCommit(h1, false); err != nil {
		t.Fatalf("DeleteCommit failed: %v", err)
	}
	row, err := r.DB.GetCommit(h1)
	if err != nil || row != nil {
		t.Errorf("deleted commit still indexed: %+v, %v", row, err)
	}
	if err := r.DeleteCommit(h1, false); KindOf(err) != KindUnknownRef {
		t.Errorf("re-deleting: kind = %q, want unknown_ref", KindOf(err))
	}
}

func TestDeleteCommitForceMovesTip(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	h1 := mustCommit(t, r, "one", "alice")
	writeWorkFile(t, r, "a.txt", "v2")
	h2 := mustCommit(t, r, "two", "alice")

	if err := r.DeleteCommit(h2, true); err != nil {
		t.Fatalf("forced DeleteCommit failed: %v", err)
	}
	b, err := r.DB.GetBranch(DefaultBranch)
	if err != nil || b == nil || b.Tip != h1 {
		t.Fatalf("tip after delete = %+v, want %s", b, h1[:8])
	}
	head, err := r.HeadCommit()
	if err != nil || head != h1 {
		t.Errorf("HeadCommit = %q, want %s", head, h1[:8])
	}

	// The commit object stays until a GC pass finds it unreachable.
	if !r.Store.Exists(object.KindCommit, h2) {
		t.Fatal("commit object deleted before GC")
	}
	if err := r.Checkout(context.Background(), DefaultBranch, CheckoutOptions{Force: true}); err != nil {
		t.Fatal(err)
	}
	stats, err := r.GC(false)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if stats.CommitsDeleted != 1 {
		t.Errorf("CommitsDeleted = %d, want 1", stats.CommitsDeleted)
	}
	if r.Store.Exists(object.KindCommit, h2) {
		t.Error("unreachable commit object survived GC")
	}

	// Deleting the root commit leaves the branch unborn.
	if err := r.DeleteCommit(h1, true); err != nil {
		t.Fatalf("forced DeleteCommit failed: %v", err)
	}
	b, err = r.DB.GetBranch(DefaultBranch)
	if err != nil || b == nil || b.Tip != "" {
		t.Errorf("tip after root delete = %+v, want unborn", b)
	}
}

func TestRebuildRecoversIndex(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	writeWorkFile(t, r, "sub/b.txt", "v2")
	h1 := mustCommit(t, r, "one", "alice")
	writeWorkFile(t, r, "a.txt", "v3")
	h2 := mustCommit(t, r, "two", "alice")

	stats, err := r.Rebuild(true)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if stats.Commits != 2 || stats.Branches != 1 {
		t.Errorf("rebuild stats = %+v", stats)
	}
	// The backup is taken after a clean close, so rows that only ever
	// lived in the WAL are in it too.
	bak, err := index.Open(filepath.Join(r.DFMDir(), "forester.db.bak"))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	row, err := bak.GetCommit(h2)
	bak.Close()
	if err != nil || row == nil {
		t.Errorf("backup is missing commit %s: %v", h2[:8], err)
	}

	for _, h := range []string{h1, h2} {
		row, err := r.DB.GetCommit(h)
		if err != nil || row == nil {
			t.Errorf("commit %s not recovered: %v", h[:8], err)
		}
	}
	b, err := r.DB.GetBranch(DefaultBranch)
	if err != nil || b == nil || b.Tip != h2 {
		t.Errorf("branch not recovered: %+v, %v", b, err)
	}
	files, err := r.DB.CommitFiles(h2)
	if err != nil || len(files) != 2 {
		t.Errorf("commit files not recovered: %v, %v", files, err)
	}
	current, err := r.CurrentBranch()
	if err != nil || current != DefaultBranch {
		t.Errorf("head not recovered: %q, %v", current, err)
	}
}

func TestHookRejectionAbortsCommit(t *testing.T) {
	r := initTestRepo(t)
	hookPath := filepath.Join(r.DFMDir(), "hooks", "pre-commit")
	if err := os.WriteFile(hookPath, []byte("#!/bin/sh\nexit 1\n"), 0755); err != nil {
		t.Fatal(err)
	}

	writeWorkFile(t, r, "a.txt", "v1")
	_, err := r.Commit(context.Background(), "x", CommitOptions{Author: "alice"})
	if KindOf(err) != KindHookRejected {
		t.Fatalf("commit with failing hook = %v, want hook_rejected", err)
	}

	// --no-verify bypasses the hook.
	if _, err := r.Commit(context.Background(), "x", CommitOptions{Author: "alice", NoVerify: true}); err != nil {
		t.Errorf("NoVerify commit failed: %v", err)
	}
}

func TestScreenshotLinkedToCommit(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")

	shot := []byte("fake-png-bytes")
	hash, err := r.Commit(context.Background(), "with shot", CommitOptions{Author: "alice", Screenshot: shot})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	row, err := r.DB.GetCommit(hash)
	if err != nil {
		t.Fatal(err)
	}
	if row.ScreenshotHash != cas.SumHex(shot) {
		t.Errorf("screenshot hash = %s, want %s", row.ScreenshotHash, cas.SumHex(shot))
	}
	if !r.Store.Exists(object.KindBlob, row.ScreenshotHash) {
		t.Error("screenshot blob not stored")
	}
}
