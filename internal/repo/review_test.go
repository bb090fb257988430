package repo

import (
	"testing"

	"forester/internal/index"
)

func TestCommentAndApprovalFlow(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	hash := mustCommit(t, r, "base", "alice")

	id, err := r.CommentOnAsset(index.CommentRow{
		AssetHash: hash,
		AssetType: AssetCommit,
		Text:      "needs a second look",
	})
	if err != nil {
		t.Fatalf("CommentOnAsset failed: %v", err)
	}
	comments, err := r.Comments(hash, AssetCommit)
	if err != nil || len(comments) != 1 {
		t.Fatalf("Comments = %v, %v", comments, err)
	}
	if comments[0].Author != "unknown" {
		t.Errorf("comment author = %q, want config default", comments[0].Author)
	}
	if comments[0].HasPos {
		t.Error("positionless comment reports a position")
	}

	if err := r.ResolveComment(id); err != nil {
		t.Fatalf("ResolveComment failed: %v", err)
	}
	comments, _ = r.Comments(hash, AssetCommit)
	if !comments[0].Resolved {
		t.Error("comment not marked resolved")
	}
	if err := r.ResolveComment(99999); KindOf(err) != KindUnknownRef {
		t.Errorf("resolving missing comment = %v, want unknown_ref", err)
	}

	verdict := index.ApprovalRow{AssetHash: hash, AssetType: AssetCommit, Approver: "bob"}
	verdict.Status = index.ApprovalRejected
	verdict.Comment = "not yet"
	if err := r.ApproveAsset(verdict); err != nil {
		t.Fatalf("ApproveAsset failed: %v", err)
	}
	verdict.Status = index.ApprovalApproved
	verdict.Comment = "fixed"
	if err := r.ApproveAsset(verdict); err != nil {
		t.Fatalf("second ApproveAsset failed: %v", err)
	}
	approvals, err := r.Approvals(hash, AssetCommit)
	if err != nil || len(approvals) != 1 {
		t.Fatalf("Approvals = %v, %v", approvals, err)
	}
	if approvals[0].Status != index.ApprovalApproved {
		t.Errorf("latest approval = %s, want approved", approvals[0].Status)
	}

	verdict.Status = "maybe"
	if err := r.ApproveAsset(verdict); KindOf(err) != KindInvalidState {
		t.Errorf("bad status accepted: %v", err)
	}
	if _, err := r.CommentOnAsset(index.CommentRow{AssetHash: hash, AssetType: "widget", Text: "x"}); KindOf(err) != KindInvalidState {
		t.Errorf("bad asset type accepted: %v", err)
	}
}

func TestLockListingAndRelease(t *testing.T) {
	r := initTestRepo(t)
	writeWorkFile(t, r, "a.txt", "v1")
	mustCommit(t, r, "base", "alice")

	if ok, err := r.LockFile("a.txt", "", "bob", "", 0); err != nil || !ok {
		t.Fatalf("LockFile = %v, %v", ok, err)
	}
	// Exclusive blocks everyone else, including shared requests.
	if ok, _ := r.LockFile("a.txt", "", "carol", index.LockShared, 0); ok {
		t.Error("shared lock granted over exclusive")
	}

	locks, err := r.Locks("")
	if err != nil || len(locks) != 1 {
		t.Fatalf("Locks = %v, %v", locks, err)
	}
	if locks[0].LockedBy != "bob" || locks[0].LockType != index.LockExclusive {
		t.Errorf("unexpected lock row: %+v", locks[0])
	}

	if ok, _ := r.UnlockFile("a.txt", "", "carol"); ok {
		t.Error("non-owner release succeeded")
	}
	if ok, err := r.UnlockFile("a.txt", "", "bob"); err != nil || !ok {
		t.Fatalf("owner release = %v, %v", ok, err)
	}
	locks, _ = r.Locks("")
	if len(locks) != 0 {
		t.Errorf("locks after release: %+v", locks)
	}
}
