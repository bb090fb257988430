package repo

import "forester/internal/index"

// Asset types accepted by the review store.
const (
	AssetMesh   = "mesh"
	AssetBlob   = "blob"
	AssetCommit = "commit"
)

func validAssetType(t string) bool {
	return t == AssetMesh || t == AssetBlob || t == AssetCommit
}

// CommentOnAsset attaches a review note to an asset hash. The hash is
// not checked against the store: comments may outlive their assets.
func (r *Repository) CommentOnAsset(c index.CommentRow) (int64, error) {
	if !validAssetType(c.AssetType) {
		return 0, Errf(KindInvalidState, "unknown asset type %q", c.AssetType)
	}
	if c.Author == "" {
		c.Author = r.Config.Author
	}
	id, err := r.DB.AddComment(c)
	if err != nil {
		return 0, Wrap(KindIOError, err, "adding comment")
	}
	return id, nil
}

// Comments lists an asset's comments oldest first.
func (r *Repository) Comments(assetHash, assetType string) ([]*index.CommentRow, error) {
	comments, err := r.DB.Comments(assetHash, assetType)
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing comments")
	}
	return comments, nil
}

// ResolveComment marks a comment resolved.
func (r *Repository) ResolveComment(id int64) error {
	ok, err := r.DB.ResolveComment(id)
	if err != nil {
		return Wrap(KindIOError, err, "resolving comment")
	}
	if !ok {
		return Errf(KindUnknownRef, "no comment with id %d", id)
	}
	return nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(id int64) error {
	ok, err := r.DB.DeleteComment(id)
	if err != nil {
		return Wrap(KindIOError, err, "deleting comment")
	}
	if !ok {
		return Errf(KindUnknownRef, "no comment with id %d", id)
	}
	return nil
}

// ApproveAsset records a review verdict. The newest row per
// (asset, approver) is the current status.
func (r *Repository) ApproveAsset(a index.ApprovalRow) error {
	if !validAssetType(a.AssetType) {
		return Errf(KindInvalidState, "unknown asset type %q", a.AssetType)
	}
	switch a.Status {
	case index.ApprovalPending, index.ApprovalApproved, index.ApprovalRejected:
	default:
		return Errf(KindInvalidState, "unknown approval status %q", a.Status)
	}
	if a.Approver == "" {
		a.Approver = r.Config.Author
	}
	if _, err := r.DB.AddApproval(a); err != nil {
		return Wrap(KindIOError, err, "adding approval")
	}
	return nil
}

// Approvals returns the current verdict per approver for an asset.
func (r *Repository) Approvals(assetHash, assetType string) ([]*index.ApprovalRow, error) {
	approvals, err := r.DB.Approvals(assetHash, assetType)
	if err != nil {
		return nil, Wrap(KindIOError, err, "listing approvals")
	}
	return approvals, nil
}
