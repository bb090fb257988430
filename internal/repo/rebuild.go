package repo

import (
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"forester/internal/index"
	"forester/internal/object"
)

// RebuildStats reports what a rebuild recovered.
type RebuildStats struct {
	Commits  int
	Trees    int
	Meshes   int
	Textures int
	Branches int
	Skipped  int
}

// Rebuild reconstructs the metadata index from the object store and the
// ref files, for when forester.db is lost or corrupt. With backup, the
// old database file is copied aside first. Corrupt objects are skipped
// and counted, never deleted. Stash records live only in the index and
// are not recoverable.
func (r *Repository) Rebuild(backup bool) (*RebuildStats, error) {
	release, err := r.lockRepo()
	if err != nil {
		return nil, err
	}
	defer release()

	dbPath := filepath.Join(r.dfmDir, "forester.db")
	// Close before copying: a clean close checkpoints the WAL, so the
	// backup holds everything the old database held.
	r.DB.Close()
	if backup {
		if err := copyFile(dbPath, dbPath+".bak"); err != nil && !os.IsNotExist(err) {
			return nil, Wrap(KindIOError, err, "backing up database")
		}
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return nil, Wrap(KindIOError, err, "removing old database")
		}
	}
	db, err := index.Open(dbPath)
	if err != nil {
		return nil, Wrap(KindIOError, err, "recreating database")
	}
	r.DB = db

	stats := &RebuildStats{}
	tx, err := db.BeginTx()
	if err != nil {
		return nil, Wrap(KindIOError, err, "starting rebuild transaction")
	}

	// Commit objects rebuild the commit graph and, via their trees, the
	// flattened rows.
	commitHashes, err := r.Store.List(object.KindCommit)
	if err != nil {
		tx.Rollback()
		return nil, Wrap(KindIOError, err, "listing commits")
	}
	for _, hash := range commitHashes {
		data, err := r.Store.Get(object.KindCommit, hash)
		if err != nil || data == nil {
			stats.Skipped++
			continue
		}
		c, err := object.ParseCommit(data)
		if err != nil {
			log.WithField("hash", hash[:8]).Warn("skipping corrupt commit object")
			stats.Skipped++
			continue
		}

		row := index.CommitRow{
			Hash:      hash,
			Branch:    c.Branch,
			Parent:    c.Parent,
			Timestamp: c.Timestamp,
			Message:   c.Message,
			TreeHash:  c.TreeHash,
			Author:    c.Author,
			Type:      string(c.Type),
		}
		if err := db.InsertCommit(tx, row); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording commit %s", hash[:8])
		}
		stats.Commits++

		files, trees, err := r.collectCommitFiles(hash, c.TreeHash)
		if err != nil {
			log.WithField("hash", hash[:8]).WithError(err).Warn("partial tree for commit")
			stats.Skipped++
			continue
		}
		for treeHash, rows := range trees {
			if err := db.InsertTreeEntries(tx, treeHash, rows); err != nil {
				tx.Rollback()
				return nil, Wrap(KindIOError, err, "recording tree entries")
			}
			stats.Trees++
		}
		if err := db.InsertCommitFiles(tx, hash, files); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording commit files")
		}
	}

	now := time.Now().Unix()
	meshHashes, err := r.Store.List(object.KindMesh)
	if err != nil {
		tx.Rollback()
		return nil, Wrap(KindIOError, err, "listing meshes")
	}
	for _, hash := range meshHashes {
		data, err := r.Store.Get(object.KindMesh, hash)
		if err != nil || data == nil {
			stats.Skipped++
			continue
		}
		mesh, err := object.ParseMesh(data)
		if err != nil {
			log.WithField("hash", hash[:8]).Warn("skipping corrupt mesh object")
			stats.Skipped++
			continue
		}
		if err := db.InsertMesh(tx, hash, mesh.Name, now); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording mesh %s", hash[:8])
		}
		stats.Meshes++
	}

	textureHashes, err := r.Store.List(object.KindTexture)
	if err != nil {
		tx.Rollback()
		return nil, Wrap(KindIOError, err, "listing textures")
	}
	for _, hash := range textureHashes {
		data, err := r.Store.Get(object.KindTexture, hash)
		if err != nil || data == nil {
			stats.Skipped++
			continue
		}
		info := object.DecodeTextureInfo(data)
		row := index.TextureRow{
			Hash: hash, Width: info.Width, Height: info.Height,
			Channels: info.Channels, Format: info.Format, CreatedAt: now,
		}
		if err := db.InsertTexture(tx, row); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording texture %s", hash[:8])
		}
		stats.Textures++
	}

	// Branch refs come back from the ref mirror files.
	refDir := filepath.Join(r.dfmDir, "refs", "branches")
	entries, err := os.ReadDir(refDir)
	if err != nil && !os.IsNotExist(err) {
		tx.Rollback()
		return nil, Wrap(KindIOError, err, "reading branch refs")
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		tipBytes, err := os.ReadFile(filepath.Join(refDir, e.Name()))
		if err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "reading branch ref %s", e.Name())
		}
		tip := trimRef(tipBytes)
		if err := db.CreateBranch(tx, e.Name(), tip); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording branch %s", e.Name())
		}
		stats.Branches++
	}

	branch, _, err := r.Head()
	if err == nil && branch != "" {
		if err := db.SetMetaTx(tx, "head_branch", branch); err != nil {
			tx.Rollback()
			return nil, Wrap(KindIOError, err, "recording head")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, Wrap(KindIOError, err, "committing rebuild")
	}
	if err := db.Checkpoint(); err != nil {
		return nil, Wrap(KindIOError, err, "checkpointing index")
	}
	log.WithFields(log.Fields{
		"commits": stats.Commits, "branches": stats.Branches, "skipped": stats.Skipped,
	}).Info("index rebuilt")
	return stats, nil
}

// collectCommitFiles walks a commit's tree, returning its blob file rows
// and the flattened entries of every tree it visits.
func (r *Repository) collectCommitFiles(commitHash, rootTree string) ([]index.CommitFileRow, map[string][]index.TreeEntryRow, error) {
	files := []index.CommitFileRow{}
	trees := map[string][]index.TreeEntryRow{}

	var walk func(treeHash, prefix string) error
	walk = func(treeHash, prefix string) error {
		if _, done := trees[treeHash]; done {
			return nil
		}
		tree, err := r.loadTree(treeHash)
		if err != nil {
			return err
		}
		rows := make([]index.TreeEntryRow, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			rows = append(rows, index.TreeEntryRow{
				TreeHash: treeHash, Name: e.Name, Kind: string(e.Kind), ChildHash: e.Hash,
			})
		}
		trees[treeHash] = rows

		for _, e := range tree.Entries {
			rel := e.Name
			if prefix != "" {
				rel = prefix + "/" + e.Name
			}
			switch e.Kind {
			case object.EntryTree:
				if err := walk(e.Hash, rel); err != nil {
					return err
				}
			case object.EntryBlob:
				var size int64
				if info, err := os.Stat(r.Store.Path(object.KindBlob, e.Hash)); err == nil {
					size = info.Size()
				}
				files = append(files, index.CommitFileRow{
					CommitHash: commitHash, Path: rel, BlobHash: e.Hash, Size: size,
				})
			}
		}
		return nil
	}
	if err := walk(rootTree, ""); err != nil {
		return nil, nil, err
	}
	return files, trees, nil
}

func trimRef(data []byte) string {
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
