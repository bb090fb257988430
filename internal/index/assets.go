package index

import (
	"database/sql"
	"fmt"
)

// TreeEntryRow is one flattened tree membership row, kept for fast
// enumeration without re-parsing tree objects.
type TreeEntryRow struct {
	TreeHash  string
	Name      string
	Kind      string
	ChildHash string
}

// InsertTreeEntries records a tree's entries inside a transaction.
// Re-recording an already known tree is a no-op.
func (db *DB) InsertTreeEntries(tx *sql.Tx, treeHash string, entries []TreeEntryRow) error {
	for _, e := range entries {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO tree_entries (tree_hash, name, kind, child_hash)
			VALUES (?, ?, ?, ?)
		`, treeHash, e.Name, e.Kind, e.ChildHash)
		if err != nil {
			return fmt.Errorf("inserting tree entry: %w", err)
		}
	}
	return nil
}

// TreeEntries returns the recorded entries of a tree.
func (db *DB) TreeEntries(treeHash string) ([]TreeEntryRow, error) {
	rows, err := db.conn.Query(`
		SELECT tree_hash, name, kind, child_hash FROM tree_entries
		WHERE tree_hash = ? ORDER BY name
	`, treeHash)
	if err != nil {
		return nil, fmt.Errorf("querying tree entries: %w", err)
	}
	defer rows.Close()

	var entries []TreeEntryRow
	for rows.Next() {
		var e TreeEntryRow
		if err := rows.Scan(&e.TreeHash, &e.Name, &e.Kind, &e.ChildHash); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteTreeEntries removes a tree's membership rows inside a transaction.
func (db *DB) DeleteTreeEntries(tx *sql.Tx, treeHash string) error {
	if _, err := tx.Exec(`DELETE FROM tree_entries WHERE tree_hash = ?`, treeHash); err != nil {
		return fmt.Errorf("deleting tree entries: %w", err)
	}
	return nil
}

// CommitFileRow is one file of a commit's snapshot, used by show/status.
type CommitFileRow struct {
	CommitHash string
	Path       string
	BlobHash   string
	Size       int64
}

// InsertCommitFiles records a commit's file list inside a transaction.
func (db *DB) InsertCommitFiles(tx *sql.Tx, commitHash string, files []CommitFileRow) error {
	for _, f := range files {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO commit_files (commit_hash, path, blob_hash, size)
			VALUES (?, ?, ?, ?)
		`, commitHash, f.Path, f.BlobHash, f.Size)
		if err != nil {
			return fmt.Errorf("inserting commit file: %w", err)
		}
	}
	return nil
}

// CommitFiles returns a commit's recorded files ordered by path.
func (db *DB) CommitFiles(commitHash string) ([]CommitFileRow, error) {
	rows, err := db.conn.Query(`
		SELECT commit_hash, path, blob_hash, size FROM commit_files
		WHERE commit_hash = ? ORDER BY path
	`, commitHash)
	if err != nil {
		return nil, fmt.Errorf("querying commit files: %w", err)
	}
	defer rows.Close()

	var files []CommitFileRow
	for rows.Next() {
		var f CommitFileRow
		if err := rows.Scan(&f.CommitHash, &f.Path, &f.BlobHash, &f.Size); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// InsertMesh records a mesh object inside a transaction.
func (db *DB) InsertMesh(tx *sql.Tx, hash, name string, createdAt int64) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO meshes (hash, name, created_at) VALUES (?, ?, ?)
	`, hash, name, createdAt)
	if err != nil {
		return fmt.Errorf("inserting mesh: %w", err)
	}
	return nil
}

// MeshName returns the recorded object name of a mesh, or "".
func (db *DB) MeshName(hash string) (string, error) {
	var name string
	err := db.conn.QueryRow(`SELECT name FROM meshes WHERE hash = ?`, hash).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying mesh: %w", err)
	}
	return name, nil
}

// AllMeshHashes returns every recorded mesh hash.
func (db *DB) AllMeshHashes() ([]string, error) {
	return db.hashColumn(`SELECT hash FROM meshes`)
}

// AllTextureHashes returns every recorded texture hash.
func (db *DB) AllTextureHashes() ([]string, error) {
	return db.hashColumn(`SELECT hash FROM textures`)
}

func (db *DB) hashColumn(query string) ([]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteMesh removes a mesh row inside a transaction.
func (db *DB) DeleteMesh(tx *sql.Tx, hash string) error {
	if _, err := tx.Exec(`DELETE FROM meshes WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("deleting mesh: %w", err)
	}
	return nil
}

// TextureRow is a texture object's derived metadata.
type TextureRow struct {
	Hash      string
	Width     int
	Height    int
	Channels  int
	Format    string
	CreatedAt int64
}

// InsertTexture records a texture object inside a transaction.
func (db *DB) InsertTexture(tx *sql.Tx, t TextureRow) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO textures (hash, width, height, channels, format, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.Hash, t.Width, t.Height, t.Channels, nullable(t.Format), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting texture: %w", err)
	}
	return nil
}

// LinkTextureCommit links a texture into a commit inside a transaction.
func (db *DB) LinkTextureCommit(tx *sql.Tx, textureHash, commitHash string) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO texture_commits (texture_hash, commit_hash) VALUES (?, ?)
	`, textureHash, commitHash)
	if err != nil {
		return fmt.Errorf("linking texture to commit: %w", err)
	}
	return nil
}

// CommitTextures returns the texture hashes linked to a commit.
func (db *DB) CommitTextures(commitHash string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT texture_hash FROM texture_commits WHERE commit_hash = ?
	`, commitHash)
	if err != nil {
		return nil, fmt.Errorf("querying texture links: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteTexture removes a texture row and its commit links inside a
// transaction.
func (db *DB) DeleteTexture(tx *sql.Tx, hash string) error {
	if _, err := tx.Exec(`DELETE FROM textures WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("deleting texture: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM texture_commits WHERE texture_hash = ?`, hash); err != nil {
		return fmt.Errorf("deleting texture links: %w", err)
	}
	return nil
}
