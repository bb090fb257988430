package repo

import (
	"database/sql"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forester/internal/cas"
	"forester/internal/index"
	"forester/internal/object"
)

// meshDescriptorName is the file inside a working-set directory that
// marks it as a mesh.
const meshDescriptorName = "mesh.json"

// IngestedMesh is the result of normalizing one mesh descriptor.
type IngestedMesh struct {
	// Dir is the working-tree directory holding the descriptor.
	Dir string
	// Name is the mesh's object name.
	Name string
	Hash string
	// TextureHashes are the textures this mesh pulled in.
	TextureHashes []string
}

// IngestedTexture is one texture extracted during mesh ingestion.
type IngestedTexture struct {
	Hash   string
	Name   string
	Bytes  []byte
	Width  int
	Height int
	Chans  int
	Format string
}

// ingestMesh parses the descriptor at dir/mesh.json, stores every
// referenced texture, rewrites the references to texture hashes and
// stores the normalized mesh. With persist=false nothing is written and
// only hashes are computed.
func (r *Repository) ingestMesh(dir string, persist bool) (*IngestedMesh, []IngestedTexture, error) {
	descPath := filepath.Join(r.Root, filepath.FromSlash(dir), meshDescriptorName)
	data, err := os.ReadFile(descPath)
	if err != nil {
		return nil, nil, Wrap(KindIOError, err, "reading mesh descriptor %s", dir)
	}
	mesh, err := object.ParseMesh(data)
	if err != nil {
		return nil, nil, Wrap(KindCorruptObject, err, "mesh descriptor %s", dir)
	}

	var textures []IngestedTexture
	for i := range mesh.Textures {
		ref := &mesh.Textures[i]
		if ref.Hash != "" && ref.Data == "" && ref.File == "" {
			continue
		}

		var payload []byte
		switch {
		case ref.Data != "":
			payload, err = base64.StdEncoding.DecodeString(ref.Data)
			if err != nil {
				return nil, nil, Wrap(KindCorruptObject, err, "texture %s in mesh %s", ref.Name, dir)
			}
		case ref.File != "":
			// File references resolve relative to the descriptor's dir
			// and must not escape it.
			if strings.Contains(ref.File, "..") || filepath.IsAbs(ref.File) {
				return nil, nil, Errf(KindCorruptObject, "texture %s in mesh %s: bad file reference %q", ref.Name, dir, ref.File)
			}
			payload, err = os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(dir), filepath.FromSlash(ref.File)))
			if err != nil {
				return nil, nil, Wrap(KindIOError, err, "texture file %s in mesh %s", ref.File, dir)
			}
		default:
			return nil, nil, Errf(KindCorruptObject, "texture %s in mesh %s has no payload", ref.Name, dir)
		}

		tex := IngestedTexture{Name: ref.Name, Bytes: payload}
		info := object.DecodeTextureInfo(payload)
		tex.Width, tex.Height, tex.Chans, tex.Format = info.Width, info.Height, info.Channels, info.Format

		if persist {
			tex.Hash, err = r.Store.Put(object.KindTexture, payload)
			if err != nil {
				return nil, nil, Wrap(KindIOError, err, "storing texture %s", ref.Name)
			}
		} else {
			tex.Hash = cas.SumHex(payload)
		}
		textures = append(textures, tex)

		ref.Hash = tex.Hash
		ref.Data = ""
		ref.File = ""
	}

	hash, err := mesh.Hash()
	if err != nil {
		return nil, nil, Wrap(KindIOError, err, "hashing mesh %s", dir)
	}
	if persist {
		canonical, err := mesh.Canonical()
		if err != nil {
			return nil, nil, Wrap(KindIOError, err, "serializing mesh %s", dir)
		}
		if err := r.Store.PutAs(object.KindMesh, hash, canonical); err != nil {
			return nil, nil, Wrap(KindIOError, err, "storing mesh %s", dir)
		}
	}

	ing := &IngestedMesh{Dir: dir, Name: mesh.Name, Hash: hash}
	for _, t := range textures {
		ing.TextureHashes = append(ing.TextureHashes, t.Hash)
	}
	return ing, textures, nil
}

// recordAssets writes mesh and texture rows plus texture/commit links
// inside the commit transaction.
func (r *Repository) recordAssets(tx *sql.Tx, commitHash string, meshes []IngestedMesh, textures []IngestedTexture) error {
	now := time.Now().Unix()
	for _, m := range meshes {
		if err := r.DB.InsertMesh(tx, m.Hash, m.Name, now); err != nil {
			return Wrap(KindIOError, err, "recording mesh %s", m.Name)
		}
	}
	for _, t := range textures {
		row := index.TextureRow{
			Hash: t.Hash, Width: t.Width, Height: t.Height,
			Channels: t.Chans, Format: t.Format, CreatedAt: now,
		}
		if err := r.DB.InsertTexture(tx, row); err != nil {
			return Wrap(KindIOError, err, "recording texture %s", t.Name)
		}
		if err := r.DB.LinkTextureCommit(tx, t.Hash, commitHash); err != nil {
			return Wrap(KindIOError, err, "linking texture %s", t.Name)
		}
	}
	return nil
}
