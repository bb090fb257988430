package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"forester/internal/cas"
	"forester/internal/ignore"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanYieldsSortedRecords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "bee")
	writeFile(t, root, "a.txt", "ay")
	writeFile(t, root, "assets/chair.glb", "binary-ish")

	s, err := New(root, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	wantPaths := []string{"a.txt", "assets/chair.glb", "b.txt"}
	if len(records) != len(wantPaths) {
		t.Fatalf("got %d records, want %d", len(records), len(wantPaths))
	}
	for i, want := range wantPaths {
		if records[i].Path != want {
			t.Errorf("record %d path = %q, want %q", i, records[i].Path, want)
		}
	}
	if records[0].Hash != cas.SumHex([]byte("ay")) {
		t.Errorf("a.txt hash mismatch")
	}
	if records[0].Size != 2 {
		t.Errorf("a.txt size = %d, want 2", records[0].Size)
	}
}

func TestScanSkipsMetadataDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tracked.txt", "x")
	writeFile(t, root, ".DFM/objects/blobs/ab/cdef", "object bytes")

	s, _ := New(root, nil)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	for _, r := range records {
		if r.Path != "tracked.txt" {
			t.Errorf("unexpected record %q", r.Path)
		}
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestScanHonorsIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "k")
	writeFile(t, root, "scene.blend1", "backup")
	writeFile(t, root, "render_cache/frame.png", "pixels")

	m := &ignore.Matcher{}
	m.Add("*.blend1", "render_cache/")

	s, _ := New(root, m)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(records) != 1 || records[0].Path != "keep.txt" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestScanFollowsInternalSymlinksOnly(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, root, "real/inner.txt", "inner")
	writeFile(t, outside, "secret.txt", "secret")

	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "leak.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s, _ := New(root, nil)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	inner := 0
	for _, r := range records {
		if r.Path == "leak.txt" {
			t.Error("symlink escaping the tree was followed")
		}
		if r.Hash == cas.SumHex([]byte("inner")) {
			inner++
		}
	}
	// The link and the real dir share an inode: the target is scanned
	// under exactly one spelling, never twice.
	if inner != 1 {
		t.Errorf("inner file scanned %d times, want 1", inner)
	}
}

func TestHashFileLargeAndSmallAgree(t *testing.T) {
	root := t.TempDir()

	small := filepath.Join(root, "small.bin")
	if err := os.WriteFile(small, []byte("tiny"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := HashFile(small)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if got != cas.SumHex([]byte("tiny")) {
		t.Errorf("small-file hash mismatch")
	}

	// Cross the mmap threshold and check both code paths agree.
	big := filepath.Join(root, "big.bin")
	data := bytes.Repeat([]byte{0xAB}, mmapThreshold+1024)
	if err := os.WriteFile(big, data, 0644); err != nil {
		t.Fatal(err)
	}
	got, err = HashFile(big)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if got != cas.SumHex(data) {
		t.Errorf("large-file hash mismatch")
	}
}
