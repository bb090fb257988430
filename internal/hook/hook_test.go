package hook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func newTestRunner(t *testing.T, timeout time.Duration) (*Runner, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts are POSIX shell")
	}
	repo := t.TempDir()
	if err := EnsureDir(repo); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	return NewRunner(repo, timeout), repo
}

func installHook(t *testing.T, repo, name, script string) {
	t.Helper()
	path := filepath.Join(repo, ".DFM", "hooks", name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("installing hook: %v", err)
	}
}

func TestMissingHookSucceeds(t *testing.T) {
	r, _ := newTestRunner(t, 0)
	if err := r.RunBlocking(context.Background(), PreCommit, nil); err != nil {
		t.Errorf("missing hook returned error: %v", err)
	}
}

func TestBlockingHookPassAndReject(t *testing.T) {
	r, repo := newTestRunner(t, 0)

	installHook(t, repo, PreCommit, "exit 0")
	if err := r.RunBlocking(context.Background(), PreCommit, nil); err != nil {
		t.Errorf("passing hook returned error: %v", err)
	}

	installHook(t, repo, PreCommit, "echo bad mesh topology >&2; exit 1")
	err := r.RunBlocking(context.Background(), PreCommit, nil)
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Output != "bad mesh topology" {
		t.Errorf("rejection output = %q", rejected.Output)
	}
}

func TestHookReceivesEnv(t *testing.T) {
	r, repo := newTestRunner(t, 0)
	marker := filepath.Join(repo, "seen.txt")
	installHook(t, repo, PreCommit, `printf '%s|%s|%s' "$DFM_BRANCH" "$DFM_AUTHOR" "$DFM_REPO_PATH" > `+marker)

	err := r.RunBlocking(context.Background(), PreCommit, map[string]string{
		"DFM_BRANCH": "main",
		"DFM_AUTHOR": "alice",
	})
	if err != nil {
		t.Fatalf("RunBlocking failed: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hook did not write marker: %v", err)
	}
	want := "main|alice|" + r.repoPath
	if string(data) != want {
		t.Errorf("hook env = %q, want %q", data, want)
	}
}

func TestBlockingHookTimeout(t *testing.T) {
	r, repo := newTestRunner(t, 100*time.Millisecond)
	installHook(t, repo, PreCheckout, "sleep 5")

	start := time.Now()
	err := r.RunBlocking(context.Background(), PreCheckout, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not interrupt the hook promptly")
	}
}

func TestAdvisoryHookFailureIsSwallowed(t *testing.T) {
	r, repo := newTestRunner(t, 0)
	installHook(t, repo, PostCommit, "exit 7")

	// Must not panic or propagate anything.
	r.RunAdvisory(context.Background(), PostCommit, map[string]string{"DFM_COMMIT_HASH": "abc"})
}

func TestHookMadeExecutable(t *testing.T) {
	r, repo := newTestRunner(t, 0)
	path := filepath.Join(repo, ".DFM", "hooks", PreCommit)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := r.RunBlocking(context.Background(), PreCommit, nil); err != nil {
		t.Errorf("non-executable hook not repaired: %v", err)
	}
}
