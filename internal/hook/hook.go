// Package hook runs repository hook scripts from .DFM/hooks.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hook names.
const (
	PreCommit    = "pre-commit"
	PostCommit   = "post-commit"
	PreCheckout  = "pre-checkout"
	PostCheckout = "post-checkout"
)

// Names lists every hook installed into a fresh repository's hooks dir.
var Names = []string{PreCommit, PostCommit, PreCheckout, PostCheckout}

// DefaultTimeout bounds a hook script's run time when the repository
// config does not override it.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when a blocking hook exceeds its deadline.
var ErrTimeout = errors.New("hook timed out")

// RejectedError reports a blocking hook that exited non-zero.
type RejectedError struct {
	Name   string
	Output string
}

func (e *RejectedError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("hook %s rejected the operation", e.Name)
	}
	return fmt.Sprintf("hook %s rejected the operation: %s", e.Name, e.Output)
}

// Runner executes hook scripts for one repository.
type Runner struct {
	repoPath string
	hooksDir string
	timeout  time.Duration
}

// NewRunner returns a runner for the repository rooted at repoPath.
func NewRunner(repoPath string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		repoPath: repoPath,
		hooksDir: filepath.Join(repoPath, ".DFM", "hooks"),
		timeout:  timeout,
	}
}

// Exists reports whether a hook script is present and regular.
func (r *Runner) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(r.hooksDir, name))
	return err == nil && info.Mode().IsRegular()
}

// RunBlocking executes a hook that may abort the surrounding operation.
// A missing script succeeds silently. A non-zero exit returns
// *RejectedError; exceeding the deadline returns ErrTimeout.
func (r *Runner) RunBlocking(ctx context.Context, name string, env map[string]string) error {
	ok, output, err := r.run(ctx, name, env)
	if err != nil {
		return err
	}
	if !ok {
		return &RejectedError{Name: name, Output: output}
	}
	return nil
}

// RunAdvisory executes a hook whose failure must not abort the
// surrounding operation. Failures and timeouts are logged and swallowed.
func (r *Runner) RunAdvisory(ctx context.Context, name string, env map[string]string) {
	ok, output, err := r.run(ctx, name, env)
	switch {
	case err != nil:
		log.WithField("hook", name).WithError(err).Warn("hook failed")
	case !ok:
		log.WithFields(log.Fields{"hook": name, "output": output}).Warn("hook exited non-zero")
	}
}

func (r *Runner) run(ctx context.Context, name string, env map[string]string) (bool, string, error) {
	path := filepath.Join(r.hooksDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "", nil
		}
		return false, "", fmt.Errorf("stat hook %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		log.WithField("hook", name).Warn("hook exists but is not a regular file, skipping")
		return true, "", nil
	}
	// Hooks written from editors often land without the execute bit.
	if info.Mode()&0111 == 0 {
		if err := os.Chmod(path, info.Mode()|0755); err != nil {
			return false, "", fmt.Errorf("making hook %s executable: %w", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = r.repoPath
	cmd.Env = append(os.Environ(), "DFM_REPO_PATH="+r.repoPath)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Without a wait delay, Run blocks past the deadline while any child
	// still holds the output pipe.
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return false, "", fmt.Errorf("%w: %s after %s", ErrTimeout, name, r.timeout)
	}
	output := strings.TrimSpace(out.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, output, nil
		}
		return false, "", fmt.Errorf("running hook %s: %w", name, err)
	}
	if output != "" {
		log.WithField("hook", name).Debug(output)
	}
	return true, output, nil
}

// EnsureDir creates the hooks directory for a repository.
func EnsureDir(repoPath string) error {
	dir := filepath.Join(repoPath, ".DFM", "hooks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	return nil
}
