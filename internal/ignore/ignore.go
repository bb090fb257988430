// Package ignore provides gitignore-style pattern matching for the
// working-tree scanner.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// rule is one compiled ignore pattern.
type rule struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher decides which working-tree paths are excluded from scanning.
// Patterns follow gitignore semantics: later patterns win, "!" negates,
// a trailing "/" restricts to directories, a leading "/" anchors at the
// repository root.
type Matcher struct {
	rules []rule
}

// NewMatcher returns a matcher preloaded with the built-in exclusions.
// The repository's own metadata directory is always ignored and cannot
// be re-included by a negation.
func NewMatcher() *Matcher {
	m := &Matcher{}
	m.Add(Defaults()...)
	return m
}

// Add appends pattern lines. Blank lines and "#" comments are skipped.
func (m *Matcher) Add(lines ...string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r := rule{}
		if strings.HasPrefix(line, "!") {
			r.negated = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			r.anchored = true
			line = line[1:]
		}
		// A pattern without a slash matches its basename at any depth.
		if !r.anchored && !strings.Contains(line, "/") {
			line = "**/" + line
		}
		r.pattern = line
		m.rules = append(m.rules, r)
	}
}

// LoadFile merges patterns from a .dfmignore file. A missing file is not
// an error.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	return sc.Err()
}

// Match reports whether a repository-relative path is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	if path == ".DFM" || strings.HasPrefix(path, ".DFM/") {
		return true
	}

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			// A file inside a matching directory is ignored with it.
			if matchParentDir(r.pattern, path) {
				ignored = !r.negated
			}
			continue
		}
		if matchGlob(r.pattern, path) {
			ignored = !r.negated
		}
	}
	return ignored
}

func matchParentDir(pattern, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, path string) bool {
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	// "build" also covers everything below "build/".
	if !strings.HasSuffix(pattern, "/**") {
		if ok, _ := doublestar.Match(pattern+"/**", path); ok {
			return true
		}
	}
	return false
}

// Defaults returns the built-in exclusion list written into a fresh
// .dfmignore at init time.
func Defaults() []string {
	return []string{
		".DFM/",
		"*.blend1",
		"*.blend2",
		"*.blend3",
		".DS_Store",
		"Thumbs.db",
		"desktop.ini",
		"*.tmp",
		"*.temp",
		"*.swp",
		"*.swo",
		"*~",
		"__pycache__/",
		"*.pyc",
		"*.pyo",
		"*.max",
		"*.ma",
		"*.mb",
		"*.3ds",
	}
}

// WriteDefaultFile creates a commented .dfmignore with the built-in
// exclusions. An existing file is left alone.
func WriteDefaultFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("# Forester ignore rules\n")
	b.WriteString("# Lines starting with # are comments\n\n")
	for _, p := range Defaults() {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
