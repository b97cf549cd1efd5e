// Package discovery walks a project tree and collects the source files
// that feed the chunker. Results are sorted so chunk boundaries are
// deterministic across runs of the same tree.
package discovery

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codesweep/codesweep/internal/core"
)

// Directories that never contain analyzable sources.
var defaultSkipDirs = map[string]struct{}{
	"target":       {},
	"build":        {},
	"out":          {},
	"bin":          {},
	"node_modules": {},
	"vendor":       {},
}

// Scanner implements core.FileDiscoverer over the local filesystem.
type Scanner struct {
	extensions map[string]struct{}
	skipDirs   map[string]struct{}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the default extension filter. Extensions are
// matched case-insensitively and may be given with or without the dot.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) {
		if len(exts) == 0 {
			return
		}
		s.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[ext] = struct{}{}
		}
	}
}

// WithSkipDirs adds directory names to the skip set.
func WithSkipDirs(names []string) Option {
	return func(s *Scanner) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" {
				s.skipDirs[name] = struct{}{}
			}
		}
	}
}

// NewScanner builds a Scanner. Without options it looks for Java
// sources and skips the usual build output directories.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		extensions: map[string]struct{}{".java": {}},
		skipDirs:   make(map[string]struct{}, len(defaultSkipDirs)),
	}
	for name := range defaultSkipDirs {
		s.skipDirs[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindSourceFiles walks rootPath and returns the absolute paths of all
// matching source files, sorted lexicographically.
func (s *Scanner) FindSourceFiles(ctx context.Context, rootPath string) ([]string, error) {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, core.ErrValidation(core.CodeDiscoveryFailed, "resolve root path").WithCause(err)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// Unreadable subtrees are skipped rather than aborting the scan.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if _, skip := s.skipDirs[name]; skip {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := s.extensions[ext]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, core.ErrExecution(core.CodeDiscoveryFailed, "walk project tree").WithCause(err)
	}

	sort.Strings(files)
	return files, nil
}

// PackageOf maps a source file path to a coarse package identifier,
// the path of its parent directory relative to root. Files directly
// under root map to ".".
func PackageOf(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.Dir(file)
	}
	dir := filepath.Dir(rel)
	return filepath.ToSlash(dir)
}

var _ core.FileDiscoverer = (*Scanner)(nil)
