// Package staging owns the scratch directories used while a document moves
// from upload to analysis.
package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"langgrade/internal/util"
)

// Directories relative to the staging root.
const (
	DocsDir     = "docs"
	ParsedDir   = "docs/parsed"
	UploadedDir = "docs/uploaded"
	ConvertDir  = "docs/tmp"
	ScratchDir  = "tmp"
)

// RequiredDirs lists every directory Ensure creates.
var RequiredDirs = []string{DocsDir, ParsedDir, UploadedDir, ConvertDir, ScratchDir}

// Area is a staging root on the local filesystem.
type Area struct {
	root string
}

// New returns an Area rooted at root (current directory when empty).
func New(root string) (*Area, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	return &Area{root: abs}, nil
}

// Root returns the absolute staging root.
func (a *Area) Root() string { return a.root }

// Dir returns the absolute path of a staging directory such as UploadedDir.
func (a *Area) Dir(rel string) string {
	return filepath.Join(a.root, filepath.FromSlash(rel))
}

// UploadedPath returns where a normalized upload named name lives.
// Only the base name is used.
func (a *Area) UploadedPath(name string) string {
	return filepath.Join(a.Dir(UploadedDir), filepath.Base(name))
}

// Ensure creates every required directory under the root.
func (a *Area) Ensure() error {
	paths := make([]string, 0, len(RequiredDirs))
	for _, rel := range RequiredDirs {
		paths = append(paths, a.Dir(rel))
	}
	return Ensure(paths...)
}

// Cleanup clears the given staging directories and removes the extra files.
// Failures are logged and never returned.
func (a *Area) Cleanup(ctx context.Context, dirs []string, files ...string) {
	logger := util.LoggerFromContext(ctx)
	paths := make([]string, 0, len(dirs))
	for _, rel := range dirs {
		paths = append(paths, a.Dir(rel))
	}
	if err := Clear(paths...); err != nil {
		logger.Warn("staging cleanup failed", "err", err)
	}
	for _, file := range files {
		if err := removeFile(file); err != nil {
			logger.Warn("staging file removal failed", "path", file, "err", err)
		}
	}
}

// Ensure creates each directory and its parents when absent.
func Ensure(paths ...string) error {
	for _, path := range paths {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", path, err)
		}
	}
	return nil
}

// Clear removes every entry under each directory. Missing directories are
// skipped; the remaining directories are still cleared when one fails.
func Clear(paths ...string) error {
	var errs []error
	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("read %s: %w", dir, err))
			continue
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Session is a request-scoped handle. Files registered with it are removed
// by Release, which callers defer right after Begin.
type Session struct {
	area  *Area
	mu    sync.Mutex
	files []string
}

// Begin opens a session on the area.
func (a *Area) Begin() *Session {
	return &Session{area: a}
}

// ScratchPath returns a path in the scratch directory and registers it for
// removal on Release.
func (s *Session) ScratchPath(name string) string {
	return s.Track(filepath.Join(s.area.Dir(ScratchDir), filepath.Base(name)))
}

// Track registers path for removal on Release and returns it.
func (s *Session) Track(path string) string {
	s.mu.Lock()
	s.files = append(s.files, path)
	s.mu.Unlock()
	return path
}

// Release removes every tracked file. It is safe to call more than once.
func (s *Session) Release(ctx context.Context) {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.mu.Unlock()
	logger := util.LoggerFromContext(ctx)
	for _, path := range files {
		if err := removeFile(path); err != nil {
			logger.Warn("release staged file", "path", path, "err", err)
		}
	}
}
