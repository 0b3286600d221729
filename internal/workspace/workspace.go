// Package workspace seeds the project from a directory on disk and, when
// asked, keeps it in sync with later changes to that directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"go-live-ide/internal/mimes"
	"go-live-ide/internal/project"
)

// MaxFileSize is the largest file imported.
const MaxFileSize = 1 << 20

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Filter selects files by slash-separated relative path.
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether rel is included and not excluded. An empty include
// list includes everything.
func (f Filter) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if len(f.Include) > 0 && !matchesAny(rel, f.Include) {
		return false
	}
	return !matchesAny(rel, f.Exclude)
}

func matchesAny(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.PathMatch(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.PathMatch(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Importer copies text files under a root directory into a project.
type Importer struct {
	proj   *project.Project
	root   string
	filter Filter
	logger *slog.Logger
}

// New returns an importer for root.
func New(proj *project.Project, root string, filter Filter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		proj:   proj,
		root:   root,
		filter: filter,
		logger: logger.With("component", "workspace", "root", root),
	}
}

// Import walks the root and upserts every matching text file. It returns the
// number of files imported.
func (i *Importer) Import(ctx context.Context) (int, error) {
	n, err := i.importTree(ctx, i.root)
	if err != nil {
		return n, fmt.Errorf("import %s: %w", i.root, err)
	}
	i.logger.Info("workspace imported", "files", n)
	return n, nil
}

// importTree upserts every matching text file under dir.
func (i *Importer) importTree(ctx context.Context, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ok, err := i.importFile(p)
		if err != nil {
			i.logger.Warn("skipping file", "path", p, "error", err)
			return nil
		}
		if ok {
			n++
		}
		return nil
	})
	return n, err
}

func (i *Importer) rel(p string) (string, bool) {
	rel, err := filepath.Rel(i.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// importFile upserts one file. It reports false for files the filter or the
// text check rejects.
func (i *Importer) importFile(p string) (bool, error) {
	rel, ok := i.rel(p)
	if !ok || !i.filter.Match(rel) {
		return false, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() > MaxFileSize {
		return false, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return false, err
	}
	if len(data) > 0 && !mimes.IsText(data) {
		return false, nil
	}
	if _, err := i.proj.Upsert(rel, string(data)); err != nil {
		return false, err
	}
	return true, nil
}

// Watch applies changes under the root to the project until ctx is done.
func (i *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := i.addRecursive(w, i.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			i.apply(ctx, w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn("watch error", "error", err)
		}
	}
}

func (i *Importer) apply(ctx context.Context, w *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		rel, ok := i.rel(event.Name)
		if !ok {
			return
		}
		if f, ok := i.proj.ByName(rel); ok {
			if err := i.proj.Delete(f.ID); err != nil && !errors.Is(err, project.ErrNotFound) {
				i.logger.Warn("remove failed", "path", rel, "error", err)
			}
		}
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !skipDirs[info.Name()] {
			if err := i.addRecursive(w, event.Name); err != nil {
				i.logger.Warn("watch directory failed", "path", event.Name, "error", err)
			}
			// Files moved or written in before the watch was added produce
			// no events of their own.
			if _, err := i.importTree(ctx, event.Name); err != nil {
				i.logger.Warn("import directory failed", "path", event.Name, "error", err)
			}
		}
		return
	}
	if _, err := i.importFile(event.Name); err != nil {
		i.logger.Warn("reimport failed", "path", event.Name, "error", err)
	}
}

func (i *Importer) addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
