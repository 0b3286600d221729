// Package project is the virtual file store: the single authoritative
// mapping of open files that every other component reads from.
package project

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for ids that are not in the project.
	ErrNotFound = errors.New("file not found")
	// ErrDuplicateName is returned when a name is already taken.
	ErrDuplicateName = errors.New("file name already exists")
	// ErrInvalidName is returned for empty or malformed names.
	ErrInvalidName = errors.New("invalid file name")
)

// Cursor is a 1-based line/column position in a file.
type Cursor struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Selection is a byte range in a file. Start == End means no selection.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// File is one virtual file. ID never changes; Name doubles as the virtual
// path and drives handler resolution.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Cursor    Cursor    `json:"cursor"`
	Selection Selection `json:"selection"`
}

// ChangeKind identifies what happened to a file.
type ChangeKind string

const (
	Created ChangeKind = "created"
	Updated ChangeKind = "updated"
	Renamed ChangeKind = "renamed"
	Deleted ChangeKind = "deleted"
)

// Change is delivered to listeners after the mutation has been applied.
type Change struct {
	Kind    ChangeKind
	File    File
	OldName string
}

// Project is an insertion-ordered collection of files keyed by id.
type Project struct {
	mu     sync.RWMutex
	order  []string
	files  map[string]*File
	byName map[string]string

	listeners []func(Change)
}

// New returns an empty project.
func New() *Project {
	return &Project{
		files:  make(map[string]*File),
		byName: make(map[string]string),
	}
}

// OnChange registers fn to be called after every mutation.
func (p *Project) OnChange(fn func(Change)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Project) notify(c Change) {
	// Copy the slice so listeners can register more listeners.
	p.mu.RLock()
	listeners := make([]func(Change), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// validName rejects names that would not be unique as typed: surrounding
// whitespace, empty segments and dot segments.
func validName(name string) bool {
	if name == "" || name != strings.TrimSpace(name) || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Create adds a file. Names must be unique among current files.
func (p *Project) Create(name, content string) (File, error) {
	if !validName(name) {
		return File{}, fmt.Errorf("create %q: %w", name, ErrInvalidName)
	}

	p.mu.Lock()
	if _, ok := p.byName[name]; ok {
		p.mu.Unlock()
		return File{}, fmt.Errorf("create %q: %w", name, ErrDuplicateName)
	}
	f := &File{
		ID:      uuid.NewString(),
		Name:    name,
		Content: content,
	}
	p.files[f.ID] = f
	p.byName[name] = f.ID
	p.order = append(p.order, f.ID)
	snapshot := *f
	p.mu.Unlock()

	p.notify(Change{Kind: Created, File: snapshot})
	return snapshot, nil
}

// Update replaces the content of a file.
func (p *Project) Update(id, content string) (File, error) {
	p.mu.Lock()
	f, ok := p.files[id]
	if !ok {
		p.mu.Unlock()
		return File{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	f.Content = content
	snapshot := *f
	p.mu.Unlock()

	p.notify(Change{Kind: Updated, File: snapshot})
	return snapshot, nil
}

// SetCursor records the editor cursor and selection. It does not notify:
// cursor movement never changes what a preview renders.
func (p *Project) SetCursor(id string, cursor Cursor, sel Selection) (File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[id]
	if !ok {
		return File{}, fmt.Errorf("cursor %s: %w", id, ErrNotFound)
	}
	f.Cursor = cursor
	f.Selection = sel
	return *f, nil
}

// Rename changes a file's name, keeping its id.
func (p *Project) Rename(id, name string) (File, error) {
	if !validName(name) {
		return File{}, fmt.Errorf("rename to %q: %w", name, ErrInvalidName)
	}

	p.mu.Lock()
	f, ok := p.files[id]
	if !ok {
		p.mu.Unlock()
		return File{}, fmt.Errorf("rename %s: %w", id, ErrNotFound)
	}
	if f.Name == name {
		snapshot := *f
		p.mu.Unlock()
		return snapshot, nil
	}
	if _, taken := p.byName[name]; taken {
		p.mu.Unlock()
		return File{}, fmt.Errorf("rename to %q: %w", name, ErrDuplicateName)
	}
	old := f.Name
	delete(p.byName, old)
	f.Name = name
	p.byName[name] = id
	snapshot := *f
	p.mu.Unlock()

	p.notify(Change{Kind: Renamed, File: snapshot, OldName: old})
	return snapshot, nil
}

// Delete removes a file.
func (p *Project) Delete(id string) error {
	p.mu.Lock()
	f, ok := p.files[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(p.files, id)
	delete(p.byName, f.Name)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	snapshot := *f
	p.mu.Unlock()

	p.notify(Change{Kind: Deleted, File: snapshot})
	return nil
}

// Get returns a copy of the file with the given id.
func (p *Project) Get(id string) (File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.files[id]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// ByName returns a copy of the file with the given name.
func (p *Project) ByName(name string) (File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byName[name]
	if !ok {
		return File{}, false
	}
	return *p.files[id], true
}

// Files returns copies of all files in insertion order.
func (p *Project) Files() []File {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]File, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.files[id])
	}
	return out
}

// Len returns the number of files.
func (p *Project) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Upsert creates name with content, or updates it when it already exists.
// Importers and editor bridges that address files by path use it.
func (p *Project) Upsert(name, content string) (File, error) {
	if f, ok := p.ByName(name); ok {
		if f.Content == content {
			return f, nil
		}
		return p.Update(f.ID, content)
	}
	return p.Create(name, content)
}
