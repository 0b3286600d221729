// Package host exposes the IDE to Neovim as a remote plugin. The current
// buffer is mirrored into the project and kept as the preview target.
package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"

	"go-live-ide/internal/app"
	"go-live-ide/internal/project"
)

// Previewer is the part of the IDE the editor bridge drives.
type Previewer interface {
	Start() error
	URL() string
	Open(ctx context.Context, name, content string) (project.File, error)
	CursorByName(ctx context.Context, name string, line, col int) error
}

// Commands is a state container for Neovim command handlers. It tracks
// the active buffer and forwards buffer text and cursor moves to the IDE.
type Commands struct {
	mu      sync.Mutex
	newIDE  func() (Previewer, error)
	ide     Previewer
	active  bool
	root    string
	current string

	lastCursorLine int
	lastCursorCol  int
}

// NewCommands returns handlers that build the IDE with newIDE on the first
// start. File names are made relative to root.
func NewCommands(root string, newIDE func() (Previewer, error)) *Commands {
	return &Commands{root: root, newIDE: newIDE}
}

// Register registers Neovim command/function handlers.
func Register(p *plugin.Plugin) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}
	commands := NewCommands(root, func() (Previewer, error) {
		return app.New(app.Options{Addr: "127.0.0.1:7777"})
	})

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name: "GoLiveIDEStart",
	}, commands.Start)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "GoLiveIDEInternalUpdate",
	}, commands.Update)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "GoLiveIDEInternalCursor",
	}, commands.Cursor)

	return nil
}

func (c *Commands) Start(v *nvim.Nvim) error {
	url, err := c.start()
	if err != nil {
		return err
	}
	if err := c.publishBuffer(v); err != nil {
		return err
	}
	if err := c.publishCursor(v); err != nil {
		return err
	}
	return v.Command(fmt.Sprintf(`echom "[go-live-ide] preview: %s"`, url))
}

func (c *Commands) start() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ide == nil {
		ide, err := c.newIDE()
		if err != nil {
			return "", err
		}
		if err := ide.Start(); err != nil {
			return "", err
		}
		c.ide = ide
	}
	c.active = true
	c.lastCursorLine = 0
	c.lastCursorCol = 0
	return c.ide.URL(), nil
}

func (c *Commands) Update(v *nvim.Nvim) error {
	if !c.isActive() {
		return nil
	}
	return c.publishBuffer(v)
}

func (c *Commands) Cursor(v *nvim.Nvim) error {
	if !c.isActive() {
		return nil
	}
	return c.publishCursor(v)
}

func (c *Commands) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Commands) publishBuffer(v *nvim.Nvim) error {
	buf, err := v.CurrentBuffer()
	if err != nil {
		return nil
	}
	lines, err := v.BufferLines(buf, 0, -1, true)
	if err != nil {
		return err
	}
	absPath, err := v.BufferName(buf)
	if err != nil {
		return err
	}
	return c.PublishSource(absPath, bytes.Join(lines, []byte("\n")))
}

// PublishSource mirrors a buffer into the project and previews it.
func (c *Commands) PublishSource(absPath string, source []byte) error {
	name := c.fileName(absPath)
	if _, err := c.ide.Open(context.Background(), name, string(source)); err != nil {
		return err
	}
	c.mu.Lock()
	c.current = name
	c.mu.Unlock()
	return nil
}

func (c *Commands) publishCursor(v *nvim.Nvim) error {
	var line int
	if err := v.Eval(`line(".")`, &line); err != nil {
		return err
	}
	var col int
	if err := v.Eval(`col(".")`, &col); err != nil {
		return err
	}
	return c.PublishCursor(line, col)
}

// PublishCursor forwards a cursor move on the current buffer. Repeats of
// the last position are dropped.
func (c *Commands) PublishCursor(line, col int) error {
	c.mu.Lock()
	if line == c.lastCursorLine && col == c.lastCursorCol {
		c.mu.Unlock()
		return nil
	}
	c.lastCursorLine = line
	c.lastCursorCol = col
	name := c.current
	c.mu.Unlock()

	if name == "" {
		return nil
	}
	return c.ide.CursorByName(context.Background(), name, line, col)
}

// fileName maps a buffer path onto a project name. Buffers outside root
// keep only their base name; unnamed buffers become "untitled".
func (c *Commands) fileName(absPath string) string {
	if absPath == "" {
		return "untitled"
	}
	if c.root != "" {
		if rel, err := filepath.Rel(c.root, absPath); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(absPath)
}
