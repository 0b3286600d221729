package host

import (
	"context"
	"errors"
	"testing"

	"go-live-ide/internal/project"
)

type cursorCall struct {
	name      string
	line, col int
}

type fakeIDE struct {
	starts  int
	opened  []string
	content map[string]string
	cursors []cursorCall
}

func (f *fakeIDE) Start() error { f.starts++; return nil }
func (f *fakeIDE) URL() string  { return "http://127.0.0.1:7777/" }

func (f *fakeIDE) Open(_ context.Context, name, content string) (project.File, error) {
	f.opened = append(f.opened, name)
	f.content[name] = content
	return project.File{ID: name, Name: name, Content: content}, nil
}

func (f *fakeIDE) CursorByName(_ context.Context, name string, line, col int) error {
	f.cursors = append(f.cursors, cursorCall{name, line, col})
	return nil
}

func newCommands(t *testing.T) (*Commands, *fakeIDE) {
	t.Helper()
	ide := &fakeIDE{content: map[string]string{}}
	c := NewCommands("/work", func() (Previewer, error) { return ide, nil })
	url, err := c.start()
	if err != nil {
		t.Fatal(err)
	}
	if url != ide.URL() {
		t.Errorf("url = %q", url)
	}
	return c, ide
}

func TestFileName(t *testing.T) {
	c := NewCommands("/work", nil)
	tests := []struct {
		in   string
		want string
	}{
		{"/work/index.html", "index.html"},
		{"/work/docs/main.typ", "docs/main.typ"},
		{"/elsewhere/notes.md", "notes.md"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		if got := c.fileName(tt.in); got != tt.want {
			t.Errorf("fileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStartBuildsIDEOnce(t *testing.T) {
	c, ide := newCommands(t)
	if _, err := c.start(); err != nil {
		t.Fatal(err)
	}
	if ide.starts != 1 {
		t.Errorf("starts = %d, want 1", ide.starts)
	}
}

func TestStartError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCommands("/work", func() (Previewer, error) { return nil, boom })
	if _, err := c.start(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.isActive() {
		t.Error("commands active after failed start")
	}
}

func TestPublishSourceAndCursor(t *testing.T) {
	c, ide := newCommands(t)

	if err := c.PublishCursor(3, 1); err != nil {
		t.Fatal(err)
	}
	if len(ide.cursors) != 0 {
		t.Errorf("cursor sent before any buffer: %+v", ide.cursors)
	}

	if err := c.PublishSource("/work/site/index.html", []byte("<h1>x</h1>")); err != nil {
		t.Fatal(err)
	}
	if ide.content["site/index.html"] != "<h1>x</h1>" {
		t.Errorf("content = %+v", ide.content)
	}

	if err := c.PublishCursor(4, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.PublishCursor(4, 2); err != nil {
		t.Fatal(err)
	}
	if len(ide.cursors) != 1 || ide.cursors[0] != (cursorCall{"site/index.html", 4, 2}) {
		t.Errorf("cursors = %+v", ide.cursors)
	}
}
