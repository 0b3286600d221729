// Package app wires the virtual file store, the handlers, the virtual file
// server, the render orchestrator and the browser transport into one IDE.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go-live-ide/internal/compiler"
	"go-live-ide/internal/compiler/typst"
	"go-live-ide/internal/contracts"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/handler/markdown"
	"go-live-ide/internal/handler/typeset"
	"go-live-ide/internal/handler/web"
	"go-live-ide/internal/highlight"
	"go-live-ide/internal/preview"
	"go-live-ide/internal/project"
	httptransport "go-live-ide/internal/transport/http"
	"go-live-ide/internal/vfs"
	"go-live-ide/internal/viewer"
)

// Options configures an IDE.
type Options struct {
	Addr        string
	AllowAll    bool
	DefaultZoom float64

	// CompilerBinary locates the typst compiler.
	CompilerBinary string
	// CompilerVersion, when set, must appear in `typst --version`.
	CompilerVersion string
	FontPaths       []string
	WorkDir         string

	// Engine and Renderer replace the typst CLI, e.g. in tests.
	Engine   compiler.Engine
	Renderer compiler.VectorRenderer

	Logger *slog.Logger
}

// IDE is a coordinator between the file store, preview rendering and
// delivery to the browser.
type IDE struct {
	logger   *slog.Logger
	project  *project.Project
	registry *handler.Registry
	files    *vfs.Server
	hub      *httptransport.Hub
	orch     *preview.Orchestrator
	server   *httptransport.Server
	closers  []func() error
}

// New builds an IDE. Nothing runs until Start.
func New(opts Options) (*IDE, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CompilerBinary == "" {
		opts.CompilerBinary = "typst"
	}

	i := &IDE{
		logger:  logger,
		project: project.New(),
		files:   vfs.New(logger),
	}

	engine, renderer := opts.Engine, opts.Renderer
	if engine == nil {
		var engineOpts []typst.Option
		if opts.WorkDir != "" {
			engineOpts = append(engineOpts, typst.WithWorkDir(opts.WorkDir))
		}
		if len(opts.FontPaths) > 0 {
			engineOpts = append(engineOpts, typst.WithFontPaths(opts.FontPaths...))
		}
		e := typst.NewEngine(engineOpts...)
		i.closers = append(i.closers, e.Close)
		engine = e
	}
	if renderer == nil {
		renderer = typst.NewRenderer()
	}
	var prelude []compiler.PreludeStep
	if opts.CompilerVersion != "" {
		prelude = append(prelude, typst.VersionCheck(opts.CompilerBinary, opts.CompilerVersion))
	}

	typesetHandler := typeset.New(engine, renderer, typeset.Config{
		Locator:     opts.CompilerBinary,
		Prelude:     prelude,
		DefaultZoom: opts.DefaultZoom,
	}, logger)
	webHandler := web.New()
	registry, err := handler.NewRegistry(logger, webHandler,
		typesetHandler,
		markdown.New(),
		webHandler,
	)
	if err != nil {
		return nil, fmt.Errorf("build handler registry: %w", err)
	}
	i.registry = registry

	i.hub = httptransport.NewHub(i, logger)
	i.orch = preview.New(preview.Options{
		Project:  i.project,
		Registry: registry,
		Files:    i.files,
		Pane:     preview.NewPane(i.hub),
		Surface:  i.hub,
		Viewer:   viewer.New(opts.DefaultZoom),
		Logger:   logger,
	})
	i.server = httptransport.NewServer(httptransport.Config{
		Addr:     opts.Addr,
		AllowAll: opts.AllowAll,
	}, i, i.hub, i.files.Middleware, logger)

	i.project.OnChange(i.orch.HandleChange)
	i.project.OnChange(i.publishFiles)

	// The message loops run from the start so that files can be imported
	// and previewed before the listener is up.
	i.files.Start()
	i.hub.Start()
	return i, nil
}

// Start initializes editor modes and starts the HTTP listener.
func (i *IDE) Start() error {
	if err := i.registry.InitializeAll(); err != nil {
		i.logger.Warn("some editor modes are unavailable", "error", err)
	}
	if err := i.server.Start(); err != nil {
		return fmt.Errorf("start preview server: %w", err)
	}
	return nil
}

// Close stops serving and waits for in-flight renders.
func (i *IDE) Close(ctx context.Context) error {
	var errs []error
	if err := i.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	i.orch.Close()
	i.files.Stop()
	for _, c := range i.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// URL returns the browser URL of the IDE shell.
func (i *IDE) URL() string {
	return i.server.URL()
}

// Project returns the file store.
func (i *IDE) Project() *project.Project {
	return i.project
}

// Orchestrator returns the render orchestrator.
func (i *IDE) Orchestrator() *preview.Orchestrator {
	return i.orch
}

func (i *IDE) entry(f project.File) contracts.FileEntry {
	return contracts.FileEntry{
		ID:         f.ID,
		Name:       f.Name,
		FileType:   i.registry.FileType(f.Name),
		EditorMode: i.registry.EditorMode(f.Name),
	}
}

// Files lists the file tree in insertion order.
func (i *IDE) Files() []contracts.FileEntry {
	files := i.project.Files()
	out := make([]contracts.FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, i.entry(f))
	}
	return out
}

// publishFiles sends the file tree whenever a file appears, moves or goes.
func (i *IDE) publishFiles(c project.Change) {
	if c.Kind == project.Updated {
		return
	}
	i.hub.Publish(contracts.FilesMessage{Type: contracts.MessageTypeFiles, Files: i.Files()})
}

// File returns a file by id.
func (i *IDE) File(id string) (project.File, bool) {
	return i.project.Get(id)
}

// CreateFile adds a file. The first file created becomes the preview target.
func (i *IDE) CreateFile(ctx context.Context, name, content string) (project.File, error) {
	f, err := i.project.Create(name, content)
	if err != nil {
		return project.File{}, err
	}
	if i.orch.Target() == "" {
		if err := i.orch.SetTarget(ctx, f.ID); err != nil {
			return f, err
		}
	}
	return f, nil
}

// UpdateFile replaces a file's content. The preview reacts through the
// project's change notification.
func (i *IDE) UpdateFile(_ context.Context, id, content string) (project.File, error) {
	return i.project.Update(id, content)
}

// RenameFile renames a file.
func (i *IDE) RenameFile(_ context.Context, id, name string) (project.File, error) {
	return i.project.Rename(id, name)
}

// DeleteFile removes a file and closes its preview session.
func (i *IDE) DeleteFile(_ context.Context, id string) error {
	return i.project.Delete(id)
}

// Highlight returns the file's source as highlighted HTML.
func (i *IDE) Highlight(id string) (string, error) {
	f, ok := i.project.Get(id)
	if !ok {
		return "", fmt.Errorf("highlight %s: %w", id, project.ErrNotFound)
	}
	return highlight.HTML(i.registry.EditorMode(f.Name), f.Content)
}

// Edit applies an edit from the browser editor.
func (i *IDE) Edit(ctx context.Context, msg contracts.EditMessage) error {
	_, err := i.UpdateFile(ctx, msg.FileID, msg.Content)
	return err
}

// Select switches the preview target.
func (i *IDE) Select(ctx context.Context, msg contracts.SelectMessage) error {
	return i.orch.SetTarget(ctx, msg.FileID)
}

// Zoom applies a zoom action to the custom-render preview.
func (i *IDE) Zoom(_ context.Context, msg contracts.ZoomMessage) error {
	_, err := i.orch.Zoom(msg)
	return err
}

// Cursor records the editor cursor and, when the file is the previewed one,
// asks the preview to follow it.
func (i *IDE) Cursor(_ context.Context, msg contracts.CursorUpdateMessage) error {
	if _, err := i.project.SetCursor(msg.FileID, project.Cursor{Line: msg.Line, Col: msg.Col}, project.Selection{}); err != nil {
		return err
	}
	if msg.FileID != i.orch.Target() {
		return nil
	}
	i.hub.Publish(contracts.CursorMessage{
		Type: contracts.MessageTypeCursor,
		Line: msg.Line,
		Col:  msg.Col,
	})
	return nil
}

// Open makes the named file the preview target, creating or updating it
// with content. Editor bridges that address files by path use it.
func (i *IDE) Open(ctx context.Context, name, content string) (project.File, error) {
	f, err := i.project.Upsert(name, content)
	if err != nil {
		return project.File{}, err
	}
	if i.orch.Target() != f.ID {
		if err := i.orch.SetTarget(ctx, f.ID); err != nil {
			return f, err
		}
	}
	return f, nil
}

// CursorByName is Cursor for callers that address files by path.
func (i *IDE) CursorByName(ctx context.Context, name string, line, col int) error {
	f, ok := i.project.ByName(name)
	if !ok {
		return fmt.Errorf("cursor %s: %w", name, project.ErrNotFound)
	}
	return i.Cursor(ctx, contracts.CursorUpdateMessage{FileID: f.ID, Line: line, Col: col})
}
