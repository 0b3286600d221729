// Package preview decides when and how the preview refreshes. Static previews
// are pushed through the virtual file server; custom-render previews are
// rendered asynchronously into a Pane.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/project"
	"go-live-ide/internal/vfs"
	"go-live-ide/internal/viewer"
)

// FitPadding is the horizontal padding of the output region, per side.
const FitPadding = 16

// Zoom actions accepted by Zoom.
const (
	ZoomIn    = "in"
	ZoomOut   = "out"
	ZoomFit   = "fit"
	ZoomReset = "reset"

	zoomStep = 1.2
)

// FileServer accepts served-file upserts.
type FileServer interface {
	Send(ctx context.Context, msg contracts.UpdateFileMessage) error
}

// Surface is the navigable frame that shows static previews.
type Surface interface {
	Reload(url string)
}

// Options wires an Orchestrator.
type Options struct {
	Project  *project.Project
	Registry *handler.Registry
	Files    FileServer
	Pane     *Pane
	Surface  Surface
	Viewer   *viewer.State
	Logger   *slog.Logger
}

// Orchestrator owns the preview target and the render generation counter.
type Orchestrator struct {
	project  *project.Project
	registry *handler.Registry
	files    FileServer
	pane     *Pane
	surface  Surface
	viewer   *viewer.State
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	staticMu sync.Mutex

	mu         sync.Mutex
	target     string
	generation uint64
	lastStamp  int64
	closed     bool
}

// New returns an orchestrator with no preview target.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Viewer == nil {
		opts.Viewer = viewer.New(0)
	}
	if opts.Pane == nil {
		opts.Pane = NewPane(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		project:  opts.Project,
		registry: opts.Registry,
		files:    opts.Files,
		pane:     opts.Pane,
		surface:  opts.Surface,
		viewer:   opts.Viewer,
		logger:   opts.Logger.With("component", "preview"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Target returns the id of the previewed file, or "".
func (o *Orchestrator) Target() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// Generation returns the number of the latest render invocation.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Viewer returns the viewer state of the preview session.
func (o *Orchestrator) Viewer() *viewer.State {
	return o.viewer
}

// Pane returns the custom-render output region.
func (o *Orchestrator) Pane() *Pane {
	return o.pane
}

func (o *Orchestrator) nextGeneration() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	return o.generation
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

// stamp returns a strictly increasing cache-busting value.
func (o *Orchestrator) stamp() int64 {
	now := time.Now().UnixMilli()
	o.mu.Lock()
	defer o.mu.Unlock()
	if now <= o.lastStamp {
		now = o.lastStamp + 1
	}
	o.lastStamp = now
	return now
}

// SetTarget switches the preview to the file id and renders it fresh,
// establishing a new viewer baseline. Unknown ids leave the current preview
// in place.
func (o *Orchestrator) SetTarget(ctx context.Context, id string) error {
	f, ok := o.project.Get(id)
	if !ok {
		o.logger.Warn("preview target not found", "id", id)
		return nil
	}

	o.mu.Lock()
	o.target = id
	o.mu.Unlock()

	o.viewer.Reset()
	o.pane.Begin(contracts.SessionMessage{
		FileID:   f.ID,
		FileName: f.Name,
		Mode:     string(o.category(f.Name)),
		UI:       o.registry.PreviewUI(f.Name, o.viewer),
	})
	return o.render(ctx, f, false)
}

// FileChanged applies the refresh policy to an edit of the file id. A
// custom-render target re-renders on any change and keeps its zoom; a static
// target only re-renders when it is the file that changed.
func (o *Orchestrator) FileChanged(ctx context.Context, id string) error {
	target := o.Target()
	if target == "" {
		return nil
	}
	f, ok := o.project.Get(target)
	if !ok {
		o.logger.Warn("preview target no longer exists", "id", target)
		return nil
	}
	if o.registry.RequiresCustomRender(f.Name) {
		o.renderCustom(f, true)
		return nil
	}
	if id != target {
		return nil
	}
	return o.renderStatic(ctx, f)
}

// HandleChange is a project listener. Deleting the previewed file closes the
// preview session; every other change goes through FileChanged.
func (o *Orchestrator) HandleChange(c project.Change) {
	if c.Kind == project.Deleted && c.File.ID == o.Target() {
		o.mu.Lock()
		o.target = ""
		o.generation++
		o.mu.Unlock()
		o.viewer.Reset()
		o.pane.Fail(fmt.Sprintf("%s was deleted.", c.File.Name))
		o.pane.SetText("")
		return
	}
	if err := o.FileChanged(o.ctx, c.File.ID); err != nil {
		o.logger.Error("preview refresh failed", "file", c.File.Name, "error", err)
	}
}

// Refresh re-renders the current target as if it had just been edited.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.FileChanged(ctx, o.Target())
}

func (o *Orchestrator) category(name string) handler.Category {
	if o.registry.RequiresCustomRender(name) {
		return handler.CategoryCustomRender
	}
	return handler.CategoryStaticHTML
}

func (o *Orchestrator) render(ctx context.Context, f project.File, preserveZoom bool) error {
	if o.registry.RequiresCustomRender(f.Name) {
		o.renderCustom(f, preserveZoom)
		return nil
	}
	return o.renderStatic(ctx, f)
}

// renderStatic pushes every file and the generated document to the file
// server, then points the surface at the document.
func (o *Orchestrator) renderStatic(ctx context.Context, f project.File) error {
	gen := o.nextGeneration()

	// One static render pushes at a time; a render overtaken while it
	// waited or pushed stops before the document and the reload.
	o.staticMu.Lock()
	defer o.staticMu.Unlock()
	if !o.isCurrent(gen) {
		return nil
	}

	pv := o.registry.GeneratePreview(f.Name, f.Content)
	for _, file := range o.project.Files() {
		if err := o.send(ctx, file.Name, file.Content); err != nil {
			return err
		}
	}
	if !o.isCurrent(gen) {
		return nil
	}
	if err := o.send(ctx, vfs.PreviewName, pv.Content); err != nil {
		return err
	}
	if !o.isCurrent(gen) {
		return nil
	}
	if o.surface != nil {
		o.surface.Reload(vfs.PreviewPath() + "?t=" + strconv.FormatInt(o.stamp(), 10))
	}
	return nil
}

func (o *Orchestrator) send(ctx context.Context, name, content string) error {
	err := o.files.Send(ctx, contracts.UpdateFileMessage{
		Type:     contracts.MessageTypeUpdateFile,
		FileName: name,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}
	return nil
}

// renderCustom starts an asynchronous render. Its writes reach the pane only
// while it is the latest render invocation.
func (o *Orchestrator) renderCustom(f project.File, preserveZoom bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.generation++
	gen := o.generation
	o.wg.Add(1)
	o.mu.Unlock()

	g := &guard{o: o, gen: gen}
	req := handler.RenderRequest{
		FileID:       f.ID,
		FileName:     f.Name,
		Output:       g,
		Diagnostics:  g,
		Files:        o.project.Files(),
		PreserveZoom: preserveZoom,
		Viewer:       o.viewer,
	}

	go func() {
		defer o.wg.Done()
		err := o.registry.Render(o.ctx, req)
		var capErr *handler.CapabilityError
		switch {
		case errors.As(err, &capErr):
			o.logger.Error("render misconfigured", "file", f.Name, "error", err)
			g.SetText(err.Error())
			g.Fail("Preview unavailable: " + err.Error())
		case err != nil:
			o.logger.Debug("render abandoned", "file", f.Name, "generation", gen, "error", err)
		}
	}()
}

// Zoom applies a zoom action to the custom-render session and re-applies the
// result to the displayed artifact.
func (o *Orchestrator) Zoom(msg contracts.ZoomMessage) (viewer.Snapshot, error) {
	var s viewer.Snapshot
	switch msg.Action {
	case ZoomIn:
		s = o.viewer.Adjust(zoomStep)
	case ZoomOut:
		s = o.viewer.Adjust(1 / zoomStep)
	case ZoomFit:
		s = o.viewer.FitToWidth(msg.ArtifactWidth, msg.ContainerWidth, FitPadding)
	case ZoomReset:
		s = o.viewer.Set(1)
	default:
		return o.viewer.Snapshot(), fmt.Errorf("unknown zoom action %q", msg.Action)
	}
	o.pane.ApplyView(s)
	return s, nil
}

// Wait blocks until every started custom render has returned. It must not
// run concurrently with calls that start renders.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close abandons in-flight renders and waits for them. No render starts
// afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// guard forwards Output and Diagnostics writes of one render invocation to
// the pane, dropping them once a newer invocation has started.
type guard struct {
	o   *Orchestrator
	gen uint64
}

func (g *guard) write(fn func()) {
	g.o.mu.Lock()
	defer g.o.mu.Unlock()
	if g.o.generation != g.gen {
		return
	}
	fn()
}

func (g *guard) Current() (handler.Artifact, bool) {
	return g.o.pane.Current()
}

// Replace commits the artifact's view to the session viewer together with
// the swap, so a dropped render leaves the viewer untouched.
func (g *guard) Replace(a handler.Artifact) {
	g.write(func() {
		if a.View.Zoom > 0 {
			g.o.viewer.Set(a.View.Zoom)
		}
		g.o.pane.Replace(a)
	})
}

func (g *guard) Fail(message string) {
	g.write(func() { g.o.pane.Fail(message) })
}

func (g *guard) SetText(text string) {
	g.write(func() { g.o.pane.SetText(text) })
}
