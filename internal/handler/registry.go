package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/viewer"
)

const (
	// DefaultOutputID and DefaultDiagnosticsID name the regions of the
	// minimal preview UI.
	DefaultOutputID      = "preview-output"
	DefaultDiagnosticsID = "preview-diagnostics"
)

type entry struct {
	h    Handler
	once sync.Once
	err  error
}

func (e *entry) initMode() error {
	e.once.Do(func() {
		mi, ok := e.h.(ModeInitializer)
		if !ok {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("initialize editor mode for %s: panic: %v", e.h.Name(), r)
			}
		}()
		if err := mi.InitializeEditorMode(); err != nil {
			e.err = fmt.Errorf("initialize editor mode for %s: %w", e.h.Name(), err)
		}
	})
	return e.err
}

// Registry resolves file names to handlers. The handler list is fixed at
// construction; the fallback claims anything the list does not.
type Registry struct {
	entries  []*entry
	fallback *entry
	logger   *slog.Logger
}

// NewRegistry builds a registry. Handlers are tried in the given order.
// A handler that declares CustomRender without implementing CustomRenderer
// is a configuration error.
func NewRegistry(logger *slog.Logger, fallback Handler, handlers ...Handler) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("handler registry: fallback handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger.With("component", "handlers")}
	if err := checkCapabilities(fallback); err != nil {
		return nil, err
	}
	for _, h := range handlers {
		if err := checkCapabilities(h); err != nil {
			return nil, err
		}
		r.entries = append(r.entries, &entry{h: h})
	}
	r.fallback = &entry{h: fallback}
	// The fallback may also appear in the ordered list. Share its entry so
	// the editor mode is still initialized once per handler instance.
	for _, e := range r.entries {
		if e.h == fallback {
			r.fallback = e
		}
	}
	return r, nil
}

func checkCapabilities(h Handler) error {
	if h.Capabilities().CustomRender {
		if _, ok := h.(CustomRenderer); !ok {
			return &CapabilityError{Handler: h.Name(), Capability: "render"}
		}
	}
	return nil
}

func (r *Registry) resolve(fileName string) *entry {
	for _, e := range r.entries {
		if e.h.CanHandle(fileName) {
			return e
		}
	}
	return r.fallback
}

// Resolve returns the first handler claiming fileName, or the fallback.
func (r *Registry) Resolve(fileName string) Handler {
	return r.resolve(fileName).h
}

// Handlers returns the ordered handlers followed by the fallback.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.entries)+1)
	for _, e := range r.entries {
		out = append(out, e.h)
	}
	if !r.contains(r.fallback) {
		out = append(out, r.fallback.h)
	}
	return out
}

func (r *Registry) contains(target *entry) bool {
	for _, e := range r.entries {
		if e == target {
			return true
		}
	}
	return false
}

// RequiresCustomRender reports whether previews of fileName are produced by
// a custom renderer rather than static HTML.
func (r *Registry) RequiresCustomRender(fileName string) bool {
	return r.Resolve(fileName).Capabilities().CustomRender
}

// GeneratePreview forwards to the resolved handler.
func (r *Registry) GeneratePreview(fileName, content string) Preview {
	return r.Resolve(fileName).GeneratePreview(fileName, content)
}

// Render forwards to the resolved handler's custom renderer.
func (r *Registry) Render(ctx context.Context, req RenderRequest) error {
	h := r.Resolve(req.FileName)
	cr, ok := h.(CustomRenderer)
	if !ok || !h.Capabilities().CustomRender {
		return &CapabilityError{Handler: h.Name(), Capability: "render", FileName: req.FileName}
	}
	return cr.Render(ctx, req)
}

// FileType forwards to the resolved handler.
func (r *Registry) FileType(fileName string) string {
	return r.Resolve(fileName).FileType(fileName)
}

// EditorMode returns the editor mode for fileName, initializing the
// resolved handler's mode the first time it is asked for.
func (r *Registry) EditorMode(fileName string) string {
	e := r.resolve(fileName)
	if err := e.initMode(); err != nil {
		r.logger.Warn("editor mode unavailable", "handler", e.h.Name(), "error", err)
	}
	return e.h.EditorMode(fileName)
}

// InitializeAll initializes every handler's editor mode. One handler
// failing does not stop the others; all failures are returned joined.
func (r *Registry) InitializeAll() error {
	var errs []error
	all := r.entries
	if !r.contains(r.fallback) {
		all = append(all[:len(all):len(all)], r.fallback)
	}
	for _, e := range all {
		if err := e.initMode(); err != nil {
			r.logger.Error("editor mode init failed", "handler", e.h.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PreviewUI returns the preview regions and controls for fileName.
func (r *Registry) PreviewUI(fileName string, state *viewer.State) contracts.PreviewUI {
	if p, ok := r.Resolve(fileName).(UIProvider); ok {
		return p.CreatePreviewUI(state)
	}
	return contracts.PreviewUI{
		OutputID:      DefaultOutputID,
		DiagnosticsID: DefaultDiagnosticsID,
	}
}
