// Package typeset is the custom-render handler for typst documents. It
// drives an external compiler that is loaded lazily, once, on first use.
package typeset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"go-live-ide/internal/compiler"
	"go-live-ide/internal/contracts"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/mimes"
	"go-live-ide/internal/viewer"
)

// Extension is the file extension this handler claims.
const Extension = "typ"

// State is the lifecycle of the external compiler.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config selects and configures the external compiler.
type Config struct {
	// Locator finds the compile engine, e.g. the typst binary name.
	Locator string
	// RendererLocator finds the vector renderer. Empty means Locator.
	RendererLocator string
	// Prelude runs during engine initialization.
	Prelude []compiler.PreludeStep
	// DefaultZoom is applied on the first render of a session.
	DefaultZoom float64
}

// Handler renders typst files through a compiler.Engine and a
// compiler.VectorRenderer.
type Handler struct {
	engine   compiler.Engine
	renderer compiler.VectorRenderer
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	group   singleflight.Group

	// The engine holds one shared source set, so a render's
	// add-sources/compile/render sequence must not interleave with another.
	compileMu sync.Mutex
}

// New returns a handler. The compiler is not touched until the first render.
func New(engine compiler.Engine, renderer compiler.VectorRenderer, cfg Config, logger *slog.Logger) *Handler {
	if cfg.RendererLocator == "" {
		cfg.RendererLocator = cfg.Locator
	}
	if cfg.DefaultZoom <= 0 {
		cfg.DefaultZoom = viewer.DefaultZoom
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   engine,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With("component", "typeset"),
	}
}

func (h *Handler) Name() string { return "typeset" }

func (h *Handler) Capabilities() handler.Capabilities {
	return handler.Capabilities{CustomRender: true}
}

func (h *Handler) CanHandle(fileName string) bool {
	return mimes.Ext(fileName) == Extension
}

func (h *Handler) FileType(string) string   { return "typst" }
func (h *Handler) EditorMode(string) string { return LexerName }

// GeneratePreview never looks at content: typst previews are always custom
// rendered.
func (h *Handler) GeneratePreview(string, string) handler.Preview {
	return handler.Preview{Category: handler.CategoryCustomRender}
}

// State returns the compiler lifecycle state and the last load error.
func (h *Handler) State() (State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.lastErr
}

func (h *Handler) setState(s State, err error) {
	h.mu.Lock()
	h.state = s
	h.lastErr = err
	h.mu.Unlock()
}

// EnsureInitialized loads the compiler once. Concurrent callers share a
// single in-flight load and wait for its outcome. A failed load leaves the
// handler retryable.
func (h *Handler) EnsureInitialized(ctx context.Context) error {
	if s, _ := h.State(); s == Ready {
		return nil
	}

	ch := h.group.DoChan("init", func() (any, error) {
		if s, _ := h.State(); s == Ready {
			return nil, nil
		}
		h.setState(Initializing, nil)
		// The load is shared, so one caller giving up must not cancel it.
		if err := h.load(context.WithoutCancel(ctx)); err != nil {
			h.setState(Failed, err)
			h.logger.Warn("compiler load failed", "error", err)
			return nil, err
		}
		h.setState(Ready, nil)
		h.logger.Info("compiler ready", "locator", h.cfg.Locator)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load initializes the compile engine and the vector renderer concurrently.
func (h *Handler) load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.engine.Init(gctx, h.cfg.Locator, h.cfg.Prelude); err != nil {
			return fmt.Errorf("compiler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := h.renderer.Init(gctx, h.cfg.RendererLocator); err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// CreatePreviewUI describes the zoom toolbar, the output region and the
// diagnostics region of a typst preview session.
func (h *Handler) CreatePreviewUI(*viewer.State) contracts.PreviewUI {
	return contracts.PreviewUI{
		OutputID:      "typeset-output",
		DiagnosticsID: "typeset-diagnostics",
		ReadoutID:     "typeset-zoom",
		Controls: []contracts.Control{
			{ID: "typeset-zoom-out", Label: "−", Action: "out"},
			{ID: "typeset-zoom-in", Label: "+", Action: "in"},
			{ID: "typeset-fit", Label: "Fit width", Action: "fit"},
			{ID: "typeset-reset", Label: "100%", Action: "reset"},
		},
	}
}
