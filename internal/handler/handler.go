// Package handler defines the per-file-type preview strategy and the
// registry that dispatches file names to it.
package handler

import (
	"context"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/project"
	"go-live-ide/internal/viewer"
)

// Category says how a preview is produced.
type Category string

const (
	// CategoryStaticHTML previews are HTML documents served by the virtual
	// file server.
	CategoryStaticHTML Category = "staticHtml"
	// CategoryCustomRender previews are produced asynchronously by the
	// handler itself and written to an Output.
	CategoryCustomRender Category = "customRender"
)

// Preview is the result of GeneratePreview.
type Preview struct {
	Category Category
	Content  string
}

// Capabilities are declared by a handler and checked at registration time.
type Capabilities struct {
	CustomRender bool
}

// Handler owns preview generation for one content category.
type Handler interface {
	Name() string
	CanHandle(fileName string) bool
	GeneratePreview(fileName, content string) Preview
	FileType(fileName string) string
	EditorMode(fileName string) string
	Capabilities() Capabilities
}

// Artifact is rendered output together with the view it must be shown with.
type Artifact struct {
	Markup string
	View   viewer.Snapshot
}

// Output is the region a custom renderer writes into.
type Output interface {
	// Current returns the artifact currently displayed, if any.
	Current() (Artifact, bool)
	// Replace swaps in a new artifact. The view travels with the markup so
	// that content and transform change together; outputs bound to a
	// session commit it to the session's viewer state.
	Replace(Artifact)
	// Fail replaces the content with an inline failure message.
	Fail(message string)
}

// Diagnostics is the plain-text region describing the last render attempt.
type Diagnostics interface {
	SetText(text string)
}

// RenderRequest carries everything a custom renderer needs.
type RenderRequest struct {
	FileID       string
	FileName     string
	Output       Output
	Diagnostics  Diagnostics
	Files        []project.File
	PreserveZoom bool
	Viewer       *viewer.State
}

// CustomRenderer is implemented by handlers with CustomRender capability.
type CustomRenderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

// ModeInitializer performs a one-time editor-mode registration.
type ModeInitializer interface {
	InitializeEditorMode() error
}

// UIProvider builds the preview controls for a handler's sessions.
type UIProvider interface {
	CreatePreviewUI(state *viewer.State) contracts.PreviewUI
}
