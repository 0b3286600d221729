package typeset

import (
	"context"
	"path"
	"strings"

	"go-live-ide/internal/compiler"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/viewer"
)

const (
	MsgCompiling = "Compiling…"
	MsgSuccess   = "Compiled successfully."
)

// SourcePath is the compiler path of a virtual file name.
func SourcePath(fileName string) string {
	return path.Clean("/" + fileName)
}

// Render compiles the previewed file against every project file and swaps
// the vector result into the output. Failures are reported through
// diagnostics and the output region; Render itself only fails on a
// canceled context.
func (h *Handler) Render(ctx context.Context, req handler.RenderRequest) error {
	if err := h.EnsureInitialized(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req.Diagnostics.SetText("Failed to load the typst compiler: " + err.Error())
		return nil
	}

	h.compileMu.Lock()
	defer h.compileMu.Unlock()

	// Every file goes in, so the document can import data, images and other
	// documents that sit next to it.
	var loadErrs []string
	for _, f := range req.Files {
		if err := h.engine.AddSource(SourcePath(f.Name), f.Content); err != nil {
			h.logger.Warn("add source failed", "file", f.Name, "error", err)
			loadErrs = append(loadErrs, err.Error())
		}
	}

	req.Diagnostics.SetText(MsgCompiling)
	res, err := h.engine.Compile(ctx, compiler.CompileOptions{EntryPath: SourcePath(req.FileName)})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req.Diagnostics.SetText("Compile error: " + err.Error())
		req.Output.Fail("Compilation failed: " + err.Error())
		return nil
	}
	if res.Artifact.Empty() {
		text := res.Diagnostics
		if text == "" {
			text = "Compilation failed."
		}
		req.Diagnostics.SetText(withNotes(text, loadErrs))
		req.Output.Fail("Compilation failed. See diagnostics for details.")
		return nil
	}

	markup, err := h.renderer.RenderToVector(ctx, compiler.RenderOptions{Artifact: res.Artifact})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req.Diagnostics.SetText("Render error: " + err.Error())
		req.Output.Fail("Rendering failed: " + err.Error())
		return nil
	}

	req.Output.Replace(handler.Artifact{Markup: markup, View: h.viewFor(req)})

	text := MsgSuccess
	if res.Diagnostics != "" {
		text += "\n" + res.Diagnostics
	}
	req.Diagnostics.SetText(withNotes(text, loadErrs))
	return nil
}

// viewFor picks the view the new artifact is inserted with. A preserved
// session keeps its zoom; anything else starts at the default zoom. The
// viewer is only read here: the output commits the view when it accepts
// the artifact.
func (h *Handler) viewFor(req handler.RenderRequest) viewer.Snapshot {
	z := viewer.Clamp(h.cfg.DefaultZoom)
	fresh := viewer.Snapshot{Zoom: z, Align: viewer.AlignFor(z)}
	if req.Viewer == nil || !req.PreserveZoom || !req.Viewer.Touched() {
		return fresh
	}
	if _, ok := req.Output.Current(); !ok {
		return fresh
	}
	return req.Viewer.Snapshot()
}

func withNotes(text string, notes []string) string {
	if len(notes) == 0 {
		return text
	}
	return text + "\n" + strings.Join(notes, "\n")
}
