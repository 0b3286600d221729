// Package contracts holds the message shapes exchanged between the IDE
// process, the virtual file server loop and the browser shell.
package contracts

const (
	// MessageTypeUpdateFile upserts a file in the virtual file server table.
	MessageTypeUpdateFile = "updateFile"

	// MessageTypeReload points the static preview frame at a fresh URL.
	MessageTypeReload = "reload"
	// MessageTypeArtifact swaps the custom-render output for new vector markup.
	MessageTypeArtifact = "artifact"
	// MessageTypeFailure replaces the custom-render output with a failure banner.
	MessageTypeFailure = "failure"
	// MessageTypeDiagnostics replaces the diagnostics region text.
	MessageTypeDiagnostics = "diagnostics"
	// MessageTypeViewer re-applies zoom without swapping content.
	MessageTypeViewer = "viewer"
	// MessageTypeSession announces a new preview target and its controls.
	MessageTypeSession = "session"
	// MessageTypeFiles carries the file tree.
	MessageTypeFiles = "files"
	// MessageTypeCursor updates the browser cursor/scroll position.
	MessageTypeCursor = "cursor"

	// MessageTypeEdit replaces a file's content from the browser editor.
	MessageTypeEdit = "edit"
	// MessageTypeSelect switches the preview target.
	MessageTypeSelect = "select"
	// MessageTypeZoom asks for a zoom adjustment on the custom-render output.
	MessageTypeZoom = "zoom"
)

// UpdateFileMessage is the only message the virtual file server accepts.
type UpdateFileMessage struct {
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// ReloadMessage tells the shell to navigate the preview frame.
type ReloadMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Rev  uint64 `json:"rev"`
}

// ArtifactMessage carries rendered vector markup together with the transform
// that must be applied in the same pass as the swap.
type ArtifactMessage struct {
	Type   string  `json:"type"`
	Markup string  `json:"markup"`
	Zoom   float64 `json:"zoom"`
	Align  string  `json:"align"`
	Origin string  `json:"origin"`
	Rev    uint64  `json:"rev"`
}

// FailureMessage replaces the output region with an inline explanation.
type FailureMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Rev     uint64 `json:"rev"`
}

// DiagnosticsMessage carries plain diagnostics text.
type DiagnosticsMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Rev  uint64 `json:"rev"`
}

// ViewerMessage carries a zoom change for the existing artifact.
type ViewerMessage struct {
	Type   string  `json:"type"`
	Zoom   float64 `json:"zoom"`
	Align  string  `json:"align"`
	Origin string  `json:"origin"`
}

// Control is one preview toolbar affordance.
type Control struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

// PreviewUI describes the regions and controls of a preview session.
type PreviewUI struct {
	OutputID      string    `json:"outputId"`
	DiagnosticsID string    `json:"diagnosticsId"`
	ReadoutID     string    `json:"readoutId,omitempty"`
	Controls      []Control `json:"controls,omitempty"`
}

// SessionMessage announces the preview target the shell should display.
type SessionMessage struct {
	Type     string    `json:"type"`
	FileID   string    `json:"fileId"`
	FileName string    `json:"fileName"`
	Mode     string    `json:"mode"`
	UI       PreviewUI `json:"ui"`
}

// FileEntry is one node of the file tree.
type FileEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FileType   string `json:"fileType"`
	EditorMode string `json:"editorMode"`
}

// FilesMessage carries the whole file tree in insertion order.
type FilesMessage struct {
	Type  string      `json:"type"`
	Files []FileEntry `json:"files"`
}

// CursorMessage carries cursor position and revision metadata to the browser.
type CursorMessage struct {
	Type string `json:"type"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Rev  uint64 `json:"rev"`
}

// EditMessage replaces the content of a file.
type EditMessage struct {
	Type    string `json:"type"`
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

// SelectMessage switches the preview target.
type SelectMessage struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

// ZoomMessage requests a zoom action. Widths are only used by "fit".
type ZoomMessage struct {
	Type           string  `json:"type"`
	Action         string  `json:"action"`
	ArtifactWidth  float64 `json:"artifactWidth"`
	ContainerWidth float64 `json:"containerWidth"`
}

// CursorUpdateMessage reports the editor cursor for a file.
type CursorUpdateMessage struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
}
