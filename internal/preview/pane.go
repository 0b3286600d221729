package preview

import (
	"sync"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/handler"
	"go-live-ide/internal/viewer"
)

// Sink receives every change the pane makes, as a browser message.
type Sink interface {
	Publish(msg any)
}

// Pane is the custom-render output and diagnostics region. It keeps what is
// currently displayed and forwards each change to its sink.
type Pane struct {
	mu          sync.Mutex
	sink        Sink
	rev         uint64
	current     *handler.Artifact
	diagnostics string
}

// NewPane returns an empty pane publishing to sink. A nil sink discards.
func NewPane(sink Sink) *Pane {
	return &Pane{sink: sink}
}

func (p *Pane) publish(msg any) {
	if p.sink != nil {
		p.sink.Publish(msg)
	}
}

// Current returns the displayed artifact.
func (p *Pane) Current() (handler.Artifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return handler.Artifact{}, false
	}
	return *p.current, true
}

// Replace swaps in a new artifact. Markup and transform leave in one message
// so the browser applies both in the same pass.
func (p *Pane) Replace(a handler.Artifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rev++
	p.current = &a
	p.publish(contracts.ArtifactMessage{
		Type:   contracts.MessageTypeArtifact,
		Markup: a.Markup,
		Zoom:   a.View.Zoom,
		Align:  string(a.View.Align),
		Origin: viewer.Origin,
		Rev:    p.rev,
	})
}

// Fail drops the displayed artifact in favor of an inline message.
func (p *Pane) Fail(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rev++
	p.current = nil
	p.publish(contracts.FailureMessage{
		Type:    contracts.MessageTypeFailure,
		Message: message,
		Rev:     p.rev,
	})
}

// SetText replaces the diagnostics text.
func (p *Pane) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diagnostics = text
	p.publish(contracts.DiagnosticsMessage{
		Type: contracts.MessageTypeDiagnostics,
		Text: text,
		Rev:  p.rev,
	})
}

// Diagnostics returns the current diagnostics text.
func (p *Pane) Diagnostics() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diagnostics
}

// ApplyView re-applies a zoom to the displayed artifact without swapping it.
// It reports false when nothing is displayed.
func (p *Pane) ApplyView(s viewer.Snapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	p.current.View = s
	p.publish(contracts.ViewerMessage{
		Type:   contracts.MessageTypeViewer,
		Zoom:   s.Zoom,
		Align:  string(s.Align),
		Origin: viewer.Origin,
	})
	return true
}

// Begin starts a new preview session: the previous artifact and diagnostics
// are dropped and the session is announced.
func (p *Pane) Begin(session contracts.SessionMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.diagnostics = ""
	session.Type = contracts.MessageTypeSession
	p.publish(session)
}
