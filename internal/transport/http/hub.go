// Package httpserver handles all message traffic between the IDE process and
// the browser shell.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"go-live-ide/internal/contracts"
)

// Controller receives the browser's requests.
type Controller interface {
	Edit(ctx context.Context, msg contracts.EditMessage) error
	Select(ctx context.Context, msg contracts.SelectMessage) error
	Zoom(ctx context.Context, msg contracts.ZoomMessage) error
	Cursor(ctx context.Context, msg contracts.CursorUpdateMessage) error
}

// Hub fans browser messages out to every connected shell. It remembers the
// last message of each kind so a shell that connects late, or reconnects,
// sees the current state.
type Hub struct {
	logger     *slog.Logger
	controller Controller

	outbound   chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopLoop   chan struct{}
	done       chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once

	upgrader websocket.Upgrader
}

// NewHub returns a hub that is not yet running.
func NewHub(controller Controller, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "hub"),
		controller: controller,
		outbound:   make(chan any),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopLoop:   make(chan struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start launches the run loop.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		go h.runLoop()
	})
}

// Stop closes every connection and ends the run loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopLoop)
	})
}

// Publish hands a message to the run loop for every connected shell. It
// returns once the loop has taken it, so a shell connecting afterwards is
// replayed a state that includes it.
func (h *Hub) Publish(msg any) {
	select {
	case h.outbound <- msg:
	case <-h.stopLoop:
	}
}

// Reload points the static preview frame at url.
func (h *Hub) Reload(url string) {
	h.Publish(contracts.ReloadMessage{Type: contracts.MessageTypeReload, URL: url})
}

// ServeHTTP upgrades the connection, then reads browser requests until the
// connection closes. Requests are handled on the connection's goroutine.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.stopLoop:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := h.dispatch(r.Context(), raw); err != nil {
			h.logger.Warn("browser request failed", "error", err)
		}
	}
}

// dispatch routes one inbound message by its type field.
func (h *Hub) dispatch(ctx context.Context, raw []byte) error {
	if h.controller == nil || !gjson.ValidBytes(raw) {
		return nil
	}
	switch gjson.GetBytes(raw, "type").String() {
	case contracts.MessageTypeEdit:
		var msg contracts.EditMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		return h.controller.Edit(ctx, msg)
	case contracts.MessageTypeSelect:
		var msg contracts.SelectMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		return h.controller.Select(ctx, msg)
	case contracts.MessageTypeZoom:
		var msg contracts.ZoomMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		return h.controller.Zoom(ctx, msg)
	case contracts.MessageTypeCursor:
		var msg contracts.CursorUpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		return h.controller.Cursor(ctx, msg)
	}
	return nil
}

// replay is the last message of each kind, in the order a fresh shell needs
// them.
type replay struct {
	files       any
	session     any
	content     any
	diagnostics any
	cursor      any
}

func (r *replay) record(msg any) {
	switch m := msg.(type) {
	case contracts.FilesMessage:
		r.files = m
	case contracts.SessionMessage:
		r.session = m
		r.content = nil
		r.diagnostics = nil
		r.cursor = nil
	case contracts.ReloadMessage, contracts.ArtifactMessage, contracts.FailureMessage:
		r.content = m
	case contracts.ViewerMessage:
		if a, ok := r.content.(contracts.ArtifactMessage); ok {
			a.Zoom, a.Align, a.Origin = m.Zoom, m.Align, m.Origin
			r.content = a
		}
	case contracts.DiagnosticsMessage:
		r.diagnostics = m
	case contracts.CursorMessage:
		r.cursor = m
	}
}

func (r *replay) messages() []any {
	var out []any
	for _, m := range []any{r.files, r.session, r.content, r.diagnostics, r.cursor} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// runLoop serializes state updates and websocket writes on a single goroutine.
func (h *Hub) runLoop() {
	defer close(h.done)
	conns := make(map[*websocket.Conn]struct{})
	var last replay
	var rev uint64

	for {
		select {
		case msg := <-h.outbound:
			if r, ok := msg.(contracts.ReloadMessage); ok {
				rev++
				r.Rev = rev
				msg = r
			}
			last.record(msg)
			for conn := range conns {
				if !writeMessage(conn, msg) {
					delete(conns, conn)
				}
			}

		case c := <-h.register:
			conns[c] = struct{}{}
			for _, msg := range last.messages() {
				if !writeMessage(c, msg) {
					delete(conns, c)
					break
				}
			}
			h.logger.Debug("shell connected", "connections", len(conns))

		case c := <-h.unregister:
			if _, ok := conns[c]; ok {
				_ = c.Close()
				delete(conns, c)
			}

		case <-h.stopLoop:
			for conn := range conns {
				_ = conn.Close()
			}
			return
		}
	}
}

// writeMessage writes a JSON message and reports whether the connection is usable.
func writeMessage(conn *websocket.Conn, v any) bool {
	if err := conn.WriteJSON(v); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
