package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/project"
)

type fakeBackend struct {
	proj *project.Project

	mu      sync.Mutex
	edits   []contracts.EditMessage
	selects []string
	zooms   []contracts.ZoomMessage
	cursors []contracts.CursorUpdateMessage
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{proj: project.New()}
}

func (b *fakeBackend) Edit(_ context.Context, msg contracts.EditMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, msg)
	return nil
}

func (b *fakeBackend) Select(_ context.Context, msg contracts.SelectMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selects = append(b.selects, msg.FileID)
	return nil
}

func (b *fakeBackend) Zoom(_ context.Context, msg contracts.ZoomMessage) error {
	if msg.Action == "spin" {
		return fmt.Errorf("unknown zoom action %q", msg.Action)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.zooms = append(b.zooms, msg)
	return nil
}

func (b *fakeBackend) Cursor(_ context.Context, msg contracts.CursorUpdateMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursors = append(b.cursors, msg)
	return nil
}

func (b *fakeBackend) Files() []contracts.FileEntry {
	var out []contracts.FileEntry
	for _, f := range b.proj.Files() {
		out = append(out, contracts.FileEntry{ID: f.ID, Name: f.Name, FileType: "text"})
	}
	return out
}

func (b *fakeBackend) File(id string) (project.File, bool) { return b.proj.Get(id) }

func (b *fakeBackend) CreateFile(_ context.Context, name, content string) (project.File, error) {
	return b.proj.Create(name, content)
}

func (b *fakeBackend) UpdateFile(_ context.Context, id, content string) (project.File, error) {
	return b.proj.Update(id, content)
}

func (b *fakeBackend) RenameFile(_ context.Context, id, name string) (project.File, error) {
	return b.proj.Rename(id, name)
}

func (b *fakeBackend) DeleteFile(_ context.Context, id string) error { return b.proj.Delete(id) }

func (b *fakeBackend) Highlight(id string) (string, error) {
	f, ok := b.proj.Get(id)
	if !ok {
		return "", fmt.Errorf("highlight %s: %w", id, project.ErrNotFound)
	}
	return "<pre>" + f.Content + "</pre>", nil
}

func newTestServer(t *testing.T, b *fakeBackend, files func(http.Handler) http.Handler) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(b, nil)
	hub.Start()
	s := NewServer(Config{Addr: "127.0.0.1:0"}, b, hub, files, nil)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		hub.Stop()
	})
	return hub, ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndShell(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(), nil)

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["status"] != "ok" {
		t.Errorf("healthz body = %v, %v", body, err)
	}

	resp = do(t, http.MethodGet, ts.URL+"/", "")
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("shell Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestFileAPI(t *testing.T) {
	b := newFakeBackend()
	_, ts := newTestServer(t, b, nil)

	resp := do(t, http.MethodPost, ts.URL+"/api/files", `{"name":"a.css","content":"p{}"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created project.File
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate", http.MethodPost, "/api/files", `{"name":"a.css"}`, http.StatusConflict},
		{"invalid name", http.MethodPost, "/api/files", `{"name":""}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/files", `{`, http.StatusBadRequest},
		{"get", http.MethodGet, "/api/files/" + created.ID, "", http.StatusOK},
		{"get missing", http.MethodGet, "/api/files/nope", "", http.StatusNotFound},
		{"update", http.MethodPut, "/api/files/" + created.ID, `{"content":"h1{}"}`, http.StatusOK},
		{"update missing", http.MethodPut, "/api/files/nope", `{"content":""}`, http.StatusNotFound},
		{"rename", http.MethodPatch, "/api/files/" + created.ID, `{"name":"b.css"}`, http.StatusOK},
		{"select", http.MethodPut, "/api/preview", `{"fileId":"` + created.ID + `"}`, http.StatusNoContent},
		{"select missing", http.MethodPut, "/api/preview", `{"fileId":"nope"}`, http.StatusNotFound},
		{"zoom", http.MethodPut, "/api/preview/zoom", `{"action":"in"}`, http.StatusNoContent},
		{"zoom unknown", http.MethodPut, "/api/preview/zoom", `{"action":"spin"}`, http.StatusBadRequest},
		{"highlight", http.MethodGet, "/api/highlight/" + created.ID, "", http.StatusOK},
		{"delete", http.MethodDelete, "/api/files/" + created.ID, "", http.StatusNoContent},
		{"delete missing", http.MethodDelete, "/api/files/" + created.ID, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/files", "")
	var list []contracts.FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("files after delete = %+v", list)
	}
	if len(b.selects) != 1 || b.selects[0] != created.ID {
		t.Errorf("selects = %v", b.selects)
	}
}

func TestVirtualFilesMiddleware(t *testing.T) {
	files := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/preview/x.css" {
				w.Header().Set("Content-Type", "text/css")
				_, _ = w.Write([]byte("body{color:red}"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	_, ts := newTestServer(t, newFakeBackend(), files)

	resp := do(t, http.MethodGet, ts.URL+"/preview/x.css", "")
	if resp.Header.Get("Content-Type") != "text/css" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if resp := do(t, http.MethodGet, ts.URL+"/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("unmatched request not passed through: %d", resp.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHubReplaysStateOnConnect(t *testing.T) {
	hub, ts := newTestServer(t, newFakeBackend(), nil)

	hub.Publish(contracts.FilesMessage{Type: contracts.MessageTypeFiles})
	hub.Publish(contracts.SessionMessage{Type: contracts.MessageTypeSession, FileID: "1", Mode: "customRender"})
	hub.Publish(contracts.ArtifactMessage{Type: contracts.MessageTypeArtifact, Markup: "<svg/>", Zoom: 1.5, Rev: 1})
	hub.Publish(contracts.ViewerMessage{Type: contracts.MessageTypeViewer, Zoom: 2, Align: "left"})
	hub.Publish(contracts.DiagnosticsMessage{Type: contracts.MessageTypeDiagnostics, Text: "ok"})

	conn := dial(t, ts)
	want := []string{"files", "session", "artifact", "diagnostics"}
	for _, typ := range want {
		m := readType(t, conn)
		if m["type"] != typ {
			t.Fatalf("replayed %v, want type %s", m["type"], typ)
		}
		if typ == "artifact" && m["zoom"] != 2.0 {
			t.Errorf("replayed artifact zoom = %v, want the latest view", m["zoom"])
		}
	}

	hub.Reload("/preview/__preview__.html?t=1")
	m := readType(t, conn)
	if m["type"] != "reload" || m["rev"] != 1.0 {
		t.Errorf("broadcast = %v", m)
	}
}

func TestHubBroadcastsToAllShells(t *testing.T) {
	hub, ts := newTestServer(t, newFakeBackend(), nil)
	a := dial(t, ts)
	b := dial(t, ts)

	// A shell registered after the publish still gets it through replay.
	hub.Publish(contracts.DiagnosticsMessage{Type: contracts.MessageTypeDiagnostics, Text: "hello"})
	for _, conn := range []*websocket.Conn{a, b} {
		if m := readType(t, conn); m["text"] != "hello" {
			t.Errorf("message = %v", m)
		}
	}
}

func TestHubRoutesInbound(t *testing.T) {
	backend := newFakeBackend()
	_, ts := newTestServer(t, backend, nil)
	conn := dial(t, ts)

	msgs := []any{
		contracts.EditMessage{Type: contracts.MessageTypeEdit, FileID: "1", Content: "x"},
		contracts.SelectMessage{Type: contracts.MessageTypeSelect, FileID: "1"},
		contracts.ZoomMessage{Type: contracts.MessageTypeZoom, Action: "fit", ArtifactWidth: 10, ContainerWidth: 20},
		contracts.CursorUpdateMessage{Type: contracts.MessageTypeCursor, FileID: "1", Line: 3},
		map[string]string{"type": "unknown"},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		done := len(backend.cursors) == 1
		backend.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.edits) != 1 || backend.edits[0].Content != "x" {
		t.Errorf("edits = %+v", backend.edits)
	}
	if len(backend.selects) != 1 {
		t.Errorf("selects = %v", backend.selects)
	}
	if len(backend.zooms) != 1 || backend.zooms[0].ContainerWidth != 20 {
		t.Errorf("zooms = %+v", backend.zooms)
	}
	if len(backend.cursors) != 1 || backend.cursors[0].Line != 3 {
		t.Errorf("cursors = %+v", backend.cursors)
	}
}
