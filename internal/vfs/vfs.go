// Package vfs is the virtual file server: an in-memory table of served files
// owned by a single goroutine. The rest of the process talks to it only by
// message.
package vfs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/mimes"
)

const (
	// Prefix is the reserved URL prefix for served files.
	Prefix = "/preview/"
	// PreviewName is the reserved name of the generated preview document.
	PreviewName = "__preview__.html"
)

// ErrStopped is returned by Send after Stop.
var ErrStopped = errors.New("virtual file server stopped")

// Entry is one served file.
type Entry struct {
	Content     string
	ContentType string
}

type update struct {
	msg contracts.UpdateFileMessage
	ack chan error
}

type lookup struct {
	name  string
	reply chan lookupResult
}

type lookupResult struct {
	entry Entry
	ok    bool
}

// Server serves the latest content pushed for every file name. Entries for
// files deleted or renamed in the project are not evicted.
type Server struct {
	logger *slog.Logger

	updates chan update
	lookups chan lookup
	active  chan struct{}
	stop    chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a server that is not yet running.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger.With("component", "vfs"),
		updates: make(chan update),
		lookups: make(chan lookup),
		active:  make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// PathFor returns the URL path a file name is served at.
func PathFor(name string) string {
	return Prefix + strings.TrimPrefix(name, "/")
}

// PreviewPath is the URL path of the generated preview document.
func PreviewPath() string {
	return PathFor(PreviewName)
}

// Start launches the run loop. Calling it again is a no-op.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go s.runLoop()
	})
}

// Active is closed once the run loop accepts messages.
func (s *Server) Active() <-chan struct{} {
	return s.active
}

// Stop ends the run loop and waits for it to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	select {
	case <-s.active:
		<-s.done
	default:
	}
}

// Send upserts a file and returns once the table holds it. It waits for the
// server to become active first.
func (s *Server) Send(ctx context.Context, msg contracts.UpdateFileMessage) error {
	if msg.Type == "" {
		msg.Type = contracts.MessageTypeUpdateFile
	}
	if msg.Type != contracts.MessageTypeUpdateFile {
		return errors.New("virtual file server: unsupported message " + msg.Type)
	}
	select {
	case <-s.active:
	case <-s.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	u := update{msg: msg, ack: make(chan error, 1)}
	select {
	case s.updates <- u:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-u.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup returns the entry served for name.
func (s *Server) Lookup(ctx context.Context, name string) (Entry, bool) {
	l := lookup{name: cleanName(name), reply: make(chan lookupResult, 1)}
	select {
	case s.lookups <- l:
	case <-s.done:
		return Entry{}, false
	case <-ctx.Done():
		return Entry{}, false
	}
	select {
	case res := <-l.reply:
		return res.entry, res.ok
	case <-ctx.Done():
		return Entry{}, false
	}
}

// Middleware answers GET and HEAD requests for served files from the table.
// Requests under Prefix, or at the root path of a served file, are answered;
// everything else goes to next.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, Prefix)
		if name == r.URL.Path {
			name = strings.TrimPrefix(r.URL.Path, "/")
		}
		if name == "" {
			next.ServeHTTP(w, r)
			return
		}
		entry, ok := s.Lookup(r.Context(), name)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", entry.ContentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(entry.Content))
	})
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// runLoop owns the table. Updates and lookups are serialized on it.
func (s *Server) runLoop() {
	defer close(s.done)
	table := make(map[string]Entry)
	close(s.active)
	s.logger.Debug("virtual file server active")

	for {
		select {
		case u := <-s.updates:
			name := cleanName(u.msg.FileName)
			if name == "" {
				u.ack <- errors.New("virtual file server: empty file name")
				continue
			}
			table[name] = Entry{Content: u.msg.Content, ContentType: mimes.ContentType(name)}
			u.ack <- nil

		case l := <-s.lookups:
			e, ok := table[l.name]
			l.reply <- lookupResult{entry: e, ok: ok}

		case <-s.stop:
			s.logger.Debug("virtual file server stopped", "files", len(table))
			return
		}
	}
}
