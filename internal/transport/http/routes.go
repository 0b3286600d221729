package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-live-ide/internal/contracts"
	"go-live-ide/internal/project"
)

type fileRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type previewRequest struct {
	FileID string `json:"fileId"`
}

// registerRoutes mounts the file and preview endpoints under /api.
func registerRoutes(r chi.Router, b Backend) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/files", handleList(b))
		r.Post("/files", handleCreate(b))
		r.Get("/files/{id}", handleGet(b))
		r.Put("/files/{id}", handleUpdate(b))
		r.Patch("/files/{id}", handleRename(b))
		r.Delete("/files/{id}", handleDelete(b))
		r.Put("/preview", handleSelect(b))
		r.Put("/preview/zoom", handleZoom(b))
		r.Get("/highlight/{id}", handleHighlight(b))
	})
}

func handleList(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Files())
	}
}

func handleGet(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := b.File(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func handleCreate(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		f, err := b.CreateFile(r.Context(), req.Name, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func handleUpdate(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		f, err := b.UpdateFile(r.Context(), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func handleRename(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		f, err := b.RenameFile(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func handleDelete(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := b.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSelect(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := b.File(req.FileID); !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := b.Select(r.Context(), contracts.SelectMessage{FileID: req.FileID}); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleZoom(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contracts.ZoomMessage
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.Zoom(r.Context(), req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleHighlight(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := b.Highlight(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	}
}

// writeError maps project errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, project.ErrDuplicateName):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, project.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
