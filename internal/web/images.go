package web

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/imaging"
)

// ImageGet handles GET /images/{path...} by proxying the stored image from
// the backend.
func (s *Server) ImageGet(w http.ResponseWriter, r *http.Request) {
	filePath := r.PathValue("path")
	clean := path.Clean("/" + filePath)
	if filePath == "" || strings.Contains(filePath, "..") || clean == "/" {
		http.NotFound(w, r)
		return
	}

	frame, err := s.Backend.FetchImage(r.Context(), strings.TrimPrefix(clean, "/"))
	if backend.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to fetch image", "path", filePath, "error", err)
		http.Error(w, "failed to fetch image", http.StatusBadGateway)
		return
	}

	mime, err := imaging.Sniff(frame.Data)
	if err != nil {
		slog.Warn("backend returned a non-image", "path", filePath)
		http.Error(w, "not an image", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(frame.Data); err != nil {
		slog.Error("failed to write image response", "error", err)
	}
}
