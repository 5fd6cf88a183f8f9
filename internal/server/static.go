package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticFile represents an embedded static file with its content type and content.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// newStaticFiles maps URL paths to their corresponding static file definitions.
func newStaticFiles(a Assets) map[string]staticFile {
	return map[string]staticFile{
		"/style.css": {
			contentType: "text/css",
			content:     a.StyleCSS,
			name:        "style.css",
		},
		"/app.js": {
			contentType: "application/javascript",
			content:     a.AppJS,
			name:        "app.js",
		},
	}
}

// handleStatic serves the embedded static web interface files.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" || path == "/index.html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		html := strings.Replace(s.opts.Assets.IndexHTML, "{{VERSION}}", s.opts.AppVersion, 1)
		html = strings.ReplaceAll(html, "{{YEAR}}", strconv.Itoa(time.Now().Year()))
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Error("failed to write index.html", "error", err)
		}
		return
	}

	if file, ok := s.static[path]; ok {
		w.Header().Set("Content-Type", file.contentType)
		if _, err := w.Write([]byte(file.content)); err != nil {
			slog.Error("failed to write static file", "file", file.name, "error", err)
		}
		return
	}

	http.NotFound(w, r)
}
