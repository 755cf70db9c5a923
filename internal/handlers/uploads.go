package handlers

import (
	"net/http"
	"path"
	"strings"

	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/storage"
	"go.uber.org/zap"
)

// UploadsHandler serves stored attachments read-only. Directories are never listed and
// misses answer with the JSON error schema.
type UploadsHandler struct {
	fs     http.FileSystem
	logger *zap.Logger
}

// NewUploadsHandler serves files from dir
func NewUploadsHandler(dir string, logger *zap.Logger) *UploadsHandler {
	return &UploadsHandler{fs: http.Dir(dir), logger: logger}
}

// ServeHTTP implements http.Handler. Requests are expected under storage.URLPrefix.
func (h *UploadsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + strings.TrimPrefix(r.URL.Path, storage.URLPrefix))

	f, err := h.fs.Open(name)
	if err != nil {
		httperr.Write(w, r, httperr.NotFound("File not found"), h.logger)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		httperr.Write(w, r, httperr.NotFound("File not found"), h.logger)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
