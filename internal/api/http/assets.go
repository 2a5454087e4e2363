package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testbot/internal/storage"
)

// MountCharts serves stored difficulty charts.
func MountCharts(r chi.Router, bs storage.BlobStore) {
	// GET /charts/*   -> the blob "charts/<whatever follows>"
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		key = strings.TrimPrefix(key, "charts/")
		rc, err := bs.Get("charts/" + key)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			http.Error(w, "not found", http.StatusNotFound)
			return
		case errors.Is(err, storage.ErrBadKey):
			http.Error(w, "bad key", http.StatusBadRequest)
			return
		case err != nil:
			http.Error(w, "chart: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rc.Close()
		ct := "application/octet-stream"
		if path.Ext(key) == ".png" {
			ct = "image/png"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	})
}
