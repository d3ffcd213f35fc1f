// Package web embeds the built compose frontend (dist/) and serves it as a
// single-page application when SERVE_FRONTEND is set.
//
// In development dist/ holds only a placeholder; run the frontend dev server
// against the API instead.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler serves the embedded frontend.
func SPAHandler() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return spaHandler(sub)
}

// spaHandler serves files from root and answers every other GET with
// index.html so client-side routes survive a reload. /api paths never fall
// through to the app shell.
func spaHandler(root fs.FS) http.Handler {
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(name, "api/") || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if _, err := fs.Stat(root, "index.html"); err != nil {
			http.Error(w, "frontend not built", http.StatusNotFound)
			return
		}
		http.ServeFileFS(w, r, root, "index.html")
	})
}
