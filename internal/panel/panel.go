package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web
var content embed.FS

// Handler returns an http.Handler that serves the web shell.
//
// When dir names an existing directory the assets are read from it on
// every request, so the shell can be edited without a rebuild. Otherwise
// the embedded copy is served.
//
// Panics if the embedded assets are missing (build error).
func Handler(dir string) http.Handler {
	assets := assetFS(dir)
	files := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		switch {
		case name == "" || name == ".":
			files.ServeHTTP(w, r)
		case name == "api" || strings.HasPrefix(name, "api/"):
			// Unknown API routes must not look like a page.
			http.NotFound(w, r)
		case exists(assets, name):
			files.ServeHTTP(w, r)
		default:
			http.ServeFileFS(w, r, assets, "index.html")
		}
	})
}

func assetFS(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
	}
	return web
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
