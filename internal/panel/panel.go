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

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler that serves the control page.
//
// When dir names an existing directory, assets are read from it on every
// request. Otherwise the embedded copy is used. Requests for files that do
// not exist get index.html, except under /api/, which is never the page.
// Panics if the embedded assets cannot be loaded (build error).
func Handler(dir string) http.Handler {
	fileSystem := embedded()
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upath := path.Clean("/" + r.URL.Path)
		if strings.HasPrefix(upath, "/api/") {
			http.NotFound(w, r)
			return
		}

		// The page is small and changes with the binary; always revalidate.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		if upath != "/" && !exists(fileSystem, upath) {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}

func embedded() http.FileSystem {
	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
	}
	return http.FS(webFS)
}

func exists(fsys http.FileSystem, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && !info.IsDir()
}
