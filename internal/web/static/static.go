package static

import (
	"embed"
	"net/http"
)

//go:embed css js
var assets embed.FS

// Handler serves the console's stylesheets and scripts. The files are
// compiled in, so browsers may keep them for an hour.
func Handler() http.Handler {
	files := http.FileServerFS(assets)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
