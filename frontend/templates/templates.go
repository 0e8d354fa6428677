// Package templates renders the embedded HTML pages. Every page receives
// the same context: queued flash messages, the current claims (nil when
// anonymous), the CSRF token for forms, and page-specific data.
package templates

import (
	"embed"
	"html/template"
	"net/http"

	"microblog/backend/auth"
)

//go:embed *.html
var files embed.FS

var registry = template.Must(template.ParseFS(files, "*.html"))

type Context struct {
	Flash  []auth.Flash
	Claims *auth.Claims
	CSRF   string
	Data   any
}

func Render(w http.ResponseWriter, name string, ctx Context) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return registry.ExecuteTemplate(w, name, ctx)
}
