// Package templates renders the server-side HTML pages. Every page template
// is parsed together with the shared base layout at startup, so a malformed
// template fails the process rather than a request.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
)

//go:embed html
var templateFS embed.FS

// Page is the data every template receives
type Page struct {
	Title     string
	AssetsURL string
	Session   *session.Session
	Flashes   []session.Flash
	Errors    map[string]string
	Data      map[string]interface{}
}

// Renderer holds the parsed page templates
type Renderer struct {
	pages     map[string]*template.Template
	assetsURL string
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

// NewRenderer parses every embedded page template against the base layout
func NewRenderer(assetsURL string) (*Renderer, error) {
	r := &Renderer{pages: map[string]*template.Template{}, assetsURL: assetsURL}

	err := fs.WalkDir(templateFS, "html", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") || p == "html/base.html" {
			return nil
		}
		t, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "html/base.html", p)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", p, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, "html/"), ".html")
		r.pages[name] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Render writes a page with the given status. Render failures after headers
// would corrupt output, so templates execute into a buffer first.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	t, ok := r.pages[name]
	if !ok {
		slog.Error("unknown template", "name", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if page.AssetsURL == "" {
		page.AssetsURL = r.assetsURL
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base.html", page); err != nil {
		slog.Error("template render failed", "name", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
