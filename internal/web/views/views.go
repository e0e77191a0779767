package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/foxzi/outreach/internal/tokentext"
)

//go:embed *.html
var files embed.FS

const layoutFile = "layout.html"

// Engine holds one template set per page, each wrapped in the layout
type Engine struct {
	pages map[string]*template.Template
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		// stored message text as chip-editor markup
		"chips": func(stored string) template.HTML {
			return template.HTML(tokentext.Parse(stored).HTML())
		},
		"tokens":      func() []tokentext.Token { return tokentext.Tokens },
		"placeholder": tokentext.Placeholder,
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"join":        strings.Join,
		"dict":        dict,
	}
}

// dict passes several named values to a sub-template
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

func New() (*Engine, error) {
	layout, err := template.New(layoutFile).Funcs(funcMap()).ParseFS(files, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	names, err := fs.Glob(files, "*.html")
	if err != nil {
		return nil, err
	}

	e := &Engine{pages: make(map[string]*template.Template, len(names))}
	for _, file := range names {
		if file == layoutFile {
			continue
		}
		page, err := template.Must(layout.Clone()).ParseFS(files, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		e.pages[strings.TrimSuffix(file, path.Ext(file))] = page
	}
	return e, nil
}

// Render executes a page inside the layout. Nothing is written when the
// template fails.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	page, ok := e.pages[name]
	if !ok {
		return fmt.Errorf("page %q not found", name)
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (e *Engine) Has(name string) bool {
	_, ok := e.pages[name]
	return ok
}
