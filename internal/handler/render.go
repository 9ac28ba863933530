package handler

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/dukerupert/recipebox/internal/auth"
	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutFile   = "templates/layout.html"
	partialsFile = "templates/partials.html"
)

var funcs = template.FuncMap{
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
	"str": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"num": func(n *int) string {
		if n == nil {
			return ""
		}
		return fmt.Sprint(*n)
	},
	"minutes": func(n int) string {
		if n <= 0 {
			return ""
		}
		return english.Plural(n, "min", "mins")
	},
	"plural": func(n int, word string) string {
		return english.Plural(n, word, "")
	},
	"label": label,
}

// label capitalizes an enum value, following pointers.
func label(v any) string {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return ""
	}
	s := fmt.Sprint(rv.Interface())
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Renderer executes the embedded page templates. Each page is parsed
// together with the shared layout and partials.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template), logger: logger}
	for _, name := range names {
		if name == layoutFile || name == partialsFile {
			continue
		}
		tmpl, err := template.New(path.Base(layoutFile)).Funcs(funcs).ParseFS(templateFS, layoutFile, partialsFile, name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(path.Base(name), ".html")] = tmpl
	}
	return r, nil
}

// MustRenderer is like NewRenderer but panics on error.
func MustRenderer(logger *slog.Logger) *Renderer {
	r, err := NewRenderer(logger)
	if err != nil {
		panic(err)
	}
	return r
}

func (rd *Renderer) render(w http.ResponseWriter, status int, page string, data map[string]any) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown template", "page", page)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.logger.Error("template error", "page", page, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, buf.String())
}

// pageData seeds a template's data with the request's identity.
func pageData(r *http.Request, title string) map[string]any {
	data := map[string]any{"Title": title}
	if ac, ok := auth.FromContext(r.Context()); ok && ac.User != nil {
		data["User"] = ac.User
		data["Profile"] = ac.Profile
		data["DisplayName"] = displayName(ac.User, ac.Profile)
	}
	return data
}

func displayName(u *model.User, p *model.Profile) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	if u == nil {
		return ""
	}
	return u.Email
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Code: backend.Code(err)})
}

// isHTMX reports whether the request came from an htmx swap.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
