package view

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

// NewTemplateData fills the session-derived fields for r. The pending
// flash message, if any, is consumed.
func NewTemplateData(r *http.Request, title string, data any) TemplateData {
	td := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		td.Flash = sess.PopFlash()
		td.CSRFToken = sess.Get(shared.CSRFSessionKey)
	}
	return td
}

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatNumber": FormatNumber,
		"humanize":     Humanize,
		"cell":         func(col reports.Column, rec backend.Record) string { return col.Cell(rec) },
		"field":        func(rec backend.Record, name string) string { return rec.Text(name) },
		"fieldDate": func(rec backend.Record, name string) string {
			if t, ok := rec.Date(name); ok {
				return t.Format("02 Jan 2006")
			}
			return rec.Text(name)
		},
		"join": strings.Join,
		"dict": Dict,
		"active": func(current, prefix string) bool {
			if prefix == "/" {
				return current == "/"
			}
			return strings.HasPrefix(current, prefix)
		},
		"withQuery": WithQuery,
		"selected":  func(a, b string) bool { return strings.EqualFold(a, b) },
	}
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(Funcs()).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
		"templates/reports/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Execute writes a named template without the page envelope, for fragments.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

// Dict builds a map from alternating keys and values, for passing several
// values to a partial.
func Dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

// FormatNumber groups thousands: 12500 -> "12,500", 3.25 -> "3.25".
func FormatNumber(v any) string {
	switch n := v.(type) {
	case int:
		return printer.Sprintf("%d", n)
	case int64:
		return printer.Sprintf("%d", n)
	case float64:
		if n == float64(int64(n)) {
			return printer.Sprintf("%d", int64(n))
		}
		return printer.Sprintf("%.2f", n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return FormatNumber(f)
		}
		return n
	default:
		return fmt.Sprint(v)
	}
}

// Humanize turns enumeration values into labels: "READY_WITH_WARNING" ->
// "Ready With Warning".
func Humanize(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return ""
	}
	return titler.String(strings.ToLower(s))
}

// WithQuery returns "?<q>" with key set to value.
func WithQuery(q url.Values, key string, value any) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = append([]string(nil), v...)
	}
	next.Set(key, fmt.Sprint(value))
	return "?" + next.Encode()
}
