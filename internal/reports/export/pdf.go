package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/reports"
	"github.com/fleetdesk/fleetdesk/web"
)

// HTMLRenderer converts an HTML document to PDF.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ChartImage is a rendered chart embedded in the document.
type ChartImage struct {
	Title string
	SVG   template.HTML
}

// Document is the content of a PDF export.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Filters     []string
	Stats       []reports.Stat
	Charts      []ChartImage
	Columns     []reports.Column
	Rows        []backend.Record
}

// PDFExporter renders report documents through an HTML to PDF engine.
type PDFExporter struct {
	renderer  HTMLRenderer
	templates *template.Template
}

// NewPDFExporter parses the document template.
func NewPDFExporter(renderer HTMLRenderer) (*PDFExporter, error) {
	tpl, err := template.New("report_pdf.html").Funcs(template.FuncMap{
		"cell": func(col reports.Column, rec backend.Record) string { return col.Cell(rec) },
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
	}).ParseFS(web.Templates, "templates/exports/report_pdf.html")
	if err != nil {
		return nil, fmt.Errorf("parse report pdf template: %w", err)
	}
	return &PDFExporter{renderer: renderer, templates: tpl}, nil
}

// BuildHTML renders the document markup.
func (p *PDFExporter) BuildHTML(doc Document) (string, error) {
	if p == nil || p.templates == nil {
		return "", fmt.Errorf("pdf exporter not initialised")
	}
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, "report_pdf.html", doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render produces the PDF bytes of doc.
func (p *PDFExporter) Render(ctx context.Context, doc Document) ([]byte, error) {
	if p == nil || p.renderer == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	html, err := p.BuildHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return p.renderer.RenderHTML(ctx, html)
}
