package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetdesk/fleetdesk/internal/fleet"
	"github.com/fleetdesk/fleetdesk/internal/notify"
	"github.com/fleetdesk/fleetdesk/internal/observability"
	reporthttp "github.com/fleetdesk/fleetdesk/internal/reports/http"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/tracking"
	"github.com/fleetdesk/fleetdesk/internal/view"
	"github.com/fleetdesk/fleetdesk/jobs"
	"github.com/fleetdesk/fleetdesk/report"
	"github.com/fleetdesk/fleetdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	ReportsHandler  *reporthttp.Handler
	FleetHandler    *fleet.Handler
	NotifyHandler   *notify.Handler
	TrackingHandler *tracking.Handler
	LiveHub         http.Handler
	ReportHandler   *report.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with FleetDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// The socket outlives the request timeout and cannot be compressed.
	if params.LiveHub != nil {
		r.Handle(tracking.SocketPath, params.LiveHub)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static files skip the session, CSRF and rate limit chain.
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(params.Logger.Handler(), slog.LevelInfo),
			NoColor: true,
		}))

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			data := view.NewTemplateData(r, "Page not found", nil)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			if err := params.Templates.Render(w, "pages/not_found.html", data); err != nil {
				params.Logger.Error("render not found", slog.Any("error", err))
			}
		})

		params.ReportsHandler.MountRoutes(r)
		if params.FleetHandler != nil {
			params.FleetHandler.MountRoutes(r)
		}
		if params.NotifyHandler != nil {
			r.Route("/notifications", params.NotifyHandler.MountRoutes)
		}
		if params.TrackingHandler != nil {
			r.Route("/map", params.TrackingHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in the browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
