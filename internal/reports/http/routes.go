package reporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// MountRoutes registers the dashboard and report endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.handleDashboard)
	r.Get("/reports", h.handleIndex)
	r.Get("/reports/{view}", h.handleShell)
	r.Get("/reports/{view}/data", h.handleFragment)
	r.Post("/reports/{view}/close", h.handleClose)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/reports/{view}/export.csv", h.handleCSV)
		gr.Get("/reports/{view}/export.xlsx", h.handleXLSX)
		gr.Get("/reports/{view}/export.pdf", h.handlePDF)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.ID != "" {
		return "session:" + sess.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
