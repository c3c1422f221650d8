package tracking

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/view"
)

// SocketPath is where the hub is mounted.
const SocketPath = "/ws/vehicles"

// Handler serves the live vehicle map page.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
}

// NewHandler builds the map page handler.
func NewHandler(logger *slog.Logger, templates *view.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, templates: templates}
}

// MountRoutes registers the map page.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.page)
}

// PageData feeds pages/vehicle_map.html.
type PageData struct {
	SocketPath string
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	data := view.NewTemplateData(r, "Vehicle map", PageData{SocketPath: SocketPath})
	if err := h.templates.Render(w, "pages/vehicle_map.html", data); err != nil {
		h.logger.Error("render vehicle map", slog.Any("error", err))
	}
}
