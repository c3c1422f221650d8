package notify

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
)

// Handler serves the inbox page and its actions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
}

// NewHandler builds the inbox handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine) *Handler {
	return &Handler{logger: logger, service: service, templates: templates}
}

// MountRoutes registers inbox routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/count", h.count)
	r.Post("/read-all", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
	r.Post("/{id}/delete", h.remove)
}

// PageData feeds pages/notifications.html.
type PageData struct {
	Items   []Item
	Unread  int
	Message string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	data := PageData{}
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Warn("load notifications", slog.Any("error", err))
		data.Message = err.Error()
	}
	st := h.service.State()
	data.Items = st.Items()
	data.Unread = st.Unread()
	if err := h.templates.Render(w, "pages/notifications.html", view.NewTemplateData(r, "Notifications", data)); err != nil {
		h.logger.Error("render notifications", slog.Any("error", err))
	}
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]int{"count": h.service.State().Unread()})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.MarkRead(r.Context(), chi.URLParam(r, "id")), "Notification marked as read.")
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.MarkAllRead(r.Context()), "All notifications marked as read.")
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.Delete(r.Context(), chi.URLParam(r, "id")), "Notification deleted.")
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, err error, success string) {
	if wantsJSON(r) {
		if err != nil {
			h.logger.Warn("notification action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]int{"count": h.service.State().Unread()})
		return
	}
	flash := shared.FlashMessage{Kind: "success", Message: success}
	if err != nil {
		h.logger.Warn("notification action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		flash = shared.FlashMessage{Kind: "error", Message: err.Error()}
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(flash)
	}
	http.Redirect(w, r, "/notifications", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
