package fleet

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/roles"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/view"
)

// Handler serves the fleet pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	idem      *shared.IdempotencyStore
}

// NewHandler builds the fleet handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, idem *shared.IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, idem: idem}
}

// MountRoutes registers the fleet pages on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", h.listVehicles)
		r.Get("/new", h.newVehicle)
		r.Post("/", h.createVehicle)
		r.Get("/{id}/edit", h.editVehicle)
		r.Post("/{id}", h.updateVehicle)
		r.Post("/{id}/delete", h.deleteVehicle)
	})
	r.Route("/requests", func(r chi.Router) {
		r.Get("/daily/new", h.newDailyRequest)
		r.Post("/daily", h.createDailyRequest)
		r.Get("/field", h.fieldRequests)
		r.Post("/field", h.createFieldRequest)
	})
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", h.assignments)
		r.Post("/", h.assignCar)
	})
	r.Route("/maintenance", func(r chi.Router) {
		r.Get("/", h.maintenance)
		r.Post("/", h.createMaintenance)
		r.Post("/{id}/status", h.updateMaintenanceStatus)
	})
	r.Get("/routes", h.routes)
}

// Tab is one entry of partials/tabs.
type Tab struct {
	Href   string
	Label  string
	Active bool
}

// FormPage is the common shape of pages carrying a form.
type FormPage struct {
	Form          any
	Errors        FieldErrors
	Message       string
	SubmissionKey string
	Action        string
}

func newFormPage(form any, action string) FormPage {
	return FormPage{Form: form, Errors: FieldErrors{}, SubmissionKey: uuid.NewString(), Action: action}
}

func (p FormPage) withError(err error) FormPage {
	if fields := FieldsOf(err); fields != nil {
		p.Errors = fields
	}
	p.Message = UserMessage(err)
	return p
}

// VehiclesPage feeds pages/vehicles.html.
type VehiclesPage struct {
	Tabs     []Tab
	Kind     VehicleKind
	Vehicles []backend.Record
	Message  string
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	kind := VehicleKindFor(r.URL.Query().Get("type"))
	page := VehiclesPage{Kind: kind}
	for _, k := range VehicleKinds() {
		page.Tabs = append(page.Tabs, Tab{Href: "/vehicles?type=" + k.Key, Label: k.Label, Active: k.Key == kind.Key})
	}
	res := h.service.Vehicles(r.Context(), kind)
	if !res.Success {
		page.Message = res.Message
	} else {
		page.Vehicles = res.Data
	}
	h.render(w, r, "pages/vehicles.html", "Vehicles", page, http.StatusOK)
}

// VehicleFormPage feeds pages/vehicle_form.html.
type VehicleFormPage struct {
	FormPage
	Editing   bool
	CarTypes  []string
	FuelTypes []string
}

func (h *Handler) vehicleForm(form CarForm, action string, editing bool) VehicleFormPage {
	return VehicleFormPage{FormPage: newFormPage(form, action), Editing: editing, CarTypes: CarTypes, FuelTypes: FuelTypes}
}

func (h *Handler) newVehicle(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/vehicle_form.html", "Register vehicle", h.vehicleForm(CarForm{}, "/vehicles", false), http.StatusOK)
}

func (h *Handler) createVehicle(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	form, parsed := ParseCarForm(r.PostForm)
	h.submit(w, r, "vehicles.create", func() error {
		return h.service.RegisterCar(r.Context(), form, parsed)
	}, "/vehicles", "Vehicle registered.", func(err error) {
		page := h.vehicleForm(form, "/vehicles", false)
		page.FormPage = page.withError(err)
		h.render(w, r, "pages/vehicle_form.html", "Register vehicle", page, statusFor(err))
	})
}

func (h *Handler) editVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.service.Car(r.Context(), id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			h.render(w, r, "pages/not_found.html", "Not found", nil, http.StatusNotFound)
			return
		}
		h.flashRedirect(w, r, "error", UserMessage(err), "/vehicles")
		return
	}
	h.render(w, r, "pages/vehicle_form.html", "Update vehicle", h.vehicleForm(CarFormFromRecord(rec), "/vehicles/"+url.PathEscape(id), true), http.StatusOK)
}

func (h *Handler) updateVehicle(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	form, parsed := ParseCarForm(r.PostForm)
	action := "/vehicles/" + url.PathEscape(id)
	h.submit(w, r, "vehicles.update", func() error {
		return h.service.UpdateCar(r.Context(), id, form, parsed)
	}, "/vehicles", "Vehicle updated.", func(err error) {
		page := h.vehicleForm(form, action, true)
		page.FormPage = page.withError(err)
		h.render(w, r, "pages/vehicle_form.html", "Update vehicle", page, statusFor(err))
	})
}

func (h *Handler) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCar(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.logger.Warn("delete vehicle", slog.Any("error", err))
		h.flashRedirect(w, r, "error", UserMessage(err), "/vehicles")
		return
	}
	h.flashRedirect(w, r, "success", "Vehicle deleted.", "/vehicles")
}

func (h *Handler) newDailyRequest(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/daily_request.html", "Daily service request", newFormPage(DailyRequestForm{}, "/requests/daily"), http.StatusOK)
}

func (h *Handler) createDailyRequest(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	form, parsed := ParseDailyRequestForm(r.PostForm)
	h.submit(w, r, "requests.daily", func() error {
		return h.service.CreateDailyRequest(r.Context(), form, parsed)
	}, "/requests/daily/new", "Daily service request submitted.", func(err error) {
		page := newFormPage(form, "/requests/daily").withError(err)
		h.render(w, r, "pages/daily_request.html", "Daily service request", page, statusFor(err))
	})
}

// RequestsPage feeds pages/request_field.html.
type RequestsPage struct {
	Requester string
	Tabs      []Tab
	Active    string
	Requests  []backend.Record
	Message   string
	Field     FormPage
	Daily     FormPage
}

func (h *Handler) requestsPage(r *http.Request, requester roles.Requester) RequestsPage {
	forms := requester.Forms()
	active := forms[0]
	if want := r.URL.Query().Get("tab"); want != "" {
		for _, f := range forms {
			if f == want {
				active = f
			}
		}
	}
	page := RequestsPage{
		Requester: requester.Label(),
		Active:    active,
		Field:     newFormPage(FieldRequestForm{}, "/requests/field"),
		Daily:     newFormPage(DailyRequestForm{}, "/requests/daily"),
	}
	for _, f := range forms {
		page.Tabs = append(page.Tabs, Tab{Href: "/requests/field?tab=" + f, Label: formLabel(f), Active: f == active})
	}
	if active == roles.FormField {
		res := h.service.FieldRequests(r.Context())
		if res.Success {
			page.Requests = res.Data
		} else {
			page.Message = res.Message
		}
	}
	return page
}

func formLabel(form string) string {
	switch form {
	case roles.FormField:
		return "Field trip"
	case roles.FormDaily:
		return "Daily service"
	case roles.FormService:
		return "Vehicle service"
	default:
		return form
	}
}

func (h *Handler) fieldRequests(w http.ResponseWriter, r *http.Request) {
	requester, _ := roles.RequesterFromRequest(r, h.logger)
	h.render(w, r, "pages/request_field.html", "Requests", h.requestsPage(r, requester), http.StatusOK)
}

func (h *Handler) createFieldRequest(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	form, parsed := ParseFieldRequestForm(r.PostForm)
	h.submit(w, r, "requests.field", func() error {
		return h.service.CreateFieldRequest(r.Context(), form, parsed)
	}, "/requests/field", "Field request submitted.", func(err error) {
		requester, _ := roles.RequesterFromRequest(r, h.logger)
		page := h.requestsPage(r, requester)
		page.Active = roles.FormField
		page.Field = newFormPage(form, "/requests/field").withError(err)
		h.render(w, r, "pages/request_field.html", "Requests", page, statusFor(err))
	})
}

// AssignmentsPage feeds pages/assignments.html.
type AssignmentsPage struct {
	FormPage
	Assignments   []backend.Record
	AvailableCars []backend.Record
	Positions     []string
	RentalTypes   []string
	Levels        []string
	ListMessage   string
}

func (h *Handler) assignmentsPage(r *http.Request, form AssignmentForm) AssignmentsPage {
	page := AssignmentsPage{
		FormPage:    newFormPage(form, "/assignments"),
		Positions:   Positions,
		RentalTypes: RentalTypes,
		Levels:      Levels,
	}
	if res := h.service.Assignments(r.Context()); res.Success {
		page.Assignments = res.Data
	} else {
		page.ListMessage = res.Message
	}
	if res := h.service.AvailableCars(r.Context()); res.Success {
		page.AvailableCars = res.Data
	}
	return page
}

func (h *Handler) assignments(w http.ResponseWriter, r *http.Request) {
	form := AssignmentForm{RentalType: "standard", Position: "Level 1", TravelWorkPercentage: "low", ShortNoticePercentage: "low", MobilityIssue: "no", Gender: "male"}
	h.render(w, r, "pages/assignments.html", "Assign car", h.assignmentsPage(r, form), http.StatusOK)
}

func (h *Handler) assignCar(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	form, parsed := ParseAssignmentForm(r.PostForm)
	var status string
	h.submitWith(w, r, "assignments.assign", "/assignments", func() error {
		var err error
		status, err = h.service.AssignCar(r.Context(), form, parsed)
		return err
	}, func() {
		msg := "Car assigned."
		if status == notAssignedStatus {
			msg = "No car selected. The request was saved and will be served when a vehicle becomes available."
		}
		h.flashRedirect(w, r, "success", msg, "/assignments")
	}, func(err error) {
		page := h.assignmentsPage(r, form)
		page.FormPage = newFormPage(form, "/assignments").withError(err)
		h.render(w, r, "pages/assignments.html", "Assign car", page, statusFor(err))
	})
}

// MaintenanceRow is a listed request with the statuses the viewer may set.
type MaintenanceRow struct {
	Record      backend.Record
	Transitions []string
}

// MaintenancePage feeds pages/maintenance.html.
type MaintenancePage struct {
	FormPage
	Tabs      []Tab
	Actor     string
	ActorTab  string
	CanCreate bool
	Rows      []MaintenanceRow
	ListError string
}

func (h *Handler) maintenancePage(r *http.Request, actor roles.Actor, desc roles.Descriptor, form MaintenanceForm) MaintenancePage {
	page := MaintenancePage{
		FormPage:  newFormPage(form, "/maintenance?tab="+actor.Tab()),
		Actor:     actor.Label(),
		ActorTab:  actor.Tab(),
		CanCreate: actor.CanCreate(),
	}
	for _, a := range roles.Actors() {
		page.Tabs = append(page.Tabs, Tab{Href: "/maintenance?tab=" + a.Tab(), Label: a.Label(), Active: a.Tab() == actor.Tab()})
	}
	res := h.service.MaintenanceRequests(r.Context(), actor, desc.DisplayName())
	if !res.Success {
		page.ListError = res.Message
		return page
	}
	for _, rec := range res.Data {
		page.Rows = append(page.Rows, MaintenanceRow{Record: rec, Transitions: actor.Transitions(rec.Text("status"))})
	}
	return page
}

// actor picks the tab from the query string, falling back to the stored role.
func (h *Handler) actor(r *http.Request) (roles.Actor, roles.Descriptor) {
	actor, desc := roles.ActorFromRequest(r, h.logger)
	if a, ok := roles.ActorByTab(r.URL.Query().Get("tab")); ok {
		actor = a
	}
	return actor, desc
}

func (h *Handler) maintenance(w http.ResponseWriter, r *http.Request) {
	actor, desc := h.actor(r)
	form := MaintenanceForm{ReportingDriver: desc.DisplayName()}
	h.render(w, r, "pages/maintenance.html", "Maintenance", h.maintenancePage(r, actor, desc, form), http.StatusOK)
}

func (h *Handler) createMaintenance(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	actor, desc := h.actor(r)
	form, parsed := ParseMaintenanceForm(r.PostForm)
	h.submit(w, r, "maintenance.create", func() error {
		return h.service.CreateMaintenance(r.Context(), actor, form, parsed)
	}, "/maintenance?tab="+actor.Tab(), "Maintenance request submitted.", func(err error) {
		page := h.maintenancePage(r, actor, desc, form)
		page.FormPage = page.FormPage.withError(err)
		h.render(w, r, "pages/maintenance.html", "Maintenance", page, statusFor(err))
	})
}

func (h *Handler) updateMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r) {
		return
	}
	actor, _ := h.actor(r)
	back := "/maintenance?tab=" + actor.Tab()
	err := h.service.UpdateMaintenanceStatus(r.Context(), actor, chi.URLParam(r, "id"), r.PostForm.Get("current"), r.PostForm.Get("status"))
	if err != nil {
		h.logger.Warn("update maintenance status", slog.Any("error", err))
		h.flashRedirect(w, r, "error", UserMessage(err), back)
		return
	}
	h.flashRedirect(w, r, "success", "Maintenance request updated.", back)
}

// RoutesPage feeds pages/routes.html.
type RoutesPage struct {
	Routes  []Route
	Message string
}

func (h *Handler) routes(w http.ResponseWriter, r *http.Request) {
	page := RoutesPage{}
	routes, err := h.service.Routes(r.Context())
	if err != nil {
		page.Message = UserMessage(err)
	}
	page.Routes = routes
	h.render(w, r, "pages/routes.html", "Assigned routes", page, http.StatusOK)
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

// submit runs a guarded mutation and redirects with a flash on success.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, module string, run func() error, redirect, success string, onError func(error)) {
	h.submitWith(w, r, module, redirect, run, func() {
		h.flashRedirect(w, r, "success", success, redirect)
	}, onError)
}

// submitWith runs run at most once per submission key. A failed run
// releases the key so the user can retry.
func (h *Handler) submitWith(w http.ResponseWriter, r *http.Request, module, back string, run func() error, onSuccess func(), onError func(error)) {
	ctx := r.Context()
	key := r.PostForm.Get(shared.FormTokenField)
	guarded := key != ""
	if guarded {
		if err := h.idem.CheckAndInsert(ctx, key, module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				h.flashRedirect(w, r, "info", "This form was already submitted.", back)
				return
			}
			h.logger.Warn("idempotency check failed", slog.String("module", module), slog.Any("error", err))
			guarded = false
		}
	}
	if err := run(); err != nil {
		if guarded {
			if derr := h.idem.Delete(ctx, key, module); derr != nil {
				h.logger.Warn("release submission key", slog.Any("error", derr))
			}
		}
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Warn("fleet mutation failed", slog.String("module", module), slog.Any("error", err))
		}
		onError(err)
		return
	}
	onSuccess()
}

func (h *Handler) flashRedirect(w http.ResponseWriter, r *http.Request, kind, message, target string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	// The flash is consumed before the header commits the session.
	td := view.NewTemplateData(r, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, name, td); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}

func statusFor(err error) int {
	var berr *BackendError
	switch {
	case errors.Is(err, httpx.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, httpx.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &berr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
