// Package fleet serves the vehicle, request, assignment, maintenance and
// route pages and forwards their mutations to the backend.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/geocode"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/roles"
)

// Mutation paths on the backend.
const (
	pathCarRegister      = "/auth/car/register"
	pathCarUpdate        = "/auth/car/update/"
	pathCarDelete        = "/auth/car/delete/"
	pathDailyCreate      = "/api/daily-requests/create"
	pathFieldCreate      = "/api/travel-requests"
	pathAssign           = "/auth/assignment/assign"
	pathMaintenance      = "/api/maintenance-requests"
	notAssignedStatus    = "Not Assigned"
	assignedStatus       = "Assigned"
	pendingRequestStatus = "PENDING"
)

// ErrTransitionNotAllowed is returned when an actor moves a request to a
// status it does not own.
var ErrTransitionNotAllowed = fmt.Errorf("%w: status change not allowed", httpx.ErrForbidden)

// Backend is the subset of the backend client the fleet pages use.
type Backend interface {
	FetchNamed(ctx context.Context, name string) backend.Result
	Fetch(ctx context.Context, ep backend.Endpoint) backend.Result
	Endpoints() backend.Table
	Send(ctx context.Context, method, path string, payload any) backend.Result
}

// Invalidator drops cached report snapshots after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Notifier files an in-app notification for a role.
type Notifier interface {
	Add(ctx context.Context, message, link, role string) error
}

// Geocoder names waypoints.
type Geocoder interface {
	ResolveAll(ctx context.Context, points []geocode.Point) []string
}

// BackendError is a failed backend call surfaced to the user.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend request failed with status %d", e.Status)
}

// Service implements the fleet operations.
type Service struct {
	backend     Backend
	invalidator Invalidator
	notifier    Notifier
	geocoder    Geocoder
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the fleet service. invalidator, notifier and geocoder may be nil.
func NewService(b Backend, invalidator Invalidator, notifier Notifier, geocoder Geocoder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:     b,
		invalidator: invalidator,
		notifier:    notifier,
		geocoder:    geocoder,
		validate:    newValidator(),
		logger:      logger,
		now:         time.Now,
	}
}

// VehicleKind is one vehicle listing tab.
type VehicleKind struct {
	Key      string
	Label    string
	Endpoint string
	// Editable kinds are registered and updated through this portal.
	Editable bool
}

// VehicleKinds lists the vehicle tabs in order.
func VehicleKinds() []VehicleKind {
	return []VehicleKind{
		{Key: "cars", Label: "Cars", Endpoint: backend.EndpointCars, Editable: true},
		{Key: "organization", Label: "Organization cars", Endpoint: backend.EndpointOrganizationCars},
		{Key: "rent", Label: "Rent cars", Endpoint: backend.EndpointRentCars},
	}
}

// VehicleKindFor resolves a tab key, defaulting to cars.
func VehicleKindFor(key string) VehicleKind {
	kinds := VehicleKinds()
	for _, k := range kinds {
		if k.Key == key {
			return k
		}
	}
	return kinds[0]
}

// Vehicles lists one vehicle kind. Organization cars arrive nested under
// organizationCar and are flattened.
func (s *Service) Vehicles(ctx context.Context, kind VehicleKind) backend.Result {
	res := s.backend.FetchNamed(ctx, kind.Endpoint)
	if !res.Success {
		return res
	}
	for i, rec := range res.Data {
		if nested, ok := rec["organizationCar"].(map[string]any); ok {
			flat := backend.Record(nested)
			for k, v := range rec {
				if _, exists := flat[k]; !exists && k != "organizationCar" {
					flat = flat.With(k, v)
				}
			}
			res.Data[i] = flat
		}
	}
	return res
}

// Car finds a registered car by id.
func (s *Service) Car(ctx context.Context, id string) (backend.Record, error) {
	res := s.backend.FetchNamed(ctx, backend.EndpointCars)
	if !res.Success {
		return nil, failure(res)
	}
	for _, rec := range res.Data {
		if rec.ID() == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("car %s: %w", id, httpx.ErrNotFound)
}

// RegisterCar validates and registers a car.
func (s *Service) RegisterCar(ctx context.Context, form CarForm, parsed FieldErrors) error {
	if err := validateForm(s.validate, form, parsed); err != nil {
		return err
	}
	if form.Status == "" {
		form.Status = "NOT_INSPECTED"
	}
	return s.mutate(ctx, http.MethodPost, pathCarRegister, form)
}

// UpdateCar validates and updates car id.
func (s *Service) UpdateCar(ctx context.Context, id string, form CarForm, parsed FieldErrors) error {
	if err := validateForm(s.validate, form, parsed); err != nil {
		return err
	}
	return s.mutate(ctx, http.MethodPut, pathCarUpdate+url.PathEscape(id), form)
}

// DeleteCar removes car id.
func (s *Service) DeleteCar(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("car id: %w", httpx.ErrValidation)
	}
	return s.mutate(ctx, http.MethodDelete, pathCarDelete+url.PathEscape(id), nil)
}

// CreateDailyRequest files a daily service request and notifies distributors.
func (s *Service) CreateDailyRequest(ctx context.Context, form DailyRequestForm, parsed FieldErrors) error {
	if err := validateForm(s.validate, form, parsed); err != nil {
		return err
	}
	form.Status = pendingRequestStatus
	if err := s.mutate(ctx, http.MethodPost, pathDailyCreate, form); err != nil {
		return err
	}
	s.notify(ctx, fmt.Sprintf("New daily service request from %s", form.ClaimantName), "/reports/daily-services", "DISTRIBUTOR")
	return nil
}

// FieldRequests lists field trip requests.
func (s *Service) FieldRequests(ctx context.Context) backend.Result {
	return s.backend.FetchNamed(ctx, backend.EndpointFieldRequests)
}

// CreateFieldRequest files a field trip request and notifies distributors.
func (s *Service) CreateFieldRequest(ctx context.Context, form FieldRequestForm, parsed FieldErrors) error {
	if err := validateForm(s.validate, form, parsed); err != nil {
		return err
	}
	form.Status = pendingRequestStatus
	if err := s.mutate(ctx, http.MethodPost, pathFieldCreate, form); err != nil {
		return err
	}
	s.notify(ctx, fmt.Sprintf("New field request to %s from %s", form.DestinationPlace, form.ClaimantName), "/requests/field", "DISTRIBUTOR")
	return nil
}

// Assignments lists the assignment history.
func (s *Service) Assignments(ctx context.Context) backend.Result {
	return s.backend.FetchNamed(ctx, backend.EndpointAssignments)
}

// AvailableCars lists cars that passed inspection and can be assigned.
func (s *Service) AvailableCars(ctx context.Context) backend.Result {
	res := s.backend.FetchNamed(ctx, backend.EndpointCars)
	if !res.Success {
		return res
	}
	out := res.Data[:0:0]
	for _, rec := range res.Data {
		switch strings.ToLower(rec.Text("status")) {
		case "approved", "inspectedandready":
			out = append(out, rec)
		}
	}
	res.Data = out
	return res
}

// AssignCar records an assignment request. Without a plate number the
// request is stored as not assigned.
func (s *Service) AssignCar(ctx context.Context, form AssignmentForm, parsed FieldErrors) (string, error) {
	if err := validateForm(s.validate, form, parsed); err != nil {
		return "", err
	}
	form.RequestDate = today(s.now())
	form.TotalPercentage = form.Priority()
	form.Status = notAssignedStatus
	if form.PlateNumber != "" {
		form.Status = assignedStatus
	}
	if err := s.mutate(ctx, http.MethodPost, pathAssign, form); err != nil {
		return "", err
	}
	if form.Status == assignedStatus {
		s.notify(ctx, fmt.Sprintf("Car %s assigned to %s", form.PlateNumber, form.RequesterName), "/assignments", "DRIVER")
	}
	return form.Status, nil
}

// MaintenanceRequests lists the requests visible to actor. Drivers only see
// their own.
func (s *Service) MaintenanceRequests(ctx context.Context, actor roles.Actor, driverName string) backend.Result {
	ep, err := s.backend.Endpoints().Lookup(actor.Endpoint())
	if err != nil {
		return backend.Result{Message: err.Error()}
	}
	if _, ok := actor.(roles.Driver); ok && driverName != "" {
		ep = ep.WithQuery(url.Values{"driverName": {driverName}}.Encode())
	}
	return s.backend.Fetch(ctx, ep)
}

// CreateMaintenance files a maintenance request on behalf of actor.
func (s *Service) CreateMaintenance(ctx context.Context, actor roles.Actor, form MaintenanceForm, parsed FieldErrors) error {
	if !actor.CanCreate() {
		return fmt.Errorf("%w: %s cannot file maintenance requests", httpx.ErrForbidden, actor.Label())
	}
	if err := validateForm(s.validate, form, parsed); err != nil {
		return err
	}
	form.Status = roles.StatusPending
	if err := s.mutate(ctx, http.MethodPost, pathMaintenance, form); err != nil {
		return err
	}
	s.notify(ctx, fmt.Sprintf("Maintenance requested for %s", form.PlateNumber), "/maintenance?tab=distributor", "DISTRIBUTOR")
	return nil
}

// UpdateMaintenanceStatus moves request id from its current status to next,
// provided actor owns that transition.
func (s *Service) UpdateMaintenanceStatus(ctx context.Context, actor roles.Actor, id, current, next string) error {
	next = strings.ToUpper(strings.TrimSpace(next))
	if !slices.Contains(actor.Transitions(current), next) {
		return fmt.Errorf("%w: %s cannot move %s to %s", ErrTransitionNotAllowed, actor.Label(), current, next)
	}
	path := pathMaintenance + "/" + url.PathEscape(id) + "/status?" + url.Values{"status": {next}}.Encode()
	if err := s.mutate(ctx, http.MethodPatch, path, nil); err != nil {
		return err
	}
	if target := nextActorRole(next); target != "" {
		s.notify(ctx, fmt.Sprintf("Maintenance request %s is %s", id, next), "/maintenance", target)
	}
	return nil
}

func nextActorRole(status string) string {
	switch status {
	case roles.StatusChecked:
		return "MAINTENANCE"
	case roles.StatusApproved:
		return "DRIVER"
	case roles.StatusCompleted:
		return "INSPECTOR"
	default:
		return ""
	}
}

// Waypoint is a named route stop.
type Waypoint struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Route is an assigned route with geocoded stops.
type Route struct {
	ID          string
	PlateNumber string
	Waypoints   []Waypoint
}

// Routes loads the assigned routes and names every waypoint.
func (s *Service) Routes(ctx context.Context) ([]Route, error) {
	res := s.backend.FetchNamed(ctx, backend.EndpointRoutes)
	if !res.Success {
		return nil, failure(res)
	}
	routes := make([]Route, 0, len(res.Data))
	var points []geocode.Point
	for _, rec := range res.Data {
		route := Route{ID: rec.ID(), PlateNumber: rec.Text("plateNumber")}
		if raw, ok := rec.Value("waypoints"); ok {
			items, _ := raw.([]any)
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				wp := backend.Record(m)
				lat, okLat := wp.Number("latitude")
				lng, okLng := wp.Number("longitude")
				if !okLat || !okLng {
					continue
				}
				route.Waypoints = append(route.Waypoints, Waypoint{Latitude: lat, Longitude: lng})
				points = append(points, geocode.Point{Lat: lat, Lng: lng})
			}
		}
		routes = append(routes, route)
	}
	names := make([]string, len(points))
	if s.geocoder != nil && len(points) > 0 {
		names = s.geocoder.ResolveAll(ctx, points)
	}
	i := 0
	for r := range routes {
		for w := range routes[r].Waypoints {
			wp := &routes[r].Waypoints[w]
			wp.Name = names[i]
			if wp.Name == "" {
				wp.Name = geocode.Fallback(wp.Latitude, wp.Longitude)
			}
			i++
		}
	}
	return routes, nil
}

func (s *Service) mutate(ctx context.Context, method, path string, payload any) error {
	res := s.backend.Send(ctx, method, path, payload)
	if !res.Success {
		return failure(res)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report snapshots", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, message, link, role string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Add(ctx, message, link, role); err != nil {
		s.logger.Warn("add notification", slog.String("role", role), slog.Any("error", err))
	}
}

func failure(res backend.Result) error {
	return &BackendError{Status: res.Status, Message: res.Message}
}

// UserMessage renders err for a flash or inline error.
func UserMessage(err error) string {
	var berr *BackendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &berr):
		return berr.Error()
	case errors.Is(err, httpx.ErrValidation):
		return "Please correct the highlighted fields."
	case errors.Is(err, httpx.ErrNotFound):
		return "The requested record no longer exists."
	case errors.Is(err, httpx.ErrForbidden):
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}
