// Package roles maps the signed-in user's stored role onto the closed set of
// actors the maintenance and request pages are rendered for.
package roles

import (
	"strings"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

// Maintenance request statuses.
const (
	StatusPending   = "PENDING"
	StatusChecked   = "CHECKED"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCompleted = "COMPLETED"
	StatusFinished  = "FINISHED"
)

// Actor is a participant of the maintenance workflow. The set of
// implementations is closed.
type Actor interface {
	// Tab is the tab key selecting this actor's listing.
	Tab() string
	Label() string
	// Endpoint names the backend listing for this actor.
	Endpoint() string
	// Transitions lists the statuses this actor may move a request in
	// status to.
	Transitions(status string) []string
	// CanCreate reports whether the actor files new requests.
	CanCreate() bool

	sealed()
}

// Driver files requests and closes them once the repair is done.
type Driver struct{}

// Distributor checks incoming requests.
type Distributor struct{}

// Maintenance approves checked requests.
type Maintenance struct{}

// Inspector signs off completed repairs.
type Inspector struct{}

func (Driver) Tab() string      { return "driver" }
func (Driver) Label() string    { return "Driver" }
func (Driver) Endpoint() string { return backend.EndpointMaintenanceDriver }
func (Driver) CanCreate() bool  { return true }
func (Driver) Transitions(status string) []string {
	if strings.EqualFold(status, StatusApproved) {
		return []string{StatusCompleted}
	}
	return nil
}
func (Driver) sealed() {}

func (Distributor) Tab() string      { return "distributor" }
func (Distributor) Label() string    { return "Distributor" }
func (Distributor) Endpoint() string { return backend.EndpointMaintenanceDist }
func (Distributor) CanCreate() bool  { return false }
func (Distributor) Transitions(status string) []string {
	if strings.EqualFold(status, StatusPending) {
		return []string{StatusChecked, StatusRejected}
	}
	return nil
}
func (Distributor) sealed() {}

func (Maintenance) Tab() string      { return "maintenance" }
func (Maintenance) Label() string    { return "Maintenance" }
func (Maintenance) Endpoint() string { return backend.EndpointMaintenanceMaint }
func (Maintenance) CanCreate() bool  { return false }
func (Maintenance) Transitions(status string) []string {
	if strings.EqualFold(status, StatusChecked) {
		return []string{StatusApproved, StatusRejected}
	}
	return nil
}
func (Maintenance) sealed() {}

func (Inspector) Tab() string      { return "inspector" }
func (Inspector) Label() string    { return "Inspector" }
func (Inspector) Endpoint() string { return backend.EndpointMaintenanceInsp }
func (Inspector) CanCreate() bool  { return false }
func (Inspector) Transitions(status string) []string {
	if strings.EqualFold(status, StatusCompleted) {
		return []string{StatusFinished}
	}
	return nil
}
func (Inspector) sealed() {}

// Actors lists every maintenance actor in tab order.
func Actors() []Actor {
	return []Actor{Driver{}, Distributor{}, Maintenance{}, Inspector{}}
}

// ActorFor maps a stored role name to its actor. Unknown roles are drivers.
func ActorFor(role string) Actor {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "DISTRIBUTOR", "HEAD_OF_DISTRIBUTOR":
		return Distributor{}
	case "MAINTENANCE":
		return Maintenance{}
	case "INSPECTOR":
		return Inspector{}
	default:
		return Driver{}
	}
}

// ActorByTab resolves a tab key.
func ActorByTab(tab string) (Actor, bool) {
	for _, a := range Actors() {
		if a.Tab() == tab {
			return a, true
		}
	}
	return nil, false
}
