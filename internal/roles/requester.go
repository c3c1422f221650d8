package roles

import "strings"

// Request form keys offered on the request page.
const (
	FormField   = "field"
	FormDaily   = "daily"
	FormService = "service"
)

// Requester is the audience the service request page is rendered for. The
// set of implementations is closed.
type Requester interface {
	Tab() string
	Label() string
	// Forms lists the request forms this requester may file, default first.
	Forms() []string

	sealedRequester()
}

// User is an ordinary employee.
type User struct{}

// Corporator files field trips on behalf of a department.
type Corporator struct{}

// Manager reviews requests; distributors and their head.
type Manager struct{}

// DriverRequester is a driver filing service requests for a vehicle.
type DriverRequester struct{}

func (User) Tab() string     { return "user" }
func (User) Label() string   { return "Employee" }
func (User) Forms() []string { return []string{FormField} }
func (User) sealedRequester() {}

func (Corporator) Tab() string     { return "corporator" }
func (Corporator) Label() string   { return "Corporator" }
func (Corporator) Forms() []string { return []string{FormField, FormDaily} }
func (Corporator) sealedRequester() {}

func (Manager) Tab() string     { return "manager" }
func (Manager) Label() string   { return "Manager" }
func (Manager) Forms() []string { return []string{FormField, FormDaily, FormService} }
func (Manager) sealedRequester() {}

func (DriverRequester) Tab() string     { return "driver" }
func (DriverRequester) Label() string   { return "Driver" }
func (DriverRequester) Forms() []string { return []string{FormService, FormDaily} }
func (DriverRequester) sealedRequester() {}

// RequesterFor maps a stored role name to its requester. Unknown roles are
// corporators.
func RequesterFor(role string) Requester {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case "USER":
		return User{}
	case "DISTRIBUTOR", "HEAD_OF_DISTRIBUTOR":
		return Manager{}
	case "DRIVER":
		return DriverRequester{}
	default:
		return Corporator{}
	}
}
