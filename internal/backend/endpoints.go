package backend

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownEndpoint is returned when a name has no table entry.
var ErrUnknownEndpoint = errors.New("backend: unknown endpoint")

// Endpoint binds a backend resource path to the ordered list of wrapper keys
// its list payload may arrive under.
type Endpoint struct {
	Name string   `yaml:"name"`
	Path string   `yaml:"path"`
	Keys []string `yaml:"keys"`
}

// Endpoint names used across the application.
const (
	EndpointCars              = "cars"
	EndpointOrganizationCars  = "organization-cars"
	EndpointRentCars          = "rent-cars"
	EndpointAssignments       = "assignments"
	EndpointInspections       = "inspections"
	EndpointDailyRequests     = "daily-requests"
	EndpointFieldRequests     = "field-requests"
	EndpointMaintenanceDriver = "maintenance-driver"
	EndpointMaintenanceDist   = "maintenance-distributor"
	EndpointMaintenanceMaint  = "maintenance-maintenance"
	EndpointMaintenanceInsp   = "maintenance-inspector"
	EndpointNotifications     = "notifications"
	EndpointRoutes            = "routes"
	EndpointVehicleLocations  = "vehicle-locations"
)

// Table is the single mapping from endpoint name to path and wrapper keys.
type Table map[string]Endpoint

// DefaultTable returns the built-in endpoint table.
func DefaultTable() Table {
	entries := []Endpoint{
		{Name: EndpointCars, Path: "/auth/car/all", Keys: []string{"carList", "data"}},
		{Name: EndpointOrganizationCars, Path: "/auth/organization-car/all", Keys: []string{"organizationCarList", "data"}},
		{Name: EndpointRentCars, Path: "/auth/rent-car/all", Keys: []string{"rentCarList", "data"}},
		{Name: EndpointAssignments, Path: "/auth/assignment/all", Keys: []string{"assignmentHistoryList", "data"}},
		{Name: EndpointInspections, Path: "/api/inspections/get-all", Keys: []string{"inspections", "data"}},
		{Name: EndpointDailyRequests, Path: "/api/daily-requests/all", Keys: []string{"data", "dailyServices"}},
		{Name: EndpointFieldRequests, Path: "/api/travel-requests/corporator", Keys: []string{"data", "travelRequests"}},
		{Name: EndpointMaintenanceDriver, Path: "/api/maintenance-requests/driver", Keys: []string{"data", "maintenanceRequests"}},
		{Name: EndpointMaintenanceDist, Path: "/api/maintenance-requests/distributor", Keys: []string{"data", "maintenanceRequests"}},
		{Name: EndpointMaintenanceMaint, Path: "/api/maintenance-requests/maintenance", Keys: []string{"data", "maintenanceRequests"}},
		{Name: EndpointMaintenanceInsp, Path: "/api/maintenance-requests/inspector", Keys: []string{"data", "maintenanceRequests"}},
		{Name: EndpointNotifications, Path: "/api/notifications/unread", Keys: []string{"notifications", "data"}},
		{Name: EndpointRoutes, Path: "/api/routes", Keys: []string{"data", "routes"}},
		{Name: EndpointVehicleLocations, Path: "/api/vehicle-tracking/locations", Keys: []string{"data", "locations"}},
	}
	table := make(Table, len(entries))
	for _, e := range entries {
		table[e.Name] = e
	}
	return table
}

type tableFile struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// LoadTable returns the default table overlaid with the entries of a YAML file:
//
//	endpoints:
//	  - name: cars
//	    path: /v2/cars
//	    keys: [items]
//
// An empty path yields the defaults.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backend: read endpoint table: %w", err)
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("backend: parse endpoint table: %w", err)
	}
	for _, e := range file.Endpoints {
		if e.Name == "" {
			return nil, errors.New("backend: endpoint table entry without name")
		}
		base := table[e.Name]
		base.Name = e.Name
		if e.Path != "" {
			base.Path = e.Path
		}
		if len(e.Keys) > 0 {
			base.Keys = e.Keys
		}
		if base.Path == "" {
			return nil, fmt.Errorf("backend: endpoint %q has no path", e.Name)
		}
		table[e.Name] = base
	}
	return table, nil
}

// Lookup resolves a name.
func (t Table) Lookup(name string) (Endpoint, error) {
	e, ok := t[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return e, nil
}

// Names lists the table entries in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithQuery returns a copy of e whose path carries the encoded query string.
func (e Endpoint) WithQuery(rawQuery string) Endpoint {
	if rawQuery == "" {
		return e
	}
	sep := "?"
	if strings.Contains(e.Path, "?") {
		sep = "&"
	}
	e.Path = e.Path + sep + rawQuery
	return e
}
