package reports

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/records"
)

// View names.
const (
	ViewCars          = "cars"
	ViewInspections   = "inspections"
	ViewAssignments   = "assignments"
	ViewDailyServices = "daily-services"
	ViewFieldServices = "field-services"
)

// Status enumerations shown by the charts, in display order.
var (
	DailyServiceStatuses = []string{"PENDING", "ASSIGNED", "COMPLETED"}
	FieldServiceStatuses = []string{"PENDING", "APPROVED", "ASSIGNED", "COMPLETED", "FINISHED", "REJECTED"}
	AssignmentStatuses   = []string{"Assigned", "Pending", "Approved", "Waiting", "In_transfer", "Completed"}
	InspectionStatuses   = []string{"Approved", "Rejected", "ReadyWithWarning"}
	CarTypes             = []string{"Regular", "Organization", "Rental"}
	Positions            = []string{"Level 1", "Level 2", "Level 3", "Level 4", "Level 5"}
)

// PositionTitles names the organisational level behind each position.
var PositionTitles = map[string]string{
	"Level 1": "Directorate",
	"Level 2": "Director",
	"Level 3": "Sub Director",
	"Level 4": "Division",
	"Level 5": "Expert",
}

type carRow struct {
	ID          any    `json:"id"`
	PlateNumber string `json:"plateNumber" validate:"required"`
	Model       string `json:"model"`
	Status      string `json:"status"`
}

type inspectionRow struct {
	ID               any    `json:"id"`
	PlateNumber      string `json:"plateNumber" validate:"required"`
	InspectionStatus string `json:"inspectionStatus"`
}

type assignmentRow struct {
	ID          any    `json:"id" validate:"required"`
	PlateNumber string `json:"plateNumber"`
	Status      string `json:"status"`
	Position    string `json:"position"`
}

type dailyServiceRow struct {
	ID           any    `json:"id" validate:"required"`
	ClaimantName string `json:"claimantName"`
	Status       string `json:"status"`
}

type fieldServiceRow struct {
	ID         any    `json:"id" validate:"required"`
	Status     string `json:"status"`
	Department string `json:"department"`
}

// Catalog returns every report definition keyed by name.
func Catalog() map[string]Definition {
	defs := []Definition{
		carsReport(),
		inspectionsReport(),
		assignmentsReport(),
		dailyServicesReport(),
		fieldServicesReport(),
	}
	out := make(map[string]Definition, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}

// Names lists the catalog in menu order.
func Names() []string {
	return []string{ViewCars, ViewInspections, ViewAssignments, ViewDailyServices, ViewFieldServices}
}

func carsReport() Definition {
	return Definition{
		Name:  ViewCars,
		Title: "Car Reports",
		Sources: []Source{
			{Endpoint: backend.EndpointCars, Tag: "Regular"},
			{Endpoint: backend.EndpointOrganizationCars, Tag: "Organization"},
			{Endpoint: backend.EndpointRentCars, Tag: "Rental"},
		},
		TagField: "carCategory",
		Unique:   true,
		Fields: []Field{
			{Key: "plateNumber", Label: "Plate number", Kind: FieldText},
			{Key: "status", Label: "Status", Kind: FieldText},
			{Key: "carType", Label: "Car type", Kind: FieldSelect, Options: CarTypes},
			{Key: "model", Label: "Model", Kind: FieldText},
			{Key: "registered", Label: "Registered", Kind: FieldDateRange},
		},
		Bindings: records.Bindings{
			"carType":    {Fields: []string{"carCategory"}, Mode: records.Equal},
			"registered": {Fields: []string{"registeredDate", "createdAt"}, Mode: records.Range},
		},
		Columns: []Column{
			{Header: "Plate number", Field: "plateNumber"},
			{Header: "Category", Field: "carCategory"},
			{Header: "Type", Field: "carType"},
			{Header: "Model", Field: "model"},
			{Header: "Status", Field: "status"},
			{Header: "Registered", Field: "registeredDate", Date: true},
		},
		Check: backend.Check[carRow],
		Derive: func(items []backend.Record, _ Params) []Chart {
			return []Chart{
				countChart("status", "Car Status Distribution", ChartDonut, records.CountDynamic(items, "status", "UNKNOWN")),
				countChart("category", "Cars per Category", ChartBar, records.CountBy(items, "carCategory", CarTypes, records.CountOptions{})),
				countChart("models", "Top Models", ChartBar, records.TopN(records.CountDynamic(items, "model", "Unknown"), 5)),
			}
		},
		Stats: func(items []backend.Record) []Stat {
			byType := records.CountBy(items, "carCategory", CarTypes, records.CountOptions{})
			stats := []Stat{{Label: "Total cars", Value: strconv.Itoa(len(items))}}
			for _, agg := range byType {
				stats = append(stats, Stat{Label: agg.Name, Value: strconv.Itoa(agg.Value)})
			}
			return stats
		},
	}
}

func inspectionsReport() Definition {
	return Definition{
		Name:    ViewInspections,
		Title:   "Inspection Reports",
		Sources: []Source{{Endpoint: backend.EndpointInspections}},
		Fields: []Field{
			{Key: "plateNumber", Label: "Plate number", Kind: FieldText},
			{Key: "inspectionStatus", Label: "Status", Kind: FieldSelect, Options: InspectionStatuses},
			{Key: "inspected", Label: "Inspected", Kind: FieldDateRange},
		},
		Bindings: records.Bindings{
			"inspectionStatus": {Fields: []string{"inspectionStatus"}, Mode: records.Equal},
			"inspected":        {Fields: []string{"inspectionDate"}, Mode: records.Range},
		},
		Columns: []Column{
			{Header: "Plate number", Field: "plateNumber"},
			{Header: "Inspector", Field: "inspectorName"},
			{Header: "Status", Field: "inspectionStatus"},
			{Header: "Inspected", Field: "inspectionDate", Date: true},
			{Header: "Notes", Field: "notes"},
		},
		Check: backend.Check[inspectionRow],
		Derive: func(items []backend.Record, p Params) []Chart {
			weeks := records.Weekly(items, "inspectionDate", "inspectionStatus", p.Month, InspectionStatuses)
			return []Chart{
				countChart("status", "Inspection Status", ChartDonut, records.CountBy(items, "inspectionStatus", InspectionStatuses, records.CountOptions{Other: "Unknown"})),
				weeklyChart("weekly", "Weekly Inspections, "+p.Month.Format("January 2006"), weeks, InspectionStatuses),
				countChart("monthly", fmt.Sprintf("Inspected per Month, %d", p.Year), ChartLine, records.Monthly(items, "inspectionDate", p.Year)),
			}
		},
		Stats: func(items []backend.Record) []Stat {
			stats := []Stat{{Label: "Inspections", Value: strconv.Itoa(len(items))}}
			for _, agg := range records.CountBy(items, "inspectionStatus", InspectionStatuses, records.CountOptions{DropZero: true, Other: "Unknown"}) {
				stats = append(stats, Stat{Label: agg.Name, Value: strconv.Itoa(agg.Value)})
			}
			return stats
		},
	}
}

func assignmentsReport() Definition {
	return Definition{
		Name:    ViewAssignments,
		Title:   "Assignment Reports",
		Sources: []Source{{Endpoint: backend.EndpointAssignments}},
		Fields: []Field{
			{Key: "plateNumber", Label: "Plate number", Kind: FieldText},
			{Key: "status", Label: "Status", Kind: FieldSelect, Options: AssignmentStatuses},
			{Key: "position", Label: "Position", Kind: FieldSelect, Options: Positions},
			{Key: "assigned", Label: "Assigned", Kind: FieldDateRange},
		},
		Bindings: records.Bindings{
			"plateNumber": {Fields: []string{"plateNumber", "allPlateNumbers"}, Mode: records.Substring},
			"status":      {Fields: []string{"status"}, Mode: records.Equal},
			"position":    {Fields: []string{"position"}, Mode: records.Equal},
			"assigned":    {Fields: []string{"assignedDate"}, Mode: records.Range},
		},
		Columns: []Column{
			{Header: "Request letter", Field: "requestLetterNo"},
			{Header: "Requester", Field: "requesterName"},
			{Header: "Position", Field: "position"},
			{Header: "Department", Field: "department"},
			{Header: "Plate number", Field: "plateNumber"},
			{Header: "Rental type", Field: "rentalType"},
			{Header: "Status", Field: "status"},
			{Header: "Assigned", Field: "assignedDate", Date: true},
		},
		Check: backend.Check[assignmentRow],
		Derive: func(items []backend.Record, p Params) []Chart {
			positions := records.CountBy(items, "position", Positions, records.CountOptions{Other: "Unknown"})
			for i := range positions {
				if title, ok := PositionTitles[positions[i].Name]; ok {
					positions[i].Name = title
				}
			}
			return []Chart{
				countChart("status", "Assignment Status", ChartDonut, records.CountBy(items, "status", AssignmentStatuses, records.CountOptions{Other: "Unknown"})),
				countChart("position", "Assignments per Position", ChartBar, positions),
				countChart("rental", "Rental Type", ChartDonut, records.CountDynamic(items, "rentalType", "UNKNOWN")),
				countChart("monthly", fmt.Sprintf("Assignments per Month, %d", p.Year), ChartLine, records.Monthly(items, "assignedDate", p.Year)),
			}
		},
		Stats: func(items []backend.Record) []Stat {
			return []Stat{
				{Label: "Assignments", Value: strconv.Itoa(len(items))},
				{Label: "Pending", Value: strconv.Itoa(countStatus(items, "status", "Pending"))},
				{Label: "Completed", Value: strconv.Itoa(countStatus(items, "status", "Completed"))},
			}
		},
	}
}

func dailyServicesReport() Definition {
	return Definition{
		Name:    ViewDailyServices,
		Title:   "Daily Service Reports",
		Sources: []Source{{Endpoint: backend.EndpointDailyRequests}},
		Fields: []Field{
			{Key: "claimantName", Label: "Claimant", Kind: FieldText},
			{Key: "status", Label: "Status", Kind: FieldSelect, Options: DailyServiceStatuses},
			{Key: "requested", Label: "Requested", Kind: FieldDateRange},
		},
		Bindings: records.Bindings{
			"status":    {Fields: []string{"status"}, Mode: records.Equal},
			"requested": {Fields: []string{"dateTime"}, Mode: records.Range},
		},
		Columns: []Column{
			{Header: "Claimant", Field: "claimantName"},
			{Header: "Requested", Field: "dateTime", Date: true},
			{Header: "From", Field: "startingPlace"},
			{Header: "To", Field: "endingPlace"},
			{Header: "Plate number", Field: "carPlateNumber"},
			{Header: "Driver", Field: "driverName"},
			{Header: "Km", Field: "kmDifference"},
			{Header: "Status", Field: "status"},
		},
		Check: backend.Check[dailyServiceRow],
		Derive: func(items []backend.Record, p Params) []Chart {
			return []Chart{
				countChart("status", "Daily Service Status", ChartDonut, records.CountBy(items, "status", DailyServiceStatuses, records.CountOptions{})),
				countChart("monthly", fmt.Sprintf("Requests per Month, %d", p.Year), ChartLine, records.Monthly(items, "dateTime", p.Year)),
			}
		},
		Stats: func(items []backend.Record) []Stat {
			return []Stat{
				{Label: "Requests", Value: strconv.Itoa(len(items))},
				{Label: "Total km", Value: strconv.FormatFloat(records.Sum(items, "kmDifference"), 'f', 1, 64)},
			}
		},
	}
}

func fieldServicesReport() Definition {
	return Definition{
		Name:    ViewFieldServices,
		Title:   "Field Service Reports",
		Sources: []Source{{Endpoint: backend.EndpointFieldRequests}},
		Fields: []Field{
			{Key: "claimantName", Label: "Claimant", Kind: FieldText},
			{Key: "department", Label: "Department", Kind: FieldText},
			{Key: "status", Label: "Status", Kind: FieldSelect, Options: FieldServiceStatuses},
			{Key: "starting", Label: "Starting", Kind: FieldDateRange},
		},
		Bindings: records.Bindings{
			"claimantName": {Fields: []string{"claimantName", "travelerName"}, Mode: records.Substring},
			"status":       {Fields: []string{"status"}, Mode: records.Equal},
			"starting":     {Fields: []string{"startingDate"}, Mode: records.Range},
		},
		Columns: []Column{
			{Header: "Claimant", Field: "claimantName"},
			{Header: "Department", Field: "department"},
			{Header: "Destination", Field: "destinationPlace"},
			{Header: "Starting", Field: "startingDate", Date: true},
			{Header: "Returning", Field: "returnDate", Date: true},
			{Header: "Job status", Field: "jobStatus"},
			{Header: "Status", Field: "status"},
		},
		Check: backend.Check[fieldServiceRow],
		Derive: func(items []backend.Record, p Params) []Chart {
			departments := records.CountDynamic(items, "department", "UNKNOWN")
			sort.SliceStable(departments, func(i, j int) bool { return departments[i].Name < departments[j].Name })
			return []Chart{
				countChart("status", "Field Service Status", ChartDonut, records.CountBy(items, "status", FieldServiceStatuses, records.CountOptions{})),
				countChart("departments", "Requests per Department", ChartBar, departments),
			}
		},
		Stats: func(items []backend.Record) []Stat {
			return []Stat{
				{Label: "Requests", Value: strconv.Itoa(len(items))},
				{Label: "Pending", Value: strconv.Itoa(countStatus(items, "status", "PENDING"))},
			}
		},
	}
}

func countStatus(items []backend.Record, field, status string) int {
	return records.CountBy(items, field, []string{status}, records.CountOptions{DropZero: false})[0].Value
}
