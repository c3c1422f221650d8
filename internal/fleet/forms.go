package fleet

import (
	"errors"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

// FieldErrors maps a form field to its message.
type FieldErrors map[string]string

// ValidationError carries per-field messages. It matches httpx.ErrValidation.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return httpx.ErrValidation }

// FieldsOf extracts per-field messages from err, if any.
func FieldsOf(err error) FieldErrors {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

// Car types and fuel types accepted by the registration form.
var (
	CarTypes  = []string{"Minibus", "Bus", "Sedan", "SUV", "Truck", "Automobile"}
	FuelTypes = []string{"Petrol", "Diesel", "Electric", "Hybrid"}
	// Positions rank assignment requesters, Level 1 highest.
	Positions   = []string{"Level 1", "Level 2", "Level 3", "Level 4", "Level 5"}
	RentalTypes = []string{"standard", "project", "organizational"}
	Levels      = []string{"low", "medium", "high"}
)

// CarForm is the payload of vehicle registration and update.
type CarForm struct {
	PlateNumber     string  `json:"plateNumber" validate:"required,max=20"`
	OwnerName       string  `json:"ownerName" validate:"required,max=100"`
	OwnerPhone      string  `json:"ownerPhone" validate:"required,max=20"`
	Model           string  `json:"model" validate:"required,max=50"`
	CarType         string  `json:"carType" validate:"required,oneof=Minibus Bus Sedan SUV Truck Automobile"`
	ManufactureYear string  `json:"manufactureYear" validate:"required,numeric,len=4"`
	MotorCapacity   float64 `json:"motorCapacity" validate:"gte=0"`
	KmPerLiter      float64 `json:"kmPerLiter" validate:"gte=0"`
	TotalKm         float64 `json:"totalKm" validate:"gte=0"`
	FuelType        string  `json:"fuelType" validate:"required,oneof=Petrol Diesel Electric Hybrid"`
	Status          string  `json:"status,omitempty" validate:"max=30"`
	ParkingLocation string  `json:"parkingLocation" validate:"max=100"`
}

// CarFormFromRecord prefills the update form.
func CarFormFromRecord(rec backend.Record) CarForm {
	f := CarForm{
		PlateNumber:     rec.Text("plateNumber"),
		OwnerName:       rec.Text("ownerName"),
		OwnerPhone:      rec.Text("ownerPhone"),
		Model:           rec.Text("model"),
		CarType:         rec.Text("carType"),
		ManufactureYear: rec.Text("manufactureYear"),
		FuelType:        rec.Text("fuelType"),
		Status:          rec.Text("status"),
		ParkingLocation: rec.Text("parkingLocation"),
	}
	f.MotorCapacity, _ = rec.Number("motorCapacity")
	f.KmPerLiter, _ = rec.Number("kmPerLiter")
	f.TotalKm, _ = rec.Number("totalKm")
	return f
}

// DailyRequestForm is a same-day service request.
type DailyRequestForm struct {
	DateTime      string   `json:"dateTime" validate:"required"`
	Travelers     []string `json:"travelers" validate:"required,min=1,dive,required"`
	StartingPlace string   `json:"startingPlace" validate:"required,max=100"`
	EndingPlace   string   `json:"endingPlace" validate:"required,max=100"`
	ClaimantName  string   `json:"claimantName" validate:"required,max=100"`
	Status        string   `json:"status"`
}

// FieldRequestForm is a multi-day field trip request.
type FieldRequestForm struct {
	StartingPlace    string   `json:"startingPlace" validate:"required,max=100"`
	DestinationPlace string   `json:"destinationPlace" validate:"required,max=100"`
	Travelers        []string `json:"travelers" validate:"required,min=1,dive,required"`
	TravelReason     string   `json:"travelReason" validate:"required,max=500"`
	CarType          string   `json:"carType,omitempty" validate:"max=30"`
	TravelDistance   float64  `json:"travelDistance,omitempty" validate:"gte=0"`
	StartingDate     string   `json:"startingDate" validate:"required"`
	ReturnDate       string   `json:"returnDate,omitempty"`
	Department       string   `json:"department" validate:"required,max=100"`
	JobStatus        string   `json:"jobStatus" validate:"required,max=100"`
	ClaimantName     string   `json:"claimantName" validate:"required,max=100"`
	TeamLeaderName   string   `json:"teamLeaderName" validate:"required,max=100"`
	Status           string   `json:"status"`
}

// AssignmentForm requests a car for an employee.
type AssignmentForm struct {
	RequestLetterNo       string  `json:"requestLetterNo" validate:"required,max=50"`
	RequestDate           string  `json:"requestDate"`
	RequesterName         string  `json:"requesterName" validate:"required,max=100"`
	RentalType            string  `json:"rentalType" validate:"required,oneof=standard project organizational"`
	Position              string  `json:"position" validate:"required,oneof='Level 1' 'Level 2' 'Level 3' 'Level 4' 'Level 5'"`
	Department            string  `json:"department" validate:"required,max=100"`
	PhoneNumber           string  `json:"phoneNumber" validate:"required,max=20"`
	TravelWorkPercentage  string  `json:"travelWorkPercentage" validate:"required,oneof=low medium high"`
	ShortNoticePercentage string  `json:"shortNoticePercentage" validate:"required,oneof=low medium high"`
	MobilityIssue         string  `json:"mobilityIssue" validate:"required,oneof=yes no"`
	Gender                string  `json:"gender" validate:"required,oneof=male female"`
	PlateNumber           string  `json:"plateNumber,omitempty" validate:"max=20"`
	TotalPercentage       float64 `json:"totalPercentage"`
	Status                string  `json:"status"`
}

// HighPriority is the score from which a requester is served first.
const HighPriority = 70

// Priority scores the requester's need for a dedicated car.
func (f AssignmentForm) Priority() float64 {
	travel := map[string]float64{"low": 15, "medium": 25, "high": 35}
	notice := map[string]float64{"low": 35, "medium": 45, "high": 55}
	total := travel[f.TravelWorkPercentage] + notice[f.ShortNoticePercentage]
	if f.MobilityIssue == "yes" {
		total += 5
	}
	if f.Gender == "female" {
		total += 5
	} else {
		total++
	}
	return total
}

// MaintenanceForm reports a vehicle defect.
type MaintenanceForm struct {
	PlateNumber          string  `json:"plateNumber" validate:"required,max=20"`
	VehicleType          string  `json:"vehicleType" validate:"required,max=50"`
	ReportingDriver      string  `json:"reportingDriver" validate:"required,max=50"`
	CategoryWorkProcess  string  `json:"categoryWorkProcess" validate:"required,max=50"`
	KilometerReading     float64 `json:"kilometerReading" validate:"gt=0"`
	DefectDetails        string  `json:"defectDetails" validate:"required,max=500"`
	MechanicDiagnosis    string  `json:"mechanicDiagnosis,omitempty" validate:"max=500"`
	RequestingPersonnel  string  `json:"requestingPersonnel,omitempty" validate:"max=100"`
	AuthorizingPersonnel string  `json:"authorizingPersonnel,omitempty" validate:"max=100"`
	Status               string  `json:"status"`
}

var messages = map[string]string{
	"required": "is required",
	"max":      "is too long",
	"len":      "has the wrong length",
	"numeric":  "must be a number",
	"oneof":    "is not an allowed value",
	"gte":      "must not be negative",
	"gt":       "must be greater than zero",
	"min":      "needs at least one entry",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateForm runs struct validation and merges parse errors collected
// while reading the form.
func validateForm(v *validator.Validate, form any, parsed FieldErrors) error {
	fields := FieldErrors{}
	for k, msg := range parsed {
		fields[k] = msg
	}
	if err := v.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			name := fe.Field()
			if i := strings.IndexByte(name, '['); i > 0 {
				name = name[:i]
			}
			if _, seen := fields[name]; seen {
				continue
			}
			msg, ok := messages[fe.Tag()]
			if !ok {
				msg = "is invalid"
			}
			fields[name] = msg
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

type formReader struct {
	values url.Values
	errs   FieldErrors
}

func newFormReader(values url.Values) *formReader {
	return &formReader{values: values, errs: FieldErrors{}}
}

func (f *formReader) text(key string) string {
	return strings.TrimSpace(f.values.Get(key))
}

func (f *formReader) number(key string) float64 {
	raw := f.text(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f.errs[key] = "must be a number"
		return 0
	}
	return n
}

// list splits a comma or newline separated input.
func (f *formReader) list(key string) []string {
	raw := f.values.Get(key)
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dateTime normalizes a datetime-local or date input to the backend's
// ISO layout. Invalid input is recorded and returned unchanged.
func (f *formReader) dateTime(key string) string {
	raw := f.text(key)
	if raw == "" {
		return ""
	}
	t, ok := backend.ParseDate(raw)
	if !ok {
		f.errs[key] = "is not a valid date"
		return raw
	}
	return t.Format("2006-01-02T15:04:05")
}

// ParseCarForm reads the vehicle form.
func ParseCarForm(values url.Values) (CarForm, FieldErrors) {
	f := newFormReader(values)
	form := CarForm{
		PlateNumber:     f.text("plateNumber"),
		OwnerName:       f.text("ownerName"),
		OwnerPhone:      f.text("ownerPhone"),
		Model:           f.text("model"),
		CarType:         f.text("carType"),
		ManufactureYear: f.text("manufactureYear"),
		MotorCapacity:   f.number("motorCapacity"),
		KmPerLiter:      f.number("kmPerLiter"),
		TotalKm:         f.number("totalKm"),
		FuelType:        f.text("fuelType"),
		Status:          f.text("status"),
		ParkingLocation: f.text("parkingLocation"),
	}
	return form, f.errs
}

// ParseDailyRequestForm reads the daily request form.
func ParseDailyRequestForm(values url.Values) (DailyRequestForm, FieldErrors) {
	f := newFormReader(values)
	form := DailyRequestForm{
		DateTime:      f.dateTime("dateTime"),
		Travelers:     f.list("travelers"),
		StartingPlace: f.text("startingPlace"),
		EndingPlace:   f.text("endingPlace"),
		ClaimantName:  f.text("claimantName"),
	}
	return form, f.errs
}

// ParseFieldRequestForm reads the field trip form.
func ParseFieldRequestForm(values url.Values) (FieldRequestForm, FieldErrors) {
	f := newFormReader(values)
	form := FieldRequestForm{
		StartingPlace:    f.text("startingPlace"),
		DestinationPlace: f.text("destinationPlace"),
		Travelers:        f.list("travelers"),
		TravelReason:     f.text("travelReason"),
		CarType:          f.text("carType"),
		TravelDistance:   f.number("travelDistance"),
		StartingDate:     f.dateTime("startingDate"),
		ReturnDate:       f.dateTime("returnDate"),
		Department:       f.text("department"),
		JobStatus:        f.text("jobStatus"),
		ClaimantName:     f.text("claimantName"),
		TeamLeaderName:   f.text("teamLeaderName"),
	}
	if form.ReturnDate != "" && form.StartingDate != "" {
		start, okStart := backend.ParseDate(form.StartingDate)
		end, okEnd := backend.ParseDate(form.ReturnDate)
		if okStart && okEnd && end.Before(start) {
			f.errs["returnDate"] = "must not be before the starting date"
		}
	}
	return form, f.errs
}

// ParseAssignmentForm reads the assignment form.
func ParseAssignmentForm(values url.Values) (AssignmentForm, FieldErrors) {
	f := newFormReader(values)
	form := AssignmentForm{
		RequestLetterNo:       f.text("requestLetterNo"),
		RequesterName:         f.text("requesterName"),
		RentalType:            f.text("rentalType"),
		Position:              f.text("position"),
		Department:            f.text("department"),
		PhoneNumber:           f.text("phoneNumber"),
		TravelWorkPercentage:  f.text("travelWorkPercentage"),
		ShortNoticePercentage: f.text("shortNoticePercentage"),
		MobilityIssue:         f.text("mobilityIssue"),
		Gender:                f.text("gender"),
		PlateNumber:           f.text("plateNumber"),
	}
	return form, f.errs
}

// ParseMaintenanceForm reads the maintenance request form.
func ParseMaintenanceForm(values url.Values) (MaintenanceForm, FieldErrors) {
	f := newFormReader(values)
	form := MaintenanceForm{
		PlateNumber:          f.text("plateNumber"),
		VehicleType:          f.text("vehicleType"),
		ReportingDriver:      f.text("reportingDriver"),
		CategoryWorkProcess:  f.text("categoryWorkProcess"),
		KilometerReading:     f.number("kilometerReading"),
		DefectDetails:        f.text("defectDetails"),
		MechanicDiagnosis:    f.text("mechanicDiagnosis"),
		RequestingPersonnel:  f.text("requestingPersonnel"),
		AuthorizingPersonnel: f.text("authorizingPersonnel"),
	}
	return form, f.errs
}

func today(now time.Time) string {
	return now.Format("2006-01-02")
}
