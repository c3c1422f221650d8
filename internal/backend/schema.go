package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SchemaError reports a record that does not satisfy its typed row schema.
type SchemaError struct {
	Index int
	Field string
	Rule  string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("malformed record %d: field %s failed %s", e.Index, e.Field, e.Rule)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Decode converts records to typed rows and validates each one. The first
// violation stops decoding with a *SchemaError.
func Decode[T any](records []Record, validate *validator.Validate) ([]T, error) {
	if validate == nil {
		validate = NewValidator()
	}
	out := make([]T, 0, len(records))
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, &SchemaError{Index: i, Err: err}
		}
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return nil, &SchemaError{Index: i, Field: typeErr.Field, Rule: "type " + typeErr.Type.String(), Err: err}
			}
			return nil, &SchemaError{Index: i, Err: err}
		}
		if err := validate.Struct(row); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return nil, &SchemaError{Index: i, Field: verrs[0].Field(), Rule: verrs[0].Tag(), Err: err}
			}
			return nil, &SchemaError{Index: i, Err: err}
		}
		out = append(out, row)
	}
	return out, nil
}

// Check validates records against T without keeping the typed rows.
func Check[T any](records []Record, validate *validator.Validate) error {
	_, err := Decode[T](records, validate)
	return err
}

// CheckUnique verifies that record identities (see Record.ID) do not repeat.
// Records without an identity are ignored.
func CheckUnique(records []Record) error {
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		id := rec.ID()
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			return &SchemaError{Index: i, Field: "id", Rule: "unique", Err: fmt.Errorf("identity %q repeats record %d", id, first)}
		}
		seen[id] = i
	}
	return nil
}
