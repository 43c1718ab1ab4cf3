package tracker

import (
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/umputun/jobtrack/app/enums"
)

//go:generate go run ./internal/schema ../../schema.json

// Schema returns the JSON schema of the persisted envelope
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(Date{}):
				return &jsonschema.Schema{Type: "string", Format: "date"}
			case reflect.TypeOf(enums.Status{}):
				values := make([]any, 0, len(enums.StatusNames))
				for _, name := range enums.StatusNames {
					values = append(values, name)
				}
				return &jsonschema.Schema{Type: "string", Enum: values}
			}
			return nil
		},
	}

	schema := r.Reflect(&Envelope{})
	schema.Title = "Job tracker storage schema"
	schema.Description = "Persisted collection of job applications"
	return schema
}
