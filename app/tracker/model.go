package tracker

import (
	"strings"
	"time"

	"github.com/umputun/jobtrack/app/enums"
)

// Application is a single job application record
type Application struct {
	ID              string       `json:"id" yaml:"id"`
	CompanyName     string       `json:"companyName" yaml:"companyName"`
	Position        string       `json:"position" yaml:"position"`
	ApplicationDate Date         `json:"applicationDate" yaml:"applicationDate"`
	Status          enums.Status `json:"status" yaml:"status"`
	Salary          *string      `json:"salary,omitempty" yaml:"salary,omitempty"`
	Notes           *string      `json:"notes,omitempty" yaml:"notes,omitempty"`
	ContactPerson   *string      `json:"contactPerson,omitempty" yaml:"contactPerson,omitempty"`
	URL             *string      `json:"url,omitempty" yaml:"url,omitempty"`
	CreatedAt       time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt       *time.Time   `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Fields is a partial application used by add and update. A nil field is not supplied and
// keeps the current value. For the optional string fields a supplied blank string clears the value.
type Fields struct {
	CompanyName     *string       `json:"companyName,omitempty"`
	Position        *string       `json:"position,omitempty"`
	ApplicationDate *Date         `json:"applicationDate,omitempty"`
	Status          *enums.Status `json:"status,omitempty"`
	Salary          *string       `json:"salary,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	ContactPerson   *string       `json:"contactPerson,omitempty"`
	URL             *string       `json:"url,omitempty"`
}

// apply merges supplied fields into a
func (f Fields) apply(a *Application) {
	if f.CompanyName != nil {
		a.CompanyName = *f.CompanyName
	}
	if f.Position != nil {
		a.Position = *f.Position
	}
	if f.ApplicationDate != nil {
		a.ApplicationDate = *f.ApplicationDate
	}
	if f.Status != nil {
		a.Status = *f.Status
	}
	if f.Salary != nil {
		a.Salary = Optional(*f.Salary)
	}
	if f.Notes != nil {
		a.Notes = Optional(*f.Notes)
	}
	if f.ContactPerson != nil {
		a.ContactPerson = Optional(*f.ContactPerson)
	}
	if f.URL != nil {
		a.URL = Optional(*f.URL)
	}
}

// Optional returns nil for a blank string and a pointer to the trimmed string otherwise
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// defaultStatus sets the status of a record without one to applied
func (a *Application) defaultStatus() {
	if a.Status == (enums.Status{}) {
		a.Status = enums.StatusApplied
	}
}

// normalizeOptionals turns blank optional strings stored by older versions into nil
func (a *Application) normalizeOptionals() {
	for _, p := range []**string{&a.Salary, &a.Notes, &a.ContactPerson, &a.URL} {
		if *p != nil {
			*p = Optional(**p)
		}
	}
}
