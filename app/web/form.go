package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/umputun/jobtrack/app/enums"
	"github.com/umputun/jobtrack/app/tracker"
)

// jobForm is the application as entered in the form or sent to the json api
type jobForm struct {
	CompanyName     string `form:"companyName" json:"companyName" validate:"required,max=200"`
	Position        string `form:"position" json:"position" validate:"required,max=200"`
	ApplicationDate string `form:"applicationDate" json:"applicationDate" validate:"required,datetime=2006-01-02"`
	Status          string `form:"status" json:"status" validate:"required,status"`
	Salary          string `form:"salary" json:"salary" validate:"max=100"`
	Notes           string `form:"notes" json:"notes" validate:"max=5000"`
	ContactPerson   string `form:"contactPerson" json:"contactPerson" validate:"max=200"`
	URL             string `form:"url" json:"url" validate:"omitempty,url,max=2000"`
}

// formData is passed to the job modal template
type formData struct {
	Form     jobForm
	Editing  bool
	Errors   map[string]string // form field name -> message
	Statuses []enums.Status
	BaseURL  string
}

// jobPatch is a partial update sent to the json api, nil fields are kept
type jobPatch struct {
	CompanyName     *string `json:"companyName"`
	Position        *string `json:"position"`
	ApplicationDate *string `json:"applicationDate"`
	Status          *string `json:"status"`
	Salary          *string `json:"salary"`
	Notes           *string `json:"notes"`
	ContactPerson   *string `json:"contactPerson"`
	URL             *string `json:"url"`
}

// formFromRequest reads the posted form, values trimmed
func formFromRequest(r *http.Request) jobForm {
	val := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }
	return jobForm{
		CompanyName:     val("companyName"),
		Position:        val("position"),
		ApplicationDate: val("applicationDate"),
		Status:          val("status"),
		Salary:          val("salary"),
		Notes:           val("notes"),
		ContactPerson:   val("contactPerson"),
		URL:             val("url"),
	}
}

// formFromApp fills the form for editing
func formFromApp(a tracker.Application) jobForm {
	return jobForm{
		CompanyName:     a.CompanyName,
		Position:        a.Position,
		ApplicationDate: a.ApplicationDate.String(),
		Status:          a.Status.String(),
		Salary:          deref(a.Salary),
		Notes:           deref(a.Notes),
		ContactPerson:   deref(a.ContactPerson),
		URL:             deref(a.URL),
	}
}

// trim drops surrounding spaces of all values
func (f jobForm) trim() jobForm {
	for _, p := range []*string{&f.CompanyName, &f.Position, &f.ApplicationDate, &f.Status,
		&f.Salary, &f.Notes, &f.ContactPerson, &f.URL} {
		*p = strings.TrimSpace(*p)
	}
	return f
}

// apply overlays supplied patch values on the form
func (p jobPatch) apply(f jobForm) jobForm {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.CompanyName, p.CompanyName)
	set(&f.Position, p.Position)
	set(&f.ApplicationDate, p.ApplicationDate)
	set(&f.Status, p.Status)
	set(&f.Salary, p.Salary)
	set(&f.Notes, p.Notes)
	set(&f.ContactPerson, p.ContactPerson)
	set(&f.URL, p.URL)
	return f.trim()
}

// fields converts a validated form to tracker fields, every field supplied
func (f jobForm) fields() (tracker.Fields, error) {
	date, err := tracker.ParseDate(f.ApplicationDate)
	if err != nil {
		return tracker.Fields{}, fmt.Errorf("invalid application date: %w", err)
	}
	status, err := enums.ParseStatus(f.Status)
	if err != nil {
		return tracker.Fields{}, fmt.Errorf("invalid status: %w", err)
	}
	return tracker.Fields{
		CompanyName:     &f.CompanyName,
		Position:        &f.Position,
		ApplicationDate: &date,
		Status:          &status,
		Salary:          &f.Salary,
		Notes:           &f.Notes,
		ContactPerson:   &f.ContactPerson,
		URL:             &f.URL,
	}, nil
}

// validateForm returns messages per form field, nil if the form is valid
func (s *Server) validateForm(f jobForm) map[string]string {
	err := s.validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"form": err.Error()}
	}
	res := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		res[fe.Field()] = fieldMessage(fe)
	}
	return res
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Pflichtfeld"
	case "max":
		return fmt.Sprintf("Höchstens %s Zeichen", fe.Param())
	case "datetime":
		return "Datum im Format JJJJ-MM-TT"
	case "status":
		return "Unbekannter Status"
	case "url":
		return "Keine gültige URL"
	}
	return "Ungültiger Wert"
}
