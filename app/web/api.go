package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/backup"
	"github.com/umputun/jobtrack/app/tracker"
)

// APIWeekResponse is the JSON response for /api/v1/week/{year}/{week}
type APIWeekResponse struct {
	Week  int                   `json:"week"`
	Year  int                   `json:"year"`
	Label string                `json:"label"`
	Start tracker.Date          `json:"start"`
	End   tracker.Date          `json:"end"`
	Stats tracker.Stats         `json:"stats"`
	Jobs  []tracker.Application `json:"jobs"`
}

// APIValidationError is the JSON response for rejected input
type APIValidationError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// handleAPIWeek returns the view of any week, the selected week of the ui is not changed
func (s *Server) handleAPIWeek(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(r.PathValue("year"))
	week, errW := strconv.Atoi(r.PathValue("week"))
	c := tracker.Cursor{Week: week, Year: year}
	if errY != nil || errW != nil || !c.Valid() {
		s.writeJSONError(w, http.StatusBadRequest, "invalid week")
		return
	}

	v := s.tracker.ViewOf(c)
	s.writeJSON(w, http.StatusOK, APIWeekResponse{
		Week:  c.Week,
		Year:  c.Year,
		Label: c.String(),
		Start: v.Range.Start,
		End:   v.Range.End,
		Stats: v.Stats,
		Jobs:  v.Jobs,
	})
}

// handleAPIJobs returns all applications in stored order
func (s *Server) handleAPIJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.All())
}

// handleAPIJob returns a single application
func (s *Server) handleAPIJob(w http.ResponseWriter, r *http.Request) {
	app, err := s.tracker.Get(r.PathValue("id"))
	if err != nil {
		s.apiError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

// handleAPICreateJob adds a new application
func (s *Server) handleAPICreateJob(w http.ResponseWriter, r *http.Request) {
	var form jobForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	form = form.trim()
	fields, ok := s.validAPIForm(w, form)
	if !ok {
		return
	}

	app, err := s.tracker.Add(fields)
	if err != nil {
		s.apiError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, app)
}

// handleAPIUpdateJob merges supplied fields into the application. The merged record is validated as a whole.
func (s *Server) handleAPIUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch jobPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	current, err := s.tracker.Get(id)
	if err != nil {
		s.apiError(w, err)
		return
	}
	fields, ok := s.validAPIForm(w, patch.apply(formFromApp(current)))
	if !ok {
		return
	}

	app, err := s.tracker.Update(id, fields)
	if err != nil {
		s.apiError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

// handleAPIDeleteJob deletes the application, requires confirm=true
func (s *Server) handleAPIDeleteJob(w http.ResponseWriter, r *http.Request) {
	if confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirmed {
		s.writeJSONError(w, http.StatusPreconditionRequired, "delete requires confirm=true")
		return
	}
	if err := s.tracker.Delete(r.PathValue("id")); err != nil {
		s.apiError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIExport streams all applications as a backup file
func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	format, err := backup.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	fname := fmt.Sprintf("jobtrack-%s.%s", s.now().Format("20060102"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fname))
	if err := backup.Export(w, s.tracker.All(), format); err != nil {
		log.Printf("[WARN] failed to export applications: %v", err)
	}
}

// handleAPISchema returns the JSON schema of the stored collection
func (s *Server) handleAPISchema(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, tracker.Schema())
}

// validAPIForm validates the form and converts it, writing 422 response if invalid
func (s *Server) validAPIForm(w http.ResponseWriter, form jobForm) (tracker.Fields, bool) {
	if errs := s.validateForm(form); errs != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, APIValidationError{Error: "validation failed", Fields: errs})
		return tracker.Fields{}, false
	}
	fields, err := form.fields()
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return tracker.Fields{}, false
	}
	return fields, true
}

// apiError maps tracker errors to json responses
func (s *Server) apiError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "application not found")
		return
	}
	log.Printf("[ERROR] %v", err)
	s.writeJSONError(w, http.StatusInternalServerError, "failed to save applications")
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
