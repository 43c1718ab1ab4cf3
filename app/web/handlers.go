package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobtrack/app/enums"
	"github.com/umputun/jobtrack/app/tracker"
)

// handleDashboard renders the main page with the selected week
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := s.newTemplateData(r, s.tracker.Render())
	s.render(w, "base.html", "base", data)
}

// handleWeekPartial returns the list of the selected week with header and stats as oob swaps
func (s *Server) handleWeekPartial(w http.ResponseWriter, r *http.Request) {
	s.renderWeek(w, r, false)
}

func (s *Server) handleWeekPrev(w http.ResponseWriter, r *http.Request) {
	c := s.tracker.PrevWeek()
	log.Printf("[DEBUG] week changed to %s", c)
	s.renderWeek(w, r, false)
}

func (s *Server) handleWeekNext(w http.ResponseWriter, r *http.Request) {
	c := s.tracker.NextWeek()
	log.Printf("[DEBUG] week changed to %s", c)
	s.renderWeek(w, r, false)
}

func (s *Server) handleWeekToday(w http.ResponseWriter, r *http.Request) {
	c := s.tracker.Today()
	log.Printf("[DEBUG] week changed to %s", c)
	s.renderWeek(w, r, false)
}

// renderWeek writes the week updates. With closeModal the main content is empty, so the modal container
// targeted by the request gets cleared and the list is swapped out-of-band.
func (s *Server) renderWeek(w http.ResponseWriter, r *http.Request, closeModal bool) {
	data := s.newTemplateData(r, s.tracker.Render())
	data.IsOOB = true
	data.ListOOB = closeModal

	tmpl, ok := s.templates["partials"]
	if !ok {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "week-updates", data); err != nil {
		log.Printf("[ERROR] failed to render week partial: %v", err)
		http.Error(w, "Failed to render week", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[ERROR] failed to write week partial: %v", err)
	}
}

// handleNewJobModal opens the form for a new application, dated today
func (s *Server) handleNewJobModal(w http.ResponseWriter, _ *http.Request) {
	s.tracker.StartCreate()
	form := jobForm{ApplicationDate: tracker.DateOf(s.now()).String(), Status: enums.StatusApplied.String()}
	s.render(w, "partials", "job-modal", s.newFormData(form, false, nil))
}

// handleEditJobModal opens the form prefilled with the application
func (s *Server) handleEditJobModal(w http.ResponseWriter, r *http.Request) {
	app, err := s.tracker.StartEdit(r.PathValue("id"))
	if err != nil {
		s.htmlError(w, err)
		return
	}
	s.render(w, "partials", "job-modal", s.newFormData(formFromApp(app), true, nil))
}

// handleDeleteJobModal asks for confirmation before delete
func (s *Server) handleDeleteJobModal(w http.ResponseWriter, r *http.Request) {
	app, err := s.tracker.Get(r.PathValue("id"))
	if err != nil {
		s.htmlError(w, err)
		return
	}
	data := struct {
		Job     tracker.Application
		BaseURL string
	}{Job: app, BaseURL: s.baseURL}
	s.render(w, "partials", "delete-modal", data)
}

// handleCancelEdit closes the modal and drops the pending edit
func (s *Server) handleCancelEdit(w http.ResponseWriter, _ *http.Request) {
	s.tracker.CancelEdit()
	w.WriteHeader(http.StatusOK)
}

// handleSubmitJob saves the form, creating or updating depending on the pending edit.
// Invalid form is rendered back with messages.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	form := formFromRequest(r)
	_, editing := r.Form["editing"]

	if errs := s.validateForm(form); errs != nil {
		log.Printf("[DEBUG] invalid job form, %v", errs)
		s.render(w, "partials", "job-modal", s.newFormData(form, editing, errs))
		return
	}

	fields, err := form.fields()
	if err != nil {
		s.render(w, "partials", "job-modal", s.newFormData(form, editing, map[string]string{"form": err.Error()}))
		return
	}

	if _, err := s.tracker.Submit(fields); err != nil {
		s.htmlError(w, err)
		return
	}
	s.renderWeek(w, r, true)
}

// handleDeleteJob deletes confirmed application
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Delete(r.PathValue("id")); err != nil {
		s.htmlError(w, err)
		return
	}
	s.renderWeek(w, r, true)
}

// handleThemeToggle toggles the theme
func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	nextTheme := enums.ThemeDark
	if s.getTheme(r) == enums.ThemeDark {
		nextTheme = enums.ThemeLight
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "theme",
		Value:    nextTheme.String(),
		Path:     s.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60, // 1 year
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// trigger full page refresh for theme change
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) newFormData(form jobForm, editing bool, errs map[string]string) formData {
	return formData{Form: form, Editing: editing, Errors: errs, Statuses: enums.StatusValues, BaseURL: s.baseURL}
}

// htmlError reports tracker errors, not found as 404 and anything else as 500
func (s *Server) htmlError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		// record is gone, refresh the page to drop the stale card
		w.Header().Set("HX-Refresh", "true")
		http.Error(w, "Bewerbung nicht gefunden", http.StatusNotFound)
		return
	}
	log.Printf("[ERROR] %v", err)
	http.Error(w, fmt.Sprintf("Speichern fehlgeschlagen: %v", err), http.StatusInternalServerError)
}
