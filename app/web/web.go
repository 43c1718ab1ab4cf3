// Package web implements the browser ui and the json api of the job tracker
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-playground/validator/v10"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/jobtrack/app/enums"
	"github.com/umputun/jobtrack/app/tracker"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server represents the web server
type Server struct {
	tracker        Tracker
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /jobs), empty for root
	hostname       string // hostname to display in UI
	version        string
	csrfProtection *http.CrossOriginProtection // csrf protection for POST endpoints
	limiter        *limiter.Limiter            // rate limit of mutating endpoints
	validate       *validator.Validate
	now            func() time.Time
}

// Tracker defines the store and view-model operations used by the server, implemented by tracker.Tracker
type Tracker interface {
	Render() tracker.View
	ViewOf(c tracker.Cursor) tracker.View
	NextWeek() tracker.Cursor
	PrevWeek() tracker.Cursor
	Today() tracker.Cursor
	StartCreate()
	StartEdit(id string) (tracker.Application, error)
	CancelEdit()
	Submit(f tracker.Fields) (tracker.Application, error)
	Add(f tracker.Fields) (tracker.Application, error)
	Update(id string, f tracker.Fields) (tracker.Application, error)
	Delete(id string) error
	Get(id string) (tracker.Application, error)
	All() []tracker.Application
}

// TemplateData holds data for templates
type TemplateData struct {
	View        tracker.View
	CurrentYear int
	BaseURL     string // base URL path for reverse proxy (e.g., /jobs)
	Hostname    string // hostname to display in UI
	Version     string
	Theme       enums.Theme
	IsOOB       bool // header and stats rendered as out-of-band swaps
	ListOOB     bool // list rendered as out-of-band swap too, used when the main target is the modal
}

// Config holds server configuration
type Config struct {
	Tracker   Tracker
	BaseURL   string  // base URL path for reverse proxy (e.g., /jobs), empty for root
	Hostname  string  // hostname to display in UI
	Version   string  // application version
	RateLimit float64 // max mutating requests per second per client, 10 if not set
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("web server initialization failed: tracker is required")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}

	lmt := tollbooth.NewLimiter(cfg.RateLimit, nil)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage(`{"error":"too many requests"}`)
	lmt.SetMessageContentType("application/json")

	s := &Server{
		tracker:        cfg.Tracker,
		baseURL:        cfg.BaseURL,
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		csrfProtection: http.NewCrossOriginProtection(),
		limiter:        lmt,
		validate:       newValidator(),
		now:            time.Now,
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	// base URL without trailing slash redirects to the one with slash
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("jobtrack", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(256*1024), // 256KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	rateLimit := tollbooth.HTTPMiddleware(s.limiter)

	router.HandleFunc("GET /", s.handleDashboard)

	// htmx endpoints
	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.Use(s.csrfProtection.Handler)

		api.HandleFunc("GET /week", s.handleWeekPartial)
		api.HandleFunc("POST /week/prev", s.handleWeekPrev)
		api.HandleFunc("POST /week/next", s.handleWeekNext)
		api.HandleFunc("POST /week/today", s.handleWeekToday)
		api.HandleFunc("GET /jobs/new", s.handleNewJobModal)
		api.HandleFunc("GET /jobs/{id}/edit", s.handleEditJobModal)
		api.HandleFunc("GET /jobs/{id}/delete", s.handleDeleteJobModal)
		api.HandleFunc("POST /jobs/cancel", s.handleCancelEdit)
		api.With(rateLimit).HandleFunc("POST /jobs", s.handleSubmitJob)
		api.With(rateLimit).HandleFunc("POST /jobs/{id}/delete", s.handleDeleteJob)
		api.HandleFunc("POST /theme", s.handleThemeToggle)
	})

	// json api for scripts and integrations
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.Use(s.csrfProtection.Handler)

		api.HandleFunc("GET /week/{year}/{week}", s.handleAPIWeek)
		api.HandleFunc("GET /jobs", s.handleAPIJobs)
		api.HandleFunc("GET /jobs/{id}", s.handleAPIJob)
		api.With(rateLimit).HandleFunc("POST /jobs", s.handleAPICreateJob)
		api.With(rateLimit).HandleFunc("PATCH /jobs/{id}", s.handleAPIUpdateJob)
		api.With(rateLimit).HandleFunc("DELETE /jobs/{id}", s.handleAPIDeleteJob)
		api.HandleFunc("GET /export", s.handleAPIExport)
		api.HandleFunc("GET /schema", s.handleAPISchema)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a template
func (s *Server) render(w http.ResponseWriter, page, tmplName string, data any) {
	s.renderStatus(w, http.StatusOK, page, tmplName, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses all templates
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"url":         s.url,
		"statusLabel": enums.StatusLabel,
		"formatDate":  formatDate,
		"deref":       deref,
	}

	// base template with all partials
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
		"templates/base.html", "templates/dashboard.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base template: %w", err)
	}
	templates["base.html"] = base

	// partials separately for htmx requests
	partials, err := template.New("week.html").Funcs(funcMap).ParseFS(templatesFS, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse partials: %w", err)
	}
	templates["partials"] = partials

	return templates, nil
}

// newTemplateData creates a TemplateData with common fields populated from request
func (s *Server) newTemplateData(r *http.Request, v tracker.View) TemplateData {
	return TemplateData{
		View:        v,
		CurrentYear: s.now().Year(),
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		Version:     s.version,
		Theme:       s.getTheme(r),
	}
}

func (s *Server) getTheme(r *http.Request) enums.Theme {
	cookie, err := r.Cookie("theme")
	if err != nil {
		return enums.ThemeLight
	}
	theme, err := enums.ParseTheme(cookie.Value)
	if err != nil {
		log.Printf("[WARN] invalid theme %q: %v", cookie.Value, err)
		return enums.ThemeLight
	}
	return theme
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// template helper functions

func formatDate(d tracker.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.Format("02.01.2006")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// newValidator makes validator reporting fields by their form names, with "status" rule for enums.Status names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseStatus(fl.Field().String())
		return err == nil
	}); err != nil {
		log.Printf("[ERROR] failed to register status validation: %v", err)
	}
	return v
}
