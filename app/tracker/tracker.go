// Package tracker keeps the collection of job applications, the selected calendar week and the
// pending edit, and derives the week view. Every mutation rewrites the whole collection into the
// key-value store under StorageKey.
package tracker

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
)

//go:generate moq -out mocks/kv.go -pkg mocks -skip-ensure -fmt goimports . KV

// StorageKey is the key holding the serialized collection
const StorageKey = "jobTrackerJobs"

// CorruptKeyPrefix starts the keys of corrupt collections copied aside on load, followed by unix time
const CorruptKeyPrefix = StorageKey + ".corrupt."

// ErrNotFound is returned when no application matches the id
var ErrNotFound = errors.New("application not found")

// KV is a synchronous key-value store
type KV interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
}

// Tracker is the store and view-model of the job applications
type Tracker struct {
	mu        sync.Mutex
	store     KV
	now       func() time.Time
	newID     func() string
	jobs      []Application
	cursor    Cursor
	editingID string // empty when the pending submission creates a new record
	warning   string // set if the persisted collection was corrupt on load
}

// Option func type
type Option func(t *Tracker)

// WithClock sets the time source, time.Now by default
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator sets the id generator, UUIDv7 by default
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// New loads the collection from store and sets the cursor to the current week.
// A corrupt blob is not fatal: it is copied aside, the tracker starts empty and Warning reports it.
func New(store KV, opts ...Option) (*Tracker, error) {
	res := &Tracker{store: store, now: time.Now, newID: newUUID}
	for _, opt := range opts {
		opt(res)
	}

	jobs, err := res.load()
	switch {
	case errors.Is(err, ErrCorrupt):
		log.Printf("[WARN] %v, starting with empty collection", err)
		res.warning = "Gespeicherte Daten waren beschädigt und wurden gesichert, die Liste startet leer."
		jobs = []Application{}
	case err != nil:
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}

	res.jobs = jobs
	res.cursor = CursorOf(DateOf(res.now()))
	log.Printf("[DEBUG] loaded %d applications, cursor %s", len(jobs), res.cursor)
	return res, nil
}

// load reads and decodes the collection, keeping a copy of a corrupt blob under a backup key
func (t *Tracker) load() ([]Application, error) {
	raw, found, err := t.store.Get(StorageKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Application{}, nil
	}

	jobs, err := Decode(raw)
	if err != nil {
		backupKey := CorruptKeyPrefix + strconv.FormatInt(t.now().Unix(), 10)
		if setErr := t.store.Set(backupKey, raw); setErr != nil {
			return nil, fmt.Errorf("stored collection is corrupt (%v) and can't be backed up: %w", err, setErr)
		}
		log.Printf("[INFO] corrupt collection copied to %s", backupKey)
		return nil, err
	}
	return jobs, nil
}

// save persists the whole collection, caller holds the lock
func (t *Tracker) save() error {
	raw, err := Encode(t.jobs)
	if err != nil {
		return err
	}
	if err := t.store.Set(StorageKey, raw); err != nil {
		return fmt.Errorf("failed to persist applications: %w", err)
	}
	return nil
}

// Add creates a new application from fields with a fresh id and creation time
func (t *Tracker) Add(f Fields) (Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(f)
}

func (t *Tracker) add(f Fields) (Application, error) {
	app := Application{ID: t.newID(), CreatedAt: t.now().UTC()}
	if t.indexOf(app.ID) >= 0 {
		return Application{}, fmt.Errorf("duplicate application id %q", app.ID)
	}
	f.apply(&app)
	app.defaultStatus()

	t.jobs = append(t.jobs, app)
	if err := t.save(); err != nil {
		t.jobs = t.jobs[:len(t.jobs)-1]
		return Application{}, err
	}
	log.Printf("[INFO] added application %s, %s at %s", app.ID, app.Position, app.CompanyName)
	return app, nil
}

// Update merges supplied fields into the application with id and stamps the update time.
// Returns ErrNotFound and changes nothing if there is no such application.
func (t *Tracker) Update(id string, f Fields) (Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update(id, f)
}

func (t *Tracker) update(id string, f Fields) (Application, error) {
	idx := t.indexOf(id)
	if idx < 0 {
		return Application{}, fmt.Errorf("can't update %q: %w", id, ErrNotFound)
	}

	prev := t.jobs[idx]
	upd := prev
	f.apply(&upd)
	upd.defaultStatus()
	ts := t.now().UTC()
	upd.UpdatedAt = &ts

	t.jobs[idx] = upd
	if err := t.save(); err != nil {
		t.jobs[idx] = prev
		return Application{}, err
	}
	log.Printf("[INFO] updated application %s", id)
	return upd, nil
}

// Delete removes the application with id. Confirmation is up to the caller.
// Returns ErrNotFound if there is no such application.
func (t *Tracker) Delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("can't delete %q: %w", id, ErrNotFound)
	}

	prev := slices.Clone(t.jobs)
	t.jobs = slices.Delete(t.jobs, idx, idx+1)
	if err := t.save(); err != nil {
		t.jobs = prev
		return err
	}
	if t.editingID == id {
		t.editingID = ""
	}
	log.Printf("[INFO] deleted application %s", id)
	return nil
}

// Import merges apps into the collection by id. Known ids are replaced, unknown are appended.
// Records without id get a new one, records without creation time get the current time
// and records without status are applied.
func (t *Tracker) Import(apps []Application) (added, replaced int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := slices.Clone(t.jobs)
	for _, app := range apps {
		if app.ID == "" {
			app.ID = t.newID()
		}
		if app.CreatedAt.IsZero() {
			app.CreatedAt = t.now().UTC()
		}
		app.defaultStatus()
		app.normalizeOptionals()
		if idx := t.indexOf(app.ID); idx >= 0 {
			t.jobs[idx] = app
			replaced++
			continue
		}
		t.jobs = append(t.jobs, app)
		added++
	}

	if err := t.save(); err != nil {
		t.jobs = prev
		return 0, 0, err
	}
	log.Printf("[INFO] imported applications, added %d, replaced %d", added, replaced)
	return added, replaced, nil
}

// Get returns the application with id
func (t *Tracker) Get(id string) (Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(id)
	if idx < 0 {
		return Application{}, fmt.Errorf("can't get %q: %w", id, ErrNotFound)
	}
	return t.jobs[idx], nil
}

// All returns a copy of the whole collection in stored order
func (t *Tracker) All() []Application {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.jobs)
}

// JobsInWeek returns the applications dated in ISO week `week` of week-year `year`
func (t *Tracker) JobsInWeek(week, year int) []Application {
	t.mu.Lock()
	defer t.mu.Unlock()
	return jobsIn(t.jobs, Cursor{Week: week, Year: year})
}

// Warning returns a message if the stored collection could not be loaded, empty otherwise
func (t *Tracker) Warning() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warning
}

// Cursor returns the selected week
func (t *Tracker) Cursor() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// SetCursor selects a week, the week has to exist in the year
func (t *Tracker) SetCursor(c Cursor) error {
	if !c.Valid() {
		return fmt.Errorf("invalid week %d of %d", c.Week, c.Year)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = c
	return nil
}

// NextWeek moves the cursor one week forward
func (t *Tracker) NextWeek() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = t.cursor.Next()
	return t.cursor
}

// PrevWeek moves the cursor one week back
func (t *Tracker) PrevWeek() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = t.cursor.Prev()
	return t.cursor
}

// Today moves the cursor to the current week
func (t *Tracker) Today() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = CursorOf(DateOf(t.now()))
	return t.cursor
}

// StartCreate makes the next Submit create a new application
func (t *Tracker) StartCreate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.editingID = ""
}

// StartEdit makes the next Submit update the application with id and returns it for the form
func (t *Tracker) StartEdit(id string) (Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(id)
	if idx < 0 {
		return Application{}, fmt.Errorf("can't edit %q: %w", id, ErrNotFound)
	}
	t.editingID = id
	return t.jobs[idx], nil
}

// Editing returns the id of the application being edited, if any
func (t *Tracker) Editing() (id string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.editingID, t.editingID != ""
}

// CancelEdit drops the pending edit
func (t *Tracker) CancelEdit() {
	t.StartCreate()
}

// Submit applies a form submission: update of the edited application or creation of a new one.
// The pending edit is cleared in both cases.
func (t *Tracker) Submit(f Fields) (Application, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.editingID
	t.editingID = ""
	if id == "" {
		return t.add(f)
	}
	return t.update(id, f)
}

func (t *Tracker) indexOf(id string) int {
	return slices.IndexFunc(t.jobs, func(a Application) bool { return a.ID == id })
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
