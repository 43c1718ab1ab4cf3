package tracker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/jobtrack/app/enums"
	"github.com/umputun/jobtrack/app/persistence"
	"github.com/umputun/jobtrack/app/tracker/mocks"
)

// fixedClock returns a clock frozen at ts, moved by the returned setter
func fixedClock(ts time.Time) (now func() time.Time, set func(time.Time)) {
	cur := ts
	return func() time.Time { return cur }, func(t time.Time) { cur = t }
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestTracker(t *testing.T, store KV, now time.Time) *Tracker {
	t.Helper()
	clock, _ := fixedClock(now)
	tr, err := New(store, WithClock(clock), WithIDGenerator(seqIDs()))
	require.NoError(t, err)
	return tr
}

func fields(company, position string, date Date, status enums.Status) Fields {
	return Fields{CompanyName: &company, Position: &position, ApplicationDate: &date, Status: &status}
}

func TestNew_EmptyStore(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC))
	assert.Empty(t, tr.All())
	assert.Equal(t, Cursor{Week: 2, Year: 2024}, tr.Cursor())
	assert.Empty(t, tr.Warning())
	_, editing := tr.Editing()
	assert.False(t, editing)
}

func TestNew_StoreError(t *testing.T) {
	store := &mocks.KVMock{GetFunc: func(string) (string, bool, error) { return "", false, errors.New("disk gone") }}
	_, err := New(store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestNew_CorruptBlob(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.Set(StorageKey, "{not json"))

	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)
	assert.Empty(t, tr.All())
	assert.NotEmpty(t, tr.Warning())
	assert.NotEmpty(t, tr.Render().Warning)

	// raw blob kept aside before anything overwrites the key
	backup, found, err := store.Get(fmt.Sprintf("%s.corrupt.%d", StorageKey, now.Unix()))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "{not json", backup)

	// the tracker keeps working
	_, err = tr.Add(fields("Acme", "Go Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	raw, _, err := store.Get(StorageKey)
	require.NoError(t, err)
	jobs, err := Decode(raw)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestNew_CorruptBlobBackupFails(t *testing.T) {
	store := &mocks.KVMock{
		GetFunc: func(string) (string, bool, error) { return "[{", true, nil },
		SetFunc: func(string, string) error { return errors.New("read only") },
	}
	_, err := New(store)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorrupt), "unsaved corrupt blob is fatal")
	assert.Contains(t, err.Error(), "read only")
}

func TestTracker_AddAndJobsInWeek(t *testing.T) {
	store := persistence.NewMemoryStore()
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	app, err := tr.Add(Fields{
		CompanyName:     Ptr("Acme"),
		Position:        Ptr("Go Developer"),
		ApplicationDate: Ptr(NewDate(2024, 1, 8)),
		Status:          Ptr(enums.StatusApplied),
		Salary:          Ptr("70k"),
		Notes:           Ptr("  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", app.ID)
	assert.Equal(t, now, app.CreatedAt)
	assert.Nil(t, app.UpdatedAt)
	require.NotNil(t, app.Salary)
	assert.Equal(t, "70k", *app.Salary)
	assert.Nil(t, app.Notes, "blank optional is absent")

	week := tr.JobsInWeek(2, 2024)
	require.Len(t, week, 1)
	assert.Equal(t, app, week[0])
	assert.Empty(t, tr.JobsInWeek(3, 2024))
	assert.Empty(t, tr.JobsInWeek(2, 2023))

	// persisted on add
	raw, found, err := store.Get(StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, strings.HasPrefix(raw, `{"version":1,`), raw)
	jobs, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []Application{app}, jobs)
}

func TestTracker_AddWithoutStatus(t *testing.T) {
	store := persistence.NewMemoryStore()
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	_, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusInterview))
	require.NoError(t, err)
	app, err := tr.Add(Fields{CompanyName: Ptr("Globex"), Position: Ptr("SRE"), ApplicationDate: Ptr(NewDate(2024, 1, 9))})
	require.NoError(t, err)
	assert.Equal(t, enums.StatusApplied, app.Status)

	upd, err := tr.Update(app.ID, Fields{Status: &enums.Status{}})
	require.NoError(t, err)
	assert.Equal(t, enums.StatusApplied, upd.Status, "zero status on update falls back to applied")

	reloaded := newTestTracker(t, store, now)
	assert.Empty(t, reloaded.Warning())
	assert.ElementsMatch(t, tr.All(), reloaded.All())
	assert.Len(t, reloaded.All(), 2)
}

func TestTracker_AddPersistFailure(t *testing.T) {
	store := &mocks.KVMock{
		GetFunc: func(string) (string, bool, error) { return "", false, nil },
		SetFunc: func(string, string) error { return errors.New("disk full") },
	}
	tr, err := New(store)
	require.NoError(t, err)

	_, err = tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, tr.All(), "failed add rolled back")
	assert.Len(t, store.SetCalls(), 1)
}

func TestTracker_AddDuplicateID(t *testing.T) {
	tr, err := New(persistence.NewMemoryStore(), WithIDGenerator(func() string { return "same" }))
	require.NoError(t, err)
	_, err = tr.Add(fields("A", "B", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	_, err = tr.Add(fields("C", "D", NewDate(2024, 1, 8), enums.StatusApplied))
	require.Error(t, err)
	assert.Len(t, tr.All(), 1)
}

func TestTracker_Update(t *testing.T) {
	store := persistence.NewMemoryStore()
	clock, setClock := fixedClock(time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC))
	tr, err := New(store, WithClock(clock), WithIDGenerator(seqIDs()))
	require.NoError(t, err)

	app, err := tr.Add(Fields{
		CompanyName: Ptr("Acme"), Position: Ptr("Dev"), ApplicationDate: Ptr(NewDate(2024, 1, 8)),
		Status: Ptr(enums.StatusApplied), Notes: Ptr("first call"), URL: Ptr("https://acme.example.com/jobs/1"),
	})
	require.NoError(t, err)

	later := time.Date(2024, 1, 12, 9, 30, 0, 0, time.UTC)
	setClock(later)
	upd, err := tr.Update(app.ID, Fields{Status: Ptr(enums.StatusInterview), Notes: Ptr("")})
	require.NoError(t, err)

	assert.Equal(t, app.ID, upd.ID)
	assert.Equal(t, "Acme", upd.CompanyName, "unsupplied field kept")
	assert.Equal(t, enums.StatusInterview, upd.Status)
	assert.Nil(t, upd.Notes, "blank clears optional")
	require.NotNil(t, upd.URL)
	assert.Equal(t, app.CreatedAt, upd.CreatedAt, "creation time is set once")
	require.NotNil(t, upd.UpdatedAt)
	assert.Equal(t, later, *upd.UpdatedAt)

	got, err := tr.Get(app.ID)
	require.NoError(t, err)
	assert.Equal(t, upd, got)

	raw, _, err := store.Get(StorageKey)
	require.NoError(t, err)
	jobs, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []Application{upd}, jobs)
}

func TestTracker_UpdateNotFound(t *testing.T) {
	store := persistence.NewMemoryStore()
	tr := newTestTracker(t, store, time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC))
	app, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	before, _, err := store.Get(StorageKey)
	require.NoError(t, err)

	_, err = tr.Update("nope", Fields{Status: Ptr(enums.StatusOffer)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	after, _, err := store.Get(StorageKey)
	require.NoError(t, err)
	assert.Equal(t, before, after, "storage untouched")
	assert.Equal(t, []Application{app}, tr.All())
}

func TestTracker_UpdatePersistFailure(t *testing.T) {
	fail := false
	mem := persistence.NewMemoryStore()
	store := &mocks.KVMock{
		GetFunc: mem.Get,
		SetFunc: func(k, v string) error {
			if fail {
				return errors.New("disk full")
			}
			return mem.Set(k, v)
		},
	}
	tr := newTestTracker(t, store, time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC))
	app, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)

	fail = true
	_, err = tr.Update(app.ID, Fields{Status: Ptr(enums.StatusRejected)})
	require.Error(t, err)
	got, err := tr.Get(app.ID)
	require.NoError(t, err)
	assert.Equal(t, app, got, "failed update rolled back")

	err = tr.Delete(app.ID)
	require.Error(t, err)
	assert.Len(t, tr.All(), 1, "failed delete rolled back")
}

func TestTracker_Delete(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC))
	a1, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	a2, err := tr.Add(fields("Globex", "SRE", NewDate(2024, 1, 9), enums.StatusApplied))
	require.NoError(t, err)

	require.NoError(t, tr.Delete(a1.ID))
	assert.Equal(t, []Application{a2}, tr.JobsInWeek(2, 2024))
	_, err = tr.Get(a1.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = tr.Delete(a1.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "second delete reports not found")
}

func TestTracker_PersistReloadRoundTrip(t *testing.T) {
	store := persistence.NewMemoryStore()
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	_, err := tr.Add(Fields{
		CompanyName: Ptr("Acme"), Position: Ptr("Dev"), ApplicationDate: Ptr(NewDate(2024, 1, 8)),
		Status: Ptr(enums.StatusScreening), Salary: Ptr("80k"), ContactPerson: Ptr("Jo Smith"),
	})
	require.NoError(t, err)
	a2, err := tr.Add(fields("Globex", "SRE", NewDate(2023, 12, 31), enums.StatusRejected))
	require.NoError(t, err)
	_, err = tr.Update(a2.ID, Fields{URL: Ptr("https://globex.example.com")})
	require.NoError(t, err)

	reloaded := newTestTracker(t, store, now)
	assert.ElementsMatch(t, tr.All(), reloaded.All())
}

func TestTracker_Scenario(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	app, err := tr.Add(fields("Acme", "Go Developer", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	week, year := WeekOf(app.ApplicationDate)
	assert.Equal(t, 2, week)
	assert.Equal(t, 2024, year)

	require.NoError(t, tr.SetCursor(Cursor{Week: 2, Year: 2024}))
	v := tr.Render()
	assert.Equal(t, Stats{Total: 1}, v.Stats)
	assert.Equal(t, "KW 2, 2024", v.Cursor.String())
	assert.Equal(t, "08.01. - 14.01.", v.Range.String())
	assert.False(t, v.Empty())

	_, err = tr.Update(app.ID, Fields{Status: Ptr(enums.StatusInterview)})
	require.NoError(t, err)
	v = tr.Render()
	assert.Equal(t, Stats{Total: 1, Interviews: 1, Offers: 0}, v.Stats)

	require.NoError(t, tr.Delete(app.ID))
	v = tr.Render()
	assert.True(t, v.Empty())
	assert.Equal(t, Stats{}, v.Stats)
}

func TestTracker_OfferAndAcceptedCount(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	_, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusOffer))
	require.NoError(t, err)
	_, err = tr.Add(fields("Globex", "SRE", NewDate(2024, 1, 11), enums.StatusAccepted))
	require.NoError(t, err)

	v := tr.Render()
	assert.Equal(t, Stats{Total: 2, Interviews: 0, Offers: 2}, v.Stats)
}

func TestTracker_RenderOrder(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	for _, f := range []Fields{
		fields("A", "p", NewDate(2024, 1, 9), enums.StatusApplied),
		fields("B", "p", NewDate(2024, 1, 12), enums.StatusApplied),
		fields("C", "p", NewDate(2024, 1, 9), enums.StatusApplied),
		fields("D", "p", NewDate(2024, 1, 15), enums.StatusApplied), // next week
		fields("E", "p", NewDate(2024, 1, 8), enums.StatusApplied),
	} {
		_, err := tr.Add(f)
		require.NoError(t, err)
	}

	v := tr.Render()
	names := make([]string, 0, len(v.Jobs))
	for _, j := range v.Jobs {
		names = append(names, j.CompanyName)
	}
	assert.Equal(t, []string{"B", "A", "C", "E"}, names, "newest first, ties keep insertion order")

	next := tr.ViewOf(Cursor{Week: 3, Year: 2024})
	require.Len(t, next.Jobs, 1)
	assert.Equal(t, "D", next.Jobs[0].CompanyName)
	assert.Equal(t, Cursor{Week: 2, Year: 2024}, tr.Cursor(), "ViewOf keeps cursor")
}

func TestTracker_WeekYearBoundary(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC))
	_, err := tr.Add(fields("Late", "p", NewDate(2024, 12, 30), enums.StatusApplied))
	require.NoError(t, err)
	_, err = tr.Add(fields("Early", "p", NewDate(2025, 1, 2), enums.StatusApplied))
	require.NoError(t, err)

	assert.Len(t, tr.JobsInWeek(1, 2025), 2, "both dates belong to week 1 of 2025")
	assert.Empty(t, tr.JobsInWeek(1, 2024))
	assert.Equal(t, Cursor{Week: 1, Year: 2025}, tr.Cursor())
}

func TestTracker_Navigation(t *testing.T) {
	clock, setClock := fixedClock(time.Date(2026, 12, 22, 10, 0, 0, 0, time.UTC))
	tr, err := New(persistence.NewMemoryStore(), WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, Cursor{Week: 52, Year: 2026}, tr.Cursor())
	assert.Equal(t, Cursor{Week: 53, Year: 2026}, tr.NextWeek())
	assert.Equal(t, Cursor{Week: 1, Year: 2027}, tr.NextWeek())
	assert.Equal(t, Cursor{Week: 53, Year: 2026}, tr.PrevWeek())

	setClock(time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, Cursor{Week: 2, Year: 2024}, tr.Today())
	assert.Equal(t, Cursor{Week: 2, Year: 2024}, tr.Cursor())

	assert.Error(t, tr.SetCursor(Cursor{Week: 53, Year: 2024}))
	assert.Equal(t, Cursor{Week: 2, Year: 2024}, tr.Cursor())
}

func TestTracker_EditFlow(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))

	tr.StartCreate()
	created, err := tr.Submit(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	assert.Len(t, tr.All(), 1)

	got, err := tr.StartEdit(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	id, ok := tr.Editing()
	assert.True(t, ok)
	assert.Equal(t, created.ID, id)

	upd, err := tr.Submit(Fields{Position: Ptr("Senior Dev")})
	require.NoError(t, err)
	assert.Equal(t, created.ID, upd.ID)
	assert.Equal(t, "Senior Dev", upd.Position)
	assert.Len(t, tr.All(), 1, "edit doesn't create")
	_, ok = tr.Editing()
	assert.False(t, ok, "submit clears the pending edit")

	_, err = tr.StartEdit("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, ok = tr.Editing()
	assert.False(t, ok)

	_, err = tr.StartEdit(created.ID)
	require.NoError(t, err)
	tr.CancelEdit()
	_, ok = tr.Editing()
	assert.False(t, ok)

	// edited record deleted before submit
	_, err = tr.StartEdit(created.ID)
	require.NoError(t, err)
	require.NoError(t, tr.Delete(created.ID))
	_, ok = tr.Editing()
	assert.False(t, ok, "delete drops pending edit of the record")
}

func TestTracker_SubmitNotFound(t *testing.T) {
	tr := newTestTracker(t, persistence.NewMemoryStore(), time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	a, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)
	_, err = tr.StartEdit(a.ID)
	require.NoError(t, err)

	// record vanishes underneath the pending edit
	tr.mu.Lock()
	tr.jobs = nil
	tr.mu.Unlock()

	_, err = tr.Submit(Fields{Position: Ptr("x")})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, ok := tr.Editing()
	assert.False(t, ok)
}

func TestTracker_Import(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, persistence.NewMemoryStore(), now)
	existing, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusApplied))
	require.NoError(t, err)

	added, replaced, err := tr.Import([]Application{
		{ID: existing.ID, CompanyName: "Acme", Position: "Dev", ApplicationDate: NewDate(2024, 1, 8),
			Status: enums.StatusOffer, CreatedAt: existing.CreatedAt},
		{ID: "ext-1", CompanyName: "Initech", Position: "QA", ApplicationDate: NewDate(2024, 1, 9),
			Status: enums.StatusApplied, Notes: Ptr(" ")},
		{CompanyName: "Hooli", Position: "PM", ApplicationDate: NewDate(2024, 1, 10), Status: enums.StatusApplied},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, replaced)

	all := tr.All()
	require.Len(t, all, 3)
	assert.Equal(t, enums.StatusOffer, all[0].Status)
	assert.Equal(t, "ext-1", all[1].ID)
	assert.Nil(t, all[1].Notes)
	assert.Equal(t, now, all[1].CreatedAt)
	assert.NotEmpty(t, all[2].ID)
}

func TestTracker_ImportWithoutStatus(t *testing.T) {
	store := persistence.NewMemoryStore()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)
	_, err := tr.Add(fields("Acme", "Dev", NewDate(2024, 1, 8), enums.StatusOffer))
	require.NoError(t, err)

	_, _, err = tr.Import([]Application{{ID: "x", CompanyName: "Initech", Position: "QA", ApplicationDate: NewDate(2024, 1, 9)}})
	require.NoError(t, err)
	imported, err := tr.Get("x")
	require.NoError(t, err)
	assert.Equal(t, enums.StatusApplied, imported.Status)

	reloaded := newTestTracker(t, store, now)
	assert.Empty(t, reloaded.Warning())
	assert.Len(t, reloaded.All(), 2)
}

func TestNewUUID(t *testing.T) {
	a, b := newUUID(), newUUID()
	assert.NotEqual(t, a, b)
	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
