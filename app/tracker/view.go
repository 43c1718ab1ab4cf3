package tracker

import (
	"slices"

	"github.com/umputun/jobtrack/app/enums"
)

// Stats holds the summary counts of a week
type Stats struct {
	Total      int `json:"total"`
	Interviews int `json:"interviews"`
	Offers     int `json:"offers"` // offer and accepted
}

// View is the rendered state of one week: label, date range, counts and cards newest first
type View struct {
	Cursor  Cursor
	Range   WeekRange
	Stats   Stats
	Jobs    []Application
	Warning string
}

// Empty reports whether the week has no applications
func (v View) Empty() bool { return len(v.Jobs) == 0 }

// Render builds the view of the selected week
func (t *Tracker) Render() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := buildView(t.cursor, t.jobs)
	v.Warning = t.warning
	return v
}

// ViewOf builds the view of any week without moving the cursor
func (t *Tracker) ViewOf(c Cursor) View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return buildView(c, t.jobs)
}

func buildView(c Cursor, all []Application) View {
	jobs := jobsIn(all, c)
	slices.SortStableFunc(jobs, func(a, b Application) int {
		return b.ApplicationDate.Compare(a.ApplicationDate)
	})
	return View{Cursor: c, Range: c.Range(), Stats: statsOf(jobs), Jobs: jobs}
}

func statsOf(jobs []Application) Stats {
	res := Stats{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case enums.StatusInterview:
			res.Interviews++
		case enums.StatusOffer, enums.StatusAccepted:
			res.Offers++
		}
	}
	return res
}

// jobsIn returns a new slice with the applications dated in the cursor's week, in stored order
func jobsIn(all []Application, c Cursor) []Application {
	res := []Application{}
	for _, a := range all {
		if c.Contains(a.ApplicationDate) {
			res = append(res, a)
		}
	}
	return res
}
