package ledger

import (
	"fmt"
	"sort"
	"time"

	"attendance-server-go/models"
)

// Entry pairs a roster student with the log that placed them in a report bucket.
type Entry struct {
	Student models.Student       `json:"student"`
	Log     models.AttendanceLog `json:"log"`
}

// Summary keeps "no log" apart from an explicit ABSENT.
type Summary struct {
	Total       int `json:"total"`
	Present     int `json:"present"`
	Absent      int `json:"absent"`
	Excused     int `json:"excused"`
	Unchecked   int `json:"unchecked"`
	AbsentTotal int `json:"absentTotal"` // Absent + Unchecked
}

// Report is the attendance picture of one date over a roster.
type Report struct {
	Date      string                 `json:"date"`
	Present   []Entry                `json:"present"`
	Absent    []Entry                `json:"absent"`
	Excused   []Entry                `json:"excused"`
	Unchecked []models.Student       `json:"unchecked"`
	Orphans   []models.AttendanceLog `json:"orphans"`
	Summary   Summary                `json:"summary"`
}

// Lookup returns the log of a roster student, if the report has one.
func (r Report) Lookup(studentID string) (models.AttendanceLog, bool) {
	for _, bucket := range [][]Entry{r.Present, r.Absent, r.Excused} {
		for _, e := range bucket {
			if e.Student.ID == studentID {
				return e.Log, true
			}
		}
	}
	return models.AttendanceLog{}, false
}

// Query partitions roster into students with a PRESENT, ABSENT or EXCUSED log
// on date and those without any log.
func (l *Ledger) Query(date string, roster []models.Student) (Report, error) {
	if date == "" {
		return Report{}, fmt.Errorf("%w: date is required", models.ErrInvalidInput)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return Report{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", models.ErrInvalidInput, date)
	}

	logs := l.EventsOn(date)
	byStudent := make(map[string]models.AttendanceLog, len(logs))
	for _, e := range logs {
		byStudent[e.StudentID] = e
	}

	rep := Report{
		Date:      date,
		Present:   []Entry{},
		Absent:    []Entry{},
		Excused:   []Entry{},
		Unchecked: []models.Student{},
		Orphans:   []models.AttendanceLog{},
	}
	known := make(map[string]struct{}, len(roster))
	for _, s := range roster {
		known[s.ID] = struct{}{}
		e, ok := byStudent[s.ID]
		if !ok {
			rep.Unchecked = append(rep.Unchecked, s)
			continue
		}
		entry := Entry{Student: s, Log: e}
		switch e.EffectiveStatus() {
		case models.StatusAbsent:
			rep.Absent = append(rep.Absent, entry)
		case models.StatusExcused:
			rep.Excused = append(rep.Excused, entry)
		default:
			rep.Present = append(rep.Present, entry)
		}
	}
	for _, e := range logs {
		if _, ok := known[e.StudentID]; !ok {
			rep.Orphans = append(rep.Orphans, e)
		}
	}

	byTime := func(entries []Entry) {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Log.Time < entries[j].Log.Time })
	}
	byTime(rep.Present)
	byTime(rep.Absent)
	byTime(rep.Excused)

	rep.Summary = Summary{
		Total:       len(roster),
		Present:     len(rep.Present),
		Absent:      len(rep.Absent),
		Excused:     len(rep.Excused),
		Unchecked:   len(rep.Unchecked),
		AbsentTotal: len(rep.Absent) + len(rep.Unchecked),
	}
	return rep, nil
}
