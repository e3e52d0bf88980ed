// Package ledger keeps the per-student, per-day attendance log.
//
// The ledger holds at most one AttendanceLog per (student, date). Automatic
// check-ins from the scanner are insert-only; manual status changes upsert and
// always win. All mutations run under a single mutex so a check-then-insert
// cannot race with another caller.
package ledger

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"attendance-server-go/models"
)

// Persister receives write-through updates after each mutation.
type Persister interface {
	SaveLog(entry models.AttendanceLog) error
	DeleteLogs(keys []models.LogKey) error
}

// CheckInResult is the outcome of AutoCheckIn
type CheckInResult int

const (
	Inserted CheckInResult = iota
	AlreadyPresent
)

func (r CheckInResult) String() string {
	if r == AlreadyPresent {
		return "already_present"
	}
	return "inserted"
}

// Ledger is the authoritative attendance log
type Ledger struct {
	mu      sync.RWMutex
	entries map[models.LogKey]*models.AttendanceLog
	order   []models.LogKey
	store   Persister
}

// New creates an empty ledger. store may be nil.
func New(store Persister) *Ledger {
	return &Ledger{
		entries: make(map[models.LogKey]*models.AttendanceLog),
		store:   store,
	}
}

func validateKey(studentID, date string) error {
	if studentID == "" || date == "" {
		return fmt.Errorf("%w: student ID and date are required", models.ErrInvalidInput)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", models.ErrInvalidInput, date)
	}
	return nil
}

// insertLocked must be called with mu held.
func (l *Ledger) insertLocked(entry models.AttendanceLog) {
	key := entry.Key()
	if existing, ok := l.entries[key]; ok {
		*existing = entry
		return
	}
	e := entry
	l.entries[key] = &e
	l.order = append(l.order, key)
}

// removeLocked must be called with mu held.
func (l *Ledger) removeLocked(match func(models.LogKey) bool) []models.LogKey {
	var removed []models.LogKey
	kept := l.order[:0]
	for _, key := range l.order {
		if match(key) {
			delete(l.entries, key)
			removed = append(removed, key)
			continue
		}
		kept = append(kept, key)
	}
	l.order = kept
	return removed
}

func (l *Ledger) save(entry models.AttendanceLog) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveLog(entry); err != nil {
		log.Printf("Error persisting attendance log %s/%s: %v", entry.StudentID, entry.Date, err)
		return fmt.Errorf("failed to persist attendance log: %w", err)
	}
	return nil
}

func (l *Ledger) delete(keys []models.LogKey) error {
	if l.store == nil || len(keys) == 0 {
		return nil
	}
	if err := l.store.DeleteLogs(keys); err != nil {
		log.Printf("Error deleting %d attendance logs from store: %v", len(keys), err)
		return fmt.Errorf("failed to delete attendance logs: %w", err)
	}
	return nil
}

// AutoCheckIn records a PRESENT log when the student has none for the date.
// An existing log is never touched, whatever its status.
func (l *Ledger) AutoCheckIn(studentID, date, clock string) (CheckInResult, error) {
	if err := validateKey(studentID, date); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[models.LogKey{StudentID: studentID, Date: date}]; ok {
		return AlreadyPresent, nil
	}
	entry := models.AttendanceLog{StudentID: studentID, Date: date, Time: clock, Status: models.StatusPresent}
	l.insertLocked(entry)
	return Inserted, l.save(entry)
}

// SetStatus overwrites the status and time of the student's log for the date,
// creating it if needed.
func (l *Ledger) SetStatus(studentID, date string, status models.Status, clock string) (models.AttendanceLog, error) {
	if err := validateKey(studentID, date); err != nil {
		return models.AttendanceLog{}, err
	}
	st, err := models.ParseStatus(string(status))
	if err != nil {
		return models.AttendanceLog{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := models.AttendanceLog{StudentID: studentID, Date: date, Time: clock, Status: st}
	l.insertLocked(entry)
	return entry, l.save(entry)
}

// ValidateEntry returns the log as Put would store it, with its status normalized.
func ValidateEntry(entry models.AttendanceLog) (models.AttendanceLog, error) {
	if err := validateKey(entry.StudentID, entry.Date); err != nil {
		return entry, err
	}
	st, err := models.ParseStatus(string(entry.Status))
	if err != nil {
		return entry, err
	}
	entry.Status = st
	return entry, nil
}

// Put stores a full record, replacing any log with the same key.
func (l *Ledger) Put(entry models.AttendanceLog) error {
	entry, err := ValidateEntry(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.insertLocked(entry)
	return l.save(entry)
}

// Clear removes every log for date, or the whole ledger when date is empty.
func (l *Ledger) Clear(date string) (int, error) {
	if date != "" {
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return 0, fmt.Errorf("%w: date %q is not YYYY-MM-DD", models.ErrInvalidInput, date)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.removeLocked(func(k models.LogKey) bool {
		return date == "" || k.Date == date
	})
	return len(removed), l.delete(removed)
}

// RemoveForIdentity deletes the student's logs on every date.
func (l *Ledger) RemoveForIdentity(studentID string) (int, error) {
	if studentID == "" {
		return 0, fmt.Errorf("%w: student ID is required", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.removeLocked(func(k models.LogKey) bool {
		return k.StudentID == studentID
	})
	return len(removed), l.delete(removed)
}

// Load replaces the in-memory state with persisted logs without writing back.
// Later duplicates of a key win.
func (l *Ledger) Load(entries []models.AttendanceLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[models.LogKey]*models.AttendanceLog, len(entries))
	l.order = l.order[:0]
	for _, e := range entries {
		if e.StudentID == "" || e.Date == "" {
			log.Printf("Skipping persisted attendance log with empty key: %+v", e)
			continue
		}
		e.Status = e.EffectiveStatus()
		l.insertLocked(e)
	}
}

// Get returns the log for a key.
func (l *Ledger) Get(studentID, date string) (models.AttendanceLog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[models.LogKey{StudentID: studentID, Date: date}]
	if !ok {
		return models.AttendanceLog{}, false
	}
	return *e, true
}

// Len returns the number of logs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Events returns every log in insertion order.
func (l *Ledger) Events() []models.AttendanceLog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AttendanceLog, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, *l.entries[key])
	}
	return out
}

// EventsOn returns the logs of one date in insertion order.
func (l *Ledger) EventsOn(date string) []models.AttendanceLog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []models.AttendanceLog{}
	for _, key := range l.order {
		if key.Date == date {
			out = append(out, *l.entries[key])
		}
	}
	return out
}

// Dates returns the distinct dates that have logs, newest first.
func (l *Ledger) Dates() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	dates := []string{}
	for _, key := range l.order {
		if _, ok := seen[key.Date]; ok {
			continue
		}
		seen[key.Date] = struct{}{}
		dates = append(dates, key.Date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}
