// Package attendance wires the roster, matcher and ledger into the operations
// the scanner and the HTTP API call.
package attendance

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"attendance-server-go/importer"
	"attendance-server-go/ledger"
	"attendance-server-go/matcher"
	"attendance-server-go/metrics"
	"attendance-server-go/models"
	"attendance-server-go/roster"
)

// Outcome of a scanner tick
type Outcome string

const (
	OutcomeNoFace         Outcome = "no_face"
	OutcomeUnknown        Outcome = "unknown"
	OutcomeCheckedIn      Outcome = "checked_in"
	OutcomeAlreadyPresent Outcome = "already_present"
)

// ScanResult is returned for every scanner tick. Student is set for
// checked_in and already_present.
type ScanResult struct {
	Outcome  Outcome         `json:"outcome"`
	Student  *models.Student `json:"student,omitempty"`
	Distance float64         `json:"distance,omitempty"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
}

// Service coordinates roster and ledger.
type Service struct {
	// mu orders ledger writes for a student against that student's deletion,
	// so no log outlives its student.
	mu sync.Mutex

	Roster  *roster.Roster
	Ledger  *ledger.Ledger
	metrics metrics.Recorder
	now     func() time.Time
	loc     *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone used to derive dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService creates a Service over r and l.
func NewService(r *roster.Roster, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		Roster:  r,
		Ledger:  l,
		metrics: metrics.Nop{},
		now:     time.Now,
		loc:     time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// clock returns the current date and time-of-day strings.
func (s *Service) clock() (string, string) {
	t := s.now().In(s.loc)
	return t.Format(models.DateLayout), t.Format(models.TimeLayout)
}

// Today returns the current date string.
func (s *Service) Today() string {
	d, _ := s.clock()
	return d
}

// Scan handles one capture tick. A nil probe means no face was detected and
// nothing is matched.
func (s *Service) Scan(probe []float32) (ScanResult, error) {
	if probe == nil {
		return s.scanMiss(OutcomeNoFace), nil
	}

	m, err := matcher.Match(probe, s.Roster.Snapshot())
	if err != nil {
		return ScanResult{}, err
	}
	if m.Kind == matcher.Unknown {
		return s.scanMiss(OutcomeUnknown), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.Roster.Get(m.ID)
	if !ok {
		// Deleted after the snapshot was taken.
		return s.scanMiss(OutcomeUnknown), nil
	}
	date, clock := s.clock()
	res := ScanResult{Student: &student, Distance: m.Distance, Date: date, Time: clock}

	checkIn, err := s.Ledger.AutoCheckIn(student.ID, date, clock)
	if errors.Is(err, models.ErrInvalidInput) {
		return ScanResult{}, err
	}
	if checkIn == ledger.AlreadyPresent {
		res.Outcome = OutcomeAlreadyPresent
	} else {
		res.Outcome = OutcomeCheckedIn
		if err == nil {
			log.Printf("Checked in %s (%s) on %s at %s, distance %.3f", student.Name, student.ID, date, clock, m.Distance)
			s.metrics.RecordStatusChange("scan", string(models.StatusPresent))
		}
	}
	s.metrics.RecordScan(string(res.Outcome))
	return res, err
}

func (s *Service) scanMiss(outcome Outcome) ScanResult {
	date, clock := s.clock()
	s.metrics.RecordScan(string(outcome))
	return ScanResult{Outcome: outcome, Date: date, Time: clock}
}

// MarkStatus sets the student's status for today.
func (s *Service) MarkStatus(studentID string, status models.Status) (models.AttendanceLog, error) {
	date, _ := s.clock()
	return s.MarkStatusOn(studentID, date, status)
}

// MarkStatusOn sets the student's status for date, overriding any earlier log.
func (s *Service) MarkStatusOn(studentID, date string, status models.Status) (models.AttendanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Roster.Get(studentID); !ok {
		return models.AttendanceLog{}, fmt.Errorf("student %s: %w", studentID, models.ErrNotFound)
	}
	_, clock := s.clock()
	entry, err := s.Ledger.SetStatus(studentID, date, status, clock)
	if err != nil && errors.Is(err, models.ErrInvalidInput) {
		return entry, err
	}
	s.metrics.RecordStatusChange("manual", string(entry.Status))
	return entry, err
}

// AddStudent puts a student on the roster.
func (s *Service) AddStudent(student models.Student) error {
	return s.Roster.Put(student)
}

// Enroll stores a face embedding for a student.
func (s *Service) Enroll(studentID string, embedding []float32, portrait *string) (models.Student, error) {
	student, err := s.Roster.Enroll(studentID, embedding, portrait)
	if err == nil {
		log.Printf("Enrolled face for %s (%s)", student.Name, student.ID)
	}
	return student, err
}

// DeleteStudent removes the student and every log that references them.
func (s *Service) DeleteStudent(studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.Roster.Delete(studentID)
	if !existed {
		return 0, fmt.Errorf("student %s: %w", studentID, models.ErrNotFound)
	}
	removed, cascadeErr := s.Ledger.RemoveForIdentity(studentID)
	s.metrics.RecordCascade(removed)
	log.Printf("Deleted student %s and %d attendance logs", studentID, removed)
	return removed, errors.Join(err, cascadeErr)
}

// Report returns the attendance report of date over the whole roster.
func (s *Service) Report(date string) (ledger.Report, error) {
	return s.Ledger.Query(date, s.Roster.List())
}

// TodayReport returns the report for today.
func (s *Service) TodayReport() (ledger.Report, error) {
	return s.Report(s.Today())
}

// ClearLogs removes the logs of date, or all logs when date is empty.
func (s *Service) ClearLogs(date string) (int, error) {
	removed, err := s.Ledger.Clear(date)
	s.metrics.RecordClear(removed)
	if err == nil {
		log.Printf("Cleared %d attendance logs (date filter %q)", removed, date)
	}
	return removed, err
}

// ImportExcel merges the students of an .xlsx sheet.
func (s *Service) ImportExcel(file io.Reader, defaultGroup string) (importer.Validation, error) {
	v, err := importer.ImportExcel(file, s.Roster, defaultGroup)
	accepted := len(v.Accepted)
	if err != nil {
		accepted = 0
	}
	s.metrics.RecordImport("excel", accepted, len(v.Rejected))
	return v, err
}

// ExportJSON renders the backup document of the whole roster and ledger.
func (s *Service) ExportJSON() ([]byte, error) {
	return importer.ExportJSON(s.Roster.List(), s.Ledger.Events())
}

// ImportJSON merges a backup document.
func (s *Service) ImportJSON(data []byte) (importer.BackupResult, error) {
	b, err := importer.DecodeBackup(data)
	if err != nil {
		return importer.BackupResult{}, err
	}
	res, err := importer.ImportBackup(b, s.Roster, s.Ledger)
	s.metrics.RecordImport("json", res.Students+res.Logs, 0)
	return res, err
}
