// Package importer merges externally supplied students and attendance logs
// into the roster and ledger, and renders the spreadsheet/JSON exchange formats.
package importer

import (
	"fmt"

	"attendance-server-go/ledger"
	"attendance-server-go/models"
	"attendance-server-go/roster"
)

// StudentPutter stores a student with put semantics.
type StudentPutter interface {
	Put(student models.Student) error
}

// LogPutter stores an attendance log with put semantics.
type LogPutter interface {
	Put(entry models.AttendanceLog) error
}

// validateStudents normalizes every record the way the roster will, so a
// bad record anywhere rejects the batch before anything is written.
func validateStudents(batch []models.Student) ([]models.Student, error) {
	out := make([]models.Student, len(batch))
	for i, s := range batch {
		v, err := roster.ValidateStudent(s)
		if err != nil {
			return nil, fmt.Errorf("student record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func validateEvents(batch []models.AttendanceLog) ([]models.AttendanceLog, error) {
	out := make([]models.AttendanceLog, len(batch))
	for i, e := range batch {
		v, err := ledger.ValidateEntry(e)
		if err != nil {
			return nil, fmt.Errorf("log record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func putStudents(dst StudentPutter, batch []models.Student) (int, error) {
	merged := 0
	for _, s := range batch {
		if err := dst.Put(s); err != nil {
			return merged, fmt.Errorf("failed to merge student %s: %w", s.ID, err)
		}
		merged++
	}
	return merged, nil
}

func putEvents(dst LogPutter, batch []models.AttendanceLog) (int, error) {
	merged := 0
	for _, e := range batch {
		if err := dst.Put(e); err != nil {
			return merged, fmt.Errorf("failed to merge log %s/%s: %w", e.StudentID, e.Date, err)
		}
		merged++
	}
	return merged, nil
}

// MergeStudents writes every student of batch in order. A key repeated inside
// the batch ends up with its last record. The whole batch is validated before
// the first write.
func MergeStudents(dst StudentPutter, batch []models.Student) (int, error) {
	valid, err := validateStudents(batch)
	if err != nil {
		return 0, err
	}
	return putStudents(dst, valid)
}

// MergeEvents writes every log of batch in order, replacing logs with the same
// (student, date). A missing status means PRESENT. The whole batch is
// validated before the first write.
func MergeEvents(dst LogPutter, batch []models.AttendanceLog) (int, error) {
	valid, err := validateEvents(batch)
	if err != nil {
		return 0, err
	}
	return putEvents(dst, valid)
}
