package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the core packages. Callers match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptySource  = errors.New("import source has no valid rows")
	ErrNotFound     = errors.New("not found")
)

// EmbeddingDim is the length of a face embedding produced by the extraction model.
const EmbeddingDim = 128

// DateLayout and TimeLayout are the persisted date/time formats of attendance logs.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Clazz represents a class
type Clazz struct {
	ID   string `json:"id"`   // Unique class ID
	Name string `json:"name"` // Class name
}

// Student represents an enrolled (or not yet enrolled) person on the roster
type Student struct {
	ID         string    `json:"id"`         // Unique student ID (e.g., student number)
	Name       string    `json:"name"`       // Student name
	GroupLabel string    `json:"groupLabel"` // Class/section label, may be empty
	Embedding  []float32 `json:"embedding"`  // nil until the face is enrolled
	Portrait   *string   `json:"portrait"`   // Opaque image reference, nil until enrolled
}

// Enrolled reports whether the student has a face embedding.
func (s Student) Enrolled() bool {
	return len(s.Embedding) > 0
}

// Status is the attendance state recorded for a student on a date.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusExcused Status = "EXCUSED"
)

// ParseStatus normalizes a status value. Empty means PRESENT.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case "", StatusPresent:
		return StatusPresent, nil
	case StatusAbsent:
		return StatusAbsent, nil
	case StatusExcused:
		return StatusExcused, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// LogKey identifies the single attendance log a student may have on a date.
type LogKey struct {
	StudentID string
	Date      string
}

// AttendanceLog is one attendance event
type AttendanceLog struct {
	StudentID string `json:"studentId"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM:SS, informational
	Status    Status `json:"status,omitempty"`
}

// Key returns the ledger key of the log.
func (l AttendanceLog) Key() LogKey {
	return LogKey{StudentID: l.StudentID, Date: l.Date}
}

// EffectiveStatus treats a missing status as PRESENT, as older backups omit it.
func (l AttendanceLog) EffectiveStatus() Status {
	if l.Status == "" {
		return StatusPresent
	}
	return l.Status
}

// UnmarshalJSON fills in the implicit PRESENT status.
func (l *AttendanceLog) UnmarshalJSON(data []byte) error {
	type plain AttendanceLog
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = AttendanceLog(p)
	if l.Status == "" {
		l.Status = StatusPresent
	}
	return nil
}
