package importer

import (
	"encoding/json"
	"fmt"

	"attendance-server-go/models"
)

// Backup is the JSON exchange document holding the whole roster and ledger.
type Backup struct {
	Students []models.Student       `json:"students"`
	Logs     []models.AttendanceLog `json:"logs"`
}

// BackupResult counts what ImportBackup merged.
type BackupResult struct {
	Students int `json:"students"`
	Logs     int `json:"logs"`
}

// ExportJSON renders an indented backup document.
func ExportJSON(students []models.Student, logs []models.AttendanceLog) ([]byte, error) {
	if students == nil {
		students = []models.Student{}
	}
	if logs == nil {
		logs = []models.AttendanceLog{}
	}
	data, err := json.MarshalIndent(Backup{Students: students, Logs: logs}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return data, nil
}

// DecodeBackup parses a backup document. Either section may be missing.
func DecodeBackup(data []byte) (Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return Backup{}, fmt.Errorf("%w: malformed backup JSON: %v", models.ErrInvalidInput, err)
	}
	return b, nil
}

// ImportBackup merges students first, then logs. Nothing is merged unless
// both sections are valid.
func ImportBackup(b Backup, students StudentPutter, logs LogPutter) (BackupResult, error) {
	var res BackupResult
	validStudents, err := validateStudents(b.Students)
	if err != nil {
		return res, err
	}
	validLogs, err := validateEvents(b.Logs)
	if err != nil {
		return res, err
	}

	res.Students, err = putStudents(students, validStudents)
	if err != nil {
		return res, err
	}
	res.Logs, err = putEvents(logs, validLogs)
	return res, err
}
