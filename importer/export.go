package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"

	"github.com/xuri/excelize/v2"

	"attendance-server-go/ledger"
	"attendance-server-go/models"
)

const (
	templateSheet   = "Students"
	attendanceSheet = "Attendance"
)

var (
	templateHeader   = []interface{}{"Student ID", "Name", "Class"}
	attendanceHeader = []string{"Student ID", "Name", "Class", "Date", "Time", "Status"}
)

// attendanceRows lists every roster student with their log for the report date.
// Students without a log are shown as ABSENT.
func attendanceRows(rep ledger.Report, roster []models.Student) [][]string {
	rows := make([][]string, 0, len(roster))
	for _, s := range roster {
		t, status := "-", string(models.StatusAbsent)
		if lg, ok := rep.Lookup(s.ID); ok {
			status = string(lg.EffectiveStatus())
			if lg.Time != "" {
				t = lg.Time
			}
		}
		rows = append(rows, []string{s.ID, s.Name, s.GroupLabel, rep.Date, t, status})
	}
	return rows
}

func writeWorkbook(f *excelize.File, w io.Writer) error {
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write excel file: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cellName, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cellName, &values)
}

func setColWidths(f *excelize.File, sheet string, widths map[string]float64) error {
	for col, width := range widths {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set width of column %s on %s: %w", col, sheet, err)
		}
	}
	return nil
}

// WriteStudentTemplate writes an .xlsx template for the student import.
func WriteStudentTemplate(w io.Writer) error {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return fmt.Errorf("failed to name template sheet: %w", err)
	}

	rows := [][]interface{}{
		templateHeader,
		{"001", "Somchai Vongsavanh", "10A"},
		{"002", "Mali Phommavong", "10A"},
		{"003", "Thongly Sithida", "10B"},
	}
	for i, r := range rows {
		if err := setRow(f, templateSheet, i+1, r); err != nil {
			return fmt.Errorf("failed to write template row %d: %w", i+1, err)
		}
	}
	if err := setColWidths(f, templateSheet, map[string]float64{"A": 18, "B": 30, "C": 12}); err != nil {
		return err
	}

	return writeWorkbook(f, w)
}

// WriteAttendanceWorkbook writes the report as an .xlsx sheet, one row per roster student.
func WriteAttendanceWorkbook(w io.Writer, rep ledger.Report, roster []models.Student) error {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", attendanceSheet); err != nil {
		return fmt.Errorf("failed to name attendance sheet: %w", err)
	}

	header := make([]interface{}, len(attendanceHeader))
	for i, h := range attendanceHeader {
		header[i] = h
	}
	if err := setRow(f, attendanceSheet, 1, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range attendanceRows(rep, roster) {
		values := make([]interface{}, len(r))
		for j, v := range r {
			values[j] = v
		}
		if err := setRow(f, attendanceSheet, i+2, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := setColWidths(f, attendanceSheet, map[string]float64{"A": 10, "B": 30, "C": 12, "D": 12, "E": 12, "F": 12}); err != nil {
		return err
	}

	return writeWorkbook(f, w)
}

// WriteAttendanceCSV writes the report as UTF-8 CSV with a byte order mark so
// spreadsheet programs pick the right encoding.
func WriteAttendanceCSV(w io.Writer, rep ledger.Report, roster []models.Student) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(attendanceHeader); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err := cw.WriteAll(attendanceRows(rep, roster)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
