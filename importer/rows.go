package importer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"attendance-server-go/models"
)

// RowError describes a spreadsheet row that was skipped.
type RowError struct {
	Row    int    `json:"row"` // 1-based, as shown by spreadsheet programs
	Reason string `json:"reason"`
}

// Validation is the result of checking tabular rows before a merge.
type Validation struct {
	Accepted []models.Student `json:"-"`
	Rejected []RowError       `json:"rejected"`
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(row[i]))
}

// ValidateRows turns sheet rows (header first; columns id, name, group) into
// students. Rows with a blank id or name are rejected; the group may be empty.
// It fails with ErrEmptySource only when no row is accepted.
func ValidateRows(rows [][]string) (Validation, error) {
	v := Validation{Accepted: []models.Student{}, Rejected: []RowError{}}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		id, name, group := cell(row, 0), cell(row, 1), cell(row, 2)

		switch {
		case id == "" && name == "":
			v.Rejected = append(v.Rejected, RowError{Row: i + 1, Reason: "blank row"})
			continue
		case id == "":
			v.Rejected = append(v.Rejected, RowError{Row: i + 1, Reason: "missing student id"})
			continue
		case name == "":
			v.Rejected = append(v.Rejected, RowError{Row: i + 1, Reason: "missing name"})
			continue
		}

		v.Accepted = append(v.Accepted, models.Student{ID: id, Name: name, GroupLabel: group})
	}

	if len(v.Accepted) == 0 {
		return v, models.ErrEmptySource
	}
	return v, nil
}

// ReadExcelRows returns the rows of the first sheet of an .xlsx stream.
func ReadExcelRows(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return nil, fmt.Errorf("%w: failed to open excel file: %v", models.ErrInvalidInput, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("%w: excel file does not contain any sheets", models.ErrInvalidInput)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}
	return rows, nil
}

// ImportExcel reads, validates and merges a student sheet. Rows without a
// group take defaultGroup when it is set.
func ImportExcel(file io.Reader, dst StudentPutter, defaultGroup string) (Validation, error) {
	rows, err := ReadExcelRows(file)
	if err != nil {
		return Validation{}, err
	}

	v, err := ValidateRows(rows)
	if err != nil {
		if errors.Is(err, models.ErrEmptySource) {
			log.Printf("Excel import rejected: %d rows, none valid", len(v.Rejected))
		}
		return v, err
	}
	for _, r := range v.Rejected {
		log.Printf("Skipping row %d: %s", r.Row, r.Reason)
	}

	if defaultGroup != "" {
		for i := range v.Accepted {
			if v.Accepted[i].GroupLabel == "" {
				v.Accepted[i].GroupLabel = defaultGroup
			}
		}
	}

	log.Printf("Attempting to add %d students from Excel file", len(v.Accepted))
	if _, err := MergeStudents(dst, v.Accepted); err != nil {
		return v, err
	}
	return v, nil
}
