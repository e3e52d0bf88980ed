package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"attendance-server-go/ledger"
	"attendance-server-go/models"
	"attendance-server-go/roster"
)

func TestMergeStudents_Idempotent(t *testing.T) {
	r := roster.New(nil)
	x := models.Student{ID: "001", Name: "Somchai", GroupLabel: "10A"}

	for i := 0; i < 2; i++ {
		if _, err := MergeStudents(r, []models.Student{x}); err != nil {
			t.Fatalf("MergeStudents() unexpected error: %v", err)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("roster has %d students, want 1", r.Len())
	}

	x.Name = "Somchai Vongsavanh"
	if _, err := MergeStudents(r, []models.Student{x}); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Get("001"); got.Name != "Somchai Vongsavanh" {
		t.Errorf("second merge kept name %q, want overwrite", got.Name)
	}
}

func TestMergeStudents_LastWriteWinsInBatch(t *testing.T) {
	r := roster.New(nil)
	n, err := MergeStudents(r, []models.Student{
		{ID: "001", Name: "first"},
		{ID: "002", Name: "other"},
		{ID: "001", Name: "second"},
	})
	if err != nil {
		t.Fatalf("MergeStudents() unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("MergeStudents() = %d, want 3 puts", n)
	}
	if got, _ := r.Get("001"); got.Name != "second" {
		t.Errorf("Get(001).Name = %q, want second", got.Name)
	}
	if r.Len() != 2 {
		t.Errorf("roster has %d students, want 2", r.Len())
	}
}

func TestMergeStudents_OverwritesEmbedding(t *testing.T) {
	r := roster.New(nil)
	emb := make([]float32, models.EmbeddingDim)
	emb[0] = 1
	if err := r.Put(models.Student{ID: "001", Name: "x", Embedding: emb}); err != nil {
		t.Fatal(err)
	}
	if _, err := MergeStudents(r, []models.Student{{ID: "001", Name: "x"}}); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Get("001"); got.Enrolled() {
		t.Error("full-record merge kept the old embedding")
	}
}

func TestMergeStudents_RejectsWholeBatch(t *testing.T) {
	r := roster.New(nil)
	_, err := MergeStudents(r, []models.Student{{ID: "001", Name: "ok"}, {ID: "", Name: "bad"}})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("MergeStudents() error = %v, want ErrInvalidInput", err)
	}
	if r.Len() != 0 {
		t.Errorf("roster has %d students after rejected batch, want 0", r.Len())
	}
}

func TestMerge_InvalidRecordMidBatchWritesNothing(t *testing.T) {
	valid := make([]float32, models.EmbeddingDim)

	t.Run("students", func(t *testing.T) {
		tests := []struct {
			name string
			bad  models.Student
		}{
			{"short embedding", models.Student{ID: "003", Name: "Thongly", Embedding: []float32{1, 2}}},
			{"blank name after trim", models.Student{ID: "003", Name: "   "}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := roster.New(nil)
				_, err := MergeStudents(r, []models.Student{
					{ID: "001", Name: "Somchai", Embedding: valid},
					{ID: "002", Name: "Mali"},
					tt.bad,
				})
				if !errors.Is(err, models.ErrInvalidInput) {
					t.Fatalf("MergeStudents() error = %v, want ErrInvalidInput", err)
				}
				if r.Len() != 0 {
					t.Errorf("roster has %d students after rejected batch, want 0", r.Len())
				}
			})
		}
	})

	t.Run("logs", func(t *testing.T) {
		l := ledger.New(nil)
		_, err := MergeEvents(l, []models.AttendanceLog{
			{StudentID: "001", Date: "2024-01-01", Time: "08:00:00"},
			{StudentID: "002", Date: "01/02/2024", Time: "08:00:00"},
			{StudentID: "003", Date: "2024-01-01", Time: "08:00:00"},
		})
		if !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("MergeEvents() error = %v, want ErrInvalidInput", err)
		}
		if l.Len() != 0 {
			t.Errorf("ledger has %d logs after rejected batch, want 0", l.Len())
		}
	})
}

func TestMergeStudents_EmptyEmbeddingIsNotEnrolled(t *testing.T) {
	r := roster.New(nil)
	if _, err := MergeStudents(r, []models.Student{{ID: "001", Name: "Somchai", Embedding: []float32{}}}); err != nil {
		t.Fatalf("MergeStudents() unexpected error: %v", err)
	}
	if got, _ := r.Get("001"); got.Embedding != nil {
		t.Errorf("Get(001).Embedding = %v, want nil", got.Embedding)
	}
}

func TestMergeEvents(t *testing.T) {
	l := ledger.New(nil)
	if _, err := l.AutoCheckIn("001", "2024-01-01", "08:00:00"); err != nil {
		t.Fatal(err)
	}

	n, err := MergeEvents(l, []models.AttendanceLog{
		{StudentID: "001", Date: "2024-01-01", Time: "09:00:00", Status: models.StatusExcused},
		{StudentID: "002", Date: "2024-01-01", Time: "08:30:00"},
		{StudentID: "002", Date: "2024-01-01", Time: "08:45:00", Status: models.StatusAbsent},
	})
	if err != nil {
		t.Fatalf("MergeEvents() unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("MergeEvents() = %d, want 3", n)
	}
	if l.Len() != 2 {
		t.Errorf("ledger has %d logs, want 2", l.Len())
	}
	if got, _ := l.Get("001", "2024-01-01"); got.Status != models.StatusExcused || got.Time != "09:00:00" {
		t.Errorf("Get(001) = %+v, want EXCUSED at 09:00:00", got)
	}
	if got, _ := l.Get("002", "2024-01-01"); got.Status != models.StatusAbsent {
		t.Errorf("Get(002) = %+v, want last record of batch", got)
	}

	_, err = MergeEvents(l, []models.AttendanceLog{{StudentID: "003", Date: "2024-01-01", Status: "LATE"}})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("MergeEvents(unknown status) error = %v, want ErrInvalidInput", err)
	}
}

func TestValidateRows(t *testing.T) {
	tests := []struct {
		name         string
		rows         [][]string
		wantAccepted int
		wantRejected int
		wantErr      error
	}{
		{
			name: "two valid one blank name",
			rows: [][]string{
				{"id", "name", "class"},
				{"001", "Somchai", "10A"},
				{"002", "  ", "10A"},
				{"003", "Thongly"},
			},
			wantAccepted: 2,
			wantRejected: 1,
		},
		{
			name: "all blank",
			rows: [][]string{
				{"id", "name", "class"},
				{"", "", ""},
				{" ", "\t"},
				{},
			},
			wantRejected: 3,
			wantErr:      models.ErrEmptySource,
		},
		{
			name:    "header only",
			rows:    [][]string{{"id", "name", "class"}},
			wantErr: models.ErrEmptySource,
		},
		{
			name:    "no rows",
			rows:    nil,
			wantErr: models.ErrEmptySource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValidateRows(tt.rows)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateRows() error = %v, want %v", err, tt.wantErr)
			}
			if len(v.Accepted) != tt.wantAccepted {
				t.Errorf("accepted = %d, want %d", len(v.Accepted), tt.wantAccepted)
			}
			if len(v.Rejected) != tt.wantRejected {
				t.Errorf("rejected = %d, want %d", len(v.Rejected), tt.wantRejected)
			}
		})
	}
}

func TestValidateRows_TrimsAndDefaults(t *testing.T) {
	v, err := ValidateRows([][]string{
		{"id", "name", "class"},
		{"  001 ", " Mali  ", ""},
		{"002", "", "10A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := v.Accepted[0]
	if got.ID != "001" || got.Name != "Mali" || got.GroupLabel != "" {
		t.Errorf("accepted = %+v, want trimmed values and empty group", got)
	}
	if v.Rejected[0].Row != 3 || v.Rejected[0].Reason != "missing name" {
		t.Errorf("rejected = %+v, want row 3 missing name", v.Rejected[0])
	}
}

func TestValidateRows_NormalizesUnicode(t *testing.T) {
	// "é" as e + combining acute accent.
	v, err := ValidateRows([][]string{{"h"}, {"1", "Rene\u0301"}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Accepted[0].Name != "Ren\u00e9" {
		t.Errorf("Name = %q, want NFC form", v.Accepted[0].Name)
	}
}

func buildSheet(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	for i, r := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cellName, &r); err != nil {
			t.Fatal(err)
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestImportExcel(t *testing.T) {
	sheet := buildSheet(t, [][]interface{}{
		{"Student ID", "Name", "Class"},
		{"001", "Somchai", "10B"},
		{"002", "Mali"},
		{"003", ""},
	})

	r := roster.New(nil)
	v, err := ImportExcel(sheet, r, "10A")
	if err != nil {
		t.Fatalf("ImportExcel() unexpected error: %v", err)
	}
	if len(v.Accepted) != 2 || len(v.Rejected) != 1 {
		t.Errorf("ImportExcel() accepted %d rejected %d, want 2 and 1", len(v.Accepted), len(v.Rejected))
	}
	if got, _ := r.Get("001"); got.GroupLabel != "10B" {
		t.Errorf("student 001 group = %q, want 10B from sheet", got.GroupLabel)
	}
	if got, _ := r.Get("002"); got.GroupLabel != "10A" {
		t.Errorf("student 002 group = %q, want default 10A", got.GroupLabel)
	}
}

func TestImportExcel_EmptySource(t *testing.T) {
	sheet := buildSheet(t, [][]interface{}{{"Student ID", "Name", "Class"}, {"", "", "10A"}})
	r := roster.New(nil)
	if _, err := ImportExcel(sheet, r, ""); !errors.Is(err, models.ErrEmptySource) {
		t.Errorf("ImportExcel() error = %v, want ErrEmptySource", err)
	}
	if r.Len() != 0 {
		t.Errorf("roster has %d students, want 0", r.Len())
	}
}

func TestImportExcel_NotAWorkbook(t *testing.T) {
	_, err := ImportExcel(strings.NewReader("id,name\n1,x\n"), roster.New(nil), "")
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("ImportExcel() error = %v, want ErrInvalidInput", err)
	}
}

func TestStudentTemplate_ImportsCleanly(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteStudentTemplate(buf); err != nil {
		t.Fatalf("WriteStudentTemplate() unexpected error: %v", err)
	}

	r := roster.New(nil)
	v, err := ImportExcel(buf, r, "")
	if err != nil {
		t.Fatalf("ImportExcel(template) unexpected error: %v", err)
	}
	if len(v.Accepted) != 3 || r.Len() != 3 {
		t.Errorf("template imported %d students, want 3", r.Len())
	}
}

func TestBackupRoundTrip(t *testing.T) {
	emb := make([]float32, models.EmbeddingDim)
	emb[5] = 0.25
	portrait := "photo-ref"
	students := []models.Student{
		{ID: "001", Name: "Somchai", GroupLabel: "10A", Embedding: emb, Portrait: &portrait},
		{ID: "002", Name: "Mali", GroupLabel: "10A"},
	}
	logs := []models.AttendanceLog{
		{StudentID: "001", Date: "2024-01-01", Time: "08:00:00", Status: models.StatusPresent},
		{StudentID: "002", Date: "2024-01-01", Time: "08:10:00", Status: models.StatusExcused},
	}

	data, err := ExportJSON(students, logs)
	if err != nil {
		t.Fatalf("ExportJSON() unexpected error: %v", err)
	}
	b, err := DecodeBackup(data)
	if err != nil {
		t.Fatalf("DecodeBackup() unexpected error: %v", err)
	}

	r := roster.New(nil)
	l := ledger.New(nil)
	res, err := ImportBackup(b, r, l)
	if err != nil {
		t.Fatalf("ImportBackup() unexpected error: %v", err)
	}
	if res.Students != 2 || res.Logs != 2 {
		t.Errorf("ImportBackup() = %+v, want 2 students and 2 logs", res)
	}
	got, _ := r.Get("001")
	if got.Embedding[5] != 0.25 || got.Portrait == nil || *got.Portrait != portrait {
		t.Errorf("student 001 = %+v, want embedding and portrait preserved", got)
	}
	if lg, _ := l.Get("002", "2024-01-01"); lg.Status != models.StatusExcused {
		t.Errorf("log 002 = %+v, want EXCUSED", lg)
	}
}

func TestImportBackup_BadLogKeepsStudentsOut(t *testing.T) {
	b, err := DecodeBackup([]byte(`{
		"students": [{"id": "001", "name": "Somchai", "embedding": []}],
		"logs": [
			{"studentId": "001", "date": "2024-01-01", "time": "08:00:00"},
			{"studentId": "001", "date": "2024-13-40", "time": "08:00:00"}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	r := roster.New(nil)
	l := ledger.New(nil)
	res, err := ImportBackup(b, r, l)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("ImportBackup() error = %v, want ErrInvalidInput", err)
	}
	if res.Students != 0 || r.Len() != 0 || l.Len() != 0 {
		t.Errorf("ImportBackup() = %+v with %d students, %d logs; want nothing merged", res, r.Len(), l.Len())
	}

	b.Logs = b.Logs[:1]
	if res, err := ImportBackup(b, r, l); err != nil || res.Students != 1 || res.Logs != 1 {
		t.Errorf("ImportBackup(valid) = %+v, %v; want 1 student and 1 log", res, err)
	}
}

func TestDecodeBackup_LegacyAndMalformed(t *testing.T) {
	b, err := DecodeBackup([]byte(`{"logs":[{"studentId":"1","date":"2024-01-01","time":"08:00:00"}]}`))
	if err != nil {
		t.Fatalf("DecodeBackup() unexpected error: %v", err)
	}
	if len(b.Students) != 0 || b.Logs[0].Status != models.StatusPresent {
		t.Errorf("DecodeBackup() = %+v, want missing status read as PRESENT", b)
	}
	if _, err := DecodeBackup([]byte("{not json")); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("DecodeBackup(malformed) error = %v, want ErrInvalidInput", err)
	}
}

func TestWriteAttendanceCSV(t *testing.T) {
	students := []models.Student{
		{ID: "001", Name: "Somchai", GroupLabel: "10A"},
		{ID: "002", Name: "Mali", GroupLabel: "10A"},
		{ID: "003", Name: "Thongly", GroupLabel: "10B"},
	}
	l := ledger.New(nil)
	if _, err := l.AutoCheckIn("001", "2024-01-01", "08:00:00"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SetStatus("003", "2024-01-01", models.StatusExcused, "08:30:00"); err != nil {
		t.Fatal(err)
	}
	rep, err := l.Query("2024-01-01", students)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	if err := WriteAttendanceCSV(buf, rep, students); err != nil {
		t.Fatalf("WriteAttendanceCSV() unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\uFEFF") {
		t.Error("csv output does not start with a byte order mark")
	}

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\uFEFF"))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("csv has %d records, want header + 3", len(records))
	}
	want := [][]string{
		{"001", "Somchai", "10A", "2024-01-01", "08:00:00", "PRESENT"},
		{"002", "Mali", "10A", "2024-01-01", "-", "ABSENT"},
		{"003", "Thongly", "10B", "2024-01-01", "08:30:00", "EXCUSED"},
	}
	for i, w := range want {
		if strings.Join(records[i+1], "|") != strings.Join(w, "|") {
			t.Errorf("record %d = %v, want %v", i+1, records[i+1], w)
		}
	}
}

func TestWriteAttendanceWorkbook(t *testing.T) {
	students := []models.Student{{ID: "001", Name: "Somchai", GroupLabel: "10A"}}
	rep, err := ledger.New(nil).Query("2024-01-01", students)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	if err := WriteAttendanceWorkbook(buf, rep, students); err != nil {
		t.Fatalf("WriteAttendanceWorkbook() unexpected error: %v", err)
	}
	rows, err := ReadExcelRows(buf)
	if err != nil {
		t.Fatalf("ReadExcelRows() unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1][5] != "ABSENT" {
		t.Errorf("workbook rows = %v, want header + one ABSENT row", rows)
	}
}
