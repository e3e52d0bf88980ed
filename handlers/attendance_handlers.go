package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-server-go/importer"
	"attendance-server-go/models"
)

type scanRequest struct {
	// Embedding is null when the camera frame had no face.
	Embedding []float32 `json:"embedding"`
}

// Scan handles POST /api/scan, one capture tick of the scanner.
func (h *APIHandler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	res, err := h.Attendance.Scan(req.Embedding)
	if err != nil {
		respondError(c, err, "Failed to record scan")
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAttendanceDates handles GET /api/attendance/dates
func (h *APIHandler) GetAttendanceDates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"today": h.Attendance.Today(),
		"dates": h.Attendance.Ledger.Dates(),
	})
}

// GetAttendance handles GET /api/attendance/:date. "today" resolves to the
// server's current date.
func (h *APIHandler) GetAttendance(c *gin.Context) {
	rep, err := h.Attendance.Report(h.resolveDate(c.Param("date")))
	if err != nil {
		respondError(c, err, "Failed to build attendance report")
		return
	}
	c.JSON(http.StatusOK, rep)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetAttendanceStatus handles PUT /api/attendance/:date/:studentId
func (h *APIHandler) SetAttendanceStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		respondError(c, err, "Failed to update attendance")
		return
	}
	entry, err := h.Attendance.MarkStatusOn(c.Param("studentId"), h.resolveDate(c.Param("date")), status)
	if err != nil {
		respondError(c, err, "Failed to update attendance")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ClearAttendance handles DELETE /api/attendance. Without ?date= every log is removed.
func (h *APIHandler) ClearAttendance(c *gin.Context) {
	date := c.Query("date")
	removed, err := h.Attendance.ClearLogs(date)
	if err != nil {
		respondError(c, err, "Failed to clear attendance")
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "date": date})
}

// ExportAttendance handles GET /api/attendance/:date/export?format=xlsx|csv
func (h *APIHandler) ExportAttendance(c *gin.Context) {
	date := h.resolveDate(c.Param("date"))
	rep, err := h.Attendance.Report(date)
	if err != nil {
		respondError(c, err, "Failed to build attendance report")
		return
	}
	roster := h.Attendance.Roster.List()

	switch format := c.DefaultQuery("format", "xlsx"); format {
	case "xlsx":
		c.Header("Content-Disposition", `attachment; filename="attendance_`+date+`.xlsx"`)
		c.Header("Content-Type", xlsxContentType)
		err = importer.WriteAttendanceWorkbook(c.Writer, rep, roster)
	case "csv":
		c.Header("Content-Disposition", `attachment; filename="attendance_`+date+`.csv"`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		err = importer.WriteAttendanceCSV(c.Writer, rep, roster)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported export format: " + format})
		return
	}
	if err != nil {
		// Headers are already out; the client sees a truncated file.
		log.Printf("Error exporting attendance for %s: %v", date, err)
	}
}

func (h *APIHandler) resolveDate(date string) string {
	if date == "today" {
		return h.Attendance.Today()
	}
	return date
}
