package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-server-go/importer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportStudents handles POST /api/import/students. The optional classId form
// field is used for rows without a group.
func (h *APIHandler) ImportStudents(c *gin.Context) {
	classID := c.PostForm("classId")

	// "file" is the name attribute in the form
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received file upload: %s for class: %q", header.Filename, classID)

	v, err := h.Attendance.ImportExcel(file, classID)
	if err != nil {
		log.Printf("Error importing students from file %s: %v", header.Filename, err)
		if len(v.Rejected) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "rejected": v.Rejected})
			return
		}
		respondError(c, err, "Failed to import students")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": len(v.Accepted),
		"rejected":      v.Rejected,
		"classId":       classID,
	})
}

// GetImportTemplate handles GET /api/import/template
func (h *APIHandler) GetImportTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="students_template.xlsx"`)
	c.Header("Content-Type", xlsxContentType)
	if err := importer.WriteStudentTemplate(c.Writer); err != nil {
		log.Printf("Error writing import template: %v", err)
	}
}

// ExportBackup handles GET /api/backup
func (h *APIHandler) ExportBackup(c *gin.Context) {
	data, err := h.Attendance.ExportJSON()
	if err != nil {
		respondError(c, err, "Failed to export backup")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_backup_`+h.Attendance.Today()+`.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// ImportBackup handles POST /api/backup with a backup document as body.
func (h *APIHandler) ImportBackup(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body: " + err.Error()})
		return
	}
	res, err := h.Attendance.ImportJSON(data)
	if err != nil {
		respondError(c, err, "Failed to import backup")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Import successful",
		"students": res.Students,
		"logs":     res.Logs,
	})
}
