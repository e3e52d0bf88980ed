package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API under /api and the metrics endpoint at /metrics.
func RegisterRoutes(router *gin.Engine, h *APIHandler, metricsHandler http.Handler) {
	api := router.Group("/api")
	{
		// Class routes
		api.GET("/classes", h.GetAllClasses)
		api.GET("/classes/:classId", h.GetClassByID)
		api.POST("/classes", h.AddClass)
		api.GET("/classes/:classId/students", h.GetStudentsByClass)
		api.GET("/classes/:classId/random-student", h.GetRandomStudent)

		// Student routes
		api.GET("/students", h.GetAllStudents)
		api.POST("/students", h.AddStudent)
		api.GET("/students/:id", h.GetStudent)
		api.DELETE("/students/:id", h.DeleteStudent)
		api.PUT("/students/:id/face", h.EnrollFace)

		// Attendance routes
		api.POST("/scan", h.Scan)
		api.GET("/attendance/dates", h.GetAttendanceDates)
		api.GET("/attendance/:date", h.GetAttendance)
		api.PUT("/attendance/:date/:studentId", h.SetAttendanceStatus)
		api.DELETE("/attendance", h.ClearAttendance)
		api.GET("/attendance/:date/export", h.ExportAttendance)

		// Import and backup routes
		api.POST("/import/students", h.ImportStudents)
		api.GET("/import/template", h.GetImportTemplate)
		api.GET("/backup", h.ExportBackup)
		api.POST("/backup", h.ImportBackup)

		api.GET("/ping", PingHandler)
	}

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
}
