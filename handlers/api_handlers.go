package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendance-server-go/attendance"
	"attendance-server-go/db"
	"attendance-server-go/models"
)

// APIHandler holds the dependencies for API handlers: the Redis service for
// class data and the attendance service for everything on the roster.
type APIHandler struct {
	RedisService *db.RedisService
	Attendance   *attendance.Service
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(store *db.RedisService, svc *attendance.Service) *APIHandler {
	return &APIHandler{
		RedisService: store,
		Attendance:   svc,
	}
}

// respondError maps the error taxonomy onto status codes. msg is used for
// failures the client cannot fix.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrEmptySource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// --- Class Handlers ---

// GetAllClasses handles GET /api/classes
func (h *APIHandler) GetAllClasses(c *gin.Context) {
	classes, err := h.RedisService.GetAllClasses()
	if err != nil {
		log.Printf("Error in GetAllClasses handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve classes"})
		return
	}
	if classes == nil {
		// Return empty list instead of null for JSON consistency
		c.JSON(http.StatusOK, []models.Clazz{})
		return
	}
	c.JSON(http.StatusOK, classes)
}

// GetClassByID handles GET /api/classes/:classId
func (h *APIHandler) GetClassByID(c *gin.Context) {
	classID := c.Param("classId")
	clazz, err := h.RedisService.GetClassByID(classID)
	if err != nil {
		log.Printf("Error in GetClassByID handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve class details"})
		return
	}
	if clazz == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	c.JSON(http.StatusOK, clazz)
}

// AddClass handles POST /api/classes
func (h *APIHandler) AddClass(c *gin.Context) {
	var newClass models.Clazz
	if err := c.ShouldBindJSON(&newClass); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.RedisService.AddClass(newClass); err != nil {
		respondError(c, err, "Failed to add class")
		return
	}
	c.JSON(http.StatusCreated, newClass)
}

// GetStudentsByClass handles GET /api/classes/:classId/students
func (h *APIHandler) GetStudentsByClass(c *gin.Context) {
	classID := c.Param("classId")
	exists, err := h.RedisService.ClassExists(classID)
	if err != nil {
		log.Printf("Error checking class existence in GetStudentsByClass handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify class"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	c.JSON(http.StatusOK, h.Attendance.Roster.ByGroup(classID))
}

// GetRandomStudent handles GET /api/classes/:classId/random-student
func (h *APIHandler) GetRandomStudent(c *gin.Context) {
	classID := c.Param("classId")
	studentID, err := h.RedisService.GetRandomStudent(classID)
	if err != nil {
		log.Printf("Error in GetRandomStudent handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get random student"})
		return
	}

	student, ok := h.Attendance.Roster.Get(studentID)
	if studentID == "" || !ok {
		exists, err := h.RedisService.ClassExists(classID)
		if err != nil {
			log.Printf("Error checking class existence in GetRandomStudent handler for ID %s: %v", classID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify class"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "No students found in this class"})
		}
		return
	}
	c.JSON(http.StatusOK, student)
}

// --- Student Handlers ---

// GetAllStudents handles GET /api/students
func (h *APIHandler) GetAllStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.Attendance.Roster.List())
}

// GetStudent handles GET /api/students/:id
func (h *APIHandler) GetStudent(c *gin.Context) {
	student, ok := h.Attendance.Roster.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
		return
	}
	c.JSON(http.StatusOK, student)
}

// AddStudent handles POST /api/students. Posting an existing ID replaces the record.
func (h *APIHandler) AddStudent(c *gin.Context) {
	var student models.Student
	if err := c.ShouldBindJSON(&student); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	student.ID = strings.TrimSpace(student.ID)
	if err := h.Attendance.AddStudent(student); err != nil {
		respondError(c, err, "Failed to add student")
		return
	}
	saved, _ := h.Attendance.Roster.Get(student.ID)
	c.JSON(http.StatusCreated, saved)
}

// DeleteStudent handles DELETE /api/students/:id
func (h *APIHandler) DeleteStudent(c *gin.Context) {
	studentID := c.Param("id")
	removed, err := h.Attendance.DeleteStudent(studentID)
	if err != nil {
		respondError(c, err, "Failed to delete student")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted", "id": studentID, "removedLogs": removed})
}

type enrollRequest struct {
	Embedding []float32 `json:"embedding"`
	Portrait  *string   `json:"portrait"`
}

// EnrollFace handles PUT /api/students/:id/face
func (h *APIHandler) EnrollFace(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	student, err := h.Attendance.Enroll(c.Param("id"), req.Embedding, req.Portrait)
	if err != nil {
		respondError(c, err, "Failed to enroll face")
		return
	}
	c.JSON(http.StatusOK, student)
}

// --- Ping Handler ---

// PingHandler handles GET /api/ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
