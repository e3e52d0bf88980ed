package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/go-redis/redis/v8"

	"attendance-server-go/config"
	"attendance-server-go/models"
)

const (
	classesKey          = "classes"          // Set: Stores all class IDs
	classInfoPrefix     = "class:"           // Hash prefix: class:{id} -> stores class details
	classStudentsPrefix = "class:"           // Set prefix: class:{id}:students -> stores student IDs for a class
	studentsKey         = "students"         // Set: Stores all student IDs
	studentInfoPrefix   = "student:"         // Hash prefix: student:{id} -> stores student details
	attendanceDatesKey  = "attendance:dates" // Set: dates that have at least one log
	attendancePrefix    = "attendance:"      // Hash prefix: attendance:{date} -> studentId -> log JSON
)

// RedisService handles operations with the Redis database
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context // Base context
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		Client: client,
		Ctx:    context.Background(), // Use a background context as base
	}
}

// Helper to generate class info key
func getClassInfoKey(classID string) string {
	return classInfoPrefix + classID
}

// Helper to generate class students set key
func getClassStudentsKey(classID string) string {
	return classStudentsPrefix + classID + ":students"
}

// Helper to generate student info key
func getStudentInfoKey(studentID string) string {
	return studentInfoPrefix + studentID
}

// Helper to generate the per-date attendance hash key
func getAttendanceKey(date string) string {
	return attendancePrefix + date
}

// storedLog is the hash value of one attendance log; the key carries studentId and date.
type storedLog struct {
	Time   string        `json:"time"`
	Status models.Status `json:"status,omitempty"`
}

// --- Class Operations ---

// AddClass adds a new class to Redis
func (s *RedisService) AddClass(clazz models.Clazz) error {
	if clazz.ID == "" || clazz.Name == "" {
		return fmt.Errorf("%w: class ID and Name cannot be empty", models.ErrInvalidInput)
	}
	classKey := getClassInfoKey(clazz.ID)
	pipe := s.Client.Pipeline()

	// Add class ID to the global set of classes
	pipe.SAdd(s.Ctx, classesKey, clazz.ID)
	// Store class details in a Hash
	pipe.HSet(s.Ctx, classKey, map[string]interface{}{
		"id":   clazz.ID,
		"name": clazz.Name,
	})

	_, err := pipe.Exec(s.Ctx)
	if err != nil {
		log.Printf("Error adding class %s: %v", clazz.ID, err)
		return fmt.Errorf("failed to add class to Redis: %w", err)
	}
	log.Printf("Added class: %s (%s)", clazz.Name, clazz.ID)
	return nil
}

// GetClassByID retrieves a class by its ID
func (s *RedisService) GetClassByID(classID string) (*models.Clazz, error) {
	classKey := getClassInfoKey(classID)
	data, err := s.Client.HGetAll(s.Ctx, classKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found is not necessarily an error in API context
		}
		log.Printf("Error getting class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get class from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Not found
	}

	return &models.Clazz{
		ID:   data["id"],
		Name: data["name"],
	}, nil
}

// GetAllClasses retrieves all classes, ordered by ID
func (s *RedisService) GetAllClasses() ([]models.Clazz, error) {
	classIDs, err := s.Client.SMembers(s.Ctx, classesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Clazz{}, nil // No classes found
		}
		log.Printf("Error getting all class IDs: %v", err)
		return nil, fmt.Errorf("failed to get class IDs from Redis: %w", err)
	}
	sort.Strings(classIDs)

	classes := make([]models.Clazz, 0, len(classIDs))
	for _, id := range classIDs {
		clazz, err := s.GetClassByID(id)
		if err != nil {
			// Log the error but continue trying to fetch others
			log.Printf("Error fetching details for class %s: %v", id, err)
			continue
		}
		if clazz != nil {
			classes = append(classes, *clazz)
		}
	}
	return classes, nil
}

// ClassExists checks if a class ID exists in the classes set
func (s *RedisService) ClassExists(classID string) (bool, error) {
	exists, err := s.Client.SIsMember(s.Ctx, classesKey, classID).Result()
	if err != nil {
		log.Printf("Error checking existence for class %s: %v", classID, err)
		return false, fmt.Errorf("failed to check class existence: %w", err)
	}
	return exists, nil
}

// ensureClass creates the class for a group label the first time a student uses it.
func (s *RedisService) ensureClass(classID string) error {
	exists, err := s.ClassExists(classID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	log.Printf("Student group %s has no class yet. Creating it.", classID)
	if err := s.AddClass(models.Clazz{ID: classID, Name: "Class " + classID}); err != nil {
		return fmt.Errorf("class %s does not exist and auto-creation failed: %w", classID, err)
	}
	return nil
}

// --- Student Operations ---

// SaveStudent stores the full student record, replacing any previous one.
func (s *RedisService) SaveStudent(student models.Student) error {
	if student.ID == "" || student.Name == "" {
		return fmt.Errorf("%w: student ID and Name cannot be empty", models.ErrInvalidInput)
	}
	if student.GroupLabel != "" {
		if err := s.ensureClass(student.GroupLabel); err != nil {
			return err
		}
	}

	studentKey := getStudentInfoKey(student.ID)
	previousGroup, err := s.Client.HGet(s.Ctx, studentKey, "groupLabel").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error reading previous group of student %s: %v", student.ID, err)
		return fmt.Errorf("failed to read student from Redis: %w", err)
	}

	fields := map[string]interface{}{
		"id":         student.ID,
		"name":       student.Name,
		"groupLabel": student.GroupLabel,
	}
	if student.Embedding != nil {
		raw, err := json.Marshal(student.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding of student %s: %w", student.ID, err)
		}
		fields["embedding"] = string(raw)
	}
	if student.Portrait != nil {
		fields["portrait"] = *student.Portrait
	}

	pipe := s.Client.TxPipeline()
	pipe.SAdd(s.Ctx, studentsKey, student.ID)
	if previousGroup != "" && previousGroup != student.GroupLabel {
		pipe.SRem(s.Ctx, getClassStudentsKey(previousGroup), student.ID)
	}
	if student.GroupLabel != "" {
		pipe.SAdd(s.Ctx, getClassStudentsKey(student.GroupLabel), student.ID)
	}
	// Put semantics: drop fields the new record no longer has.
	pipe.Del(s.Ctx, studentKey)
	pipe.HSet(s.Ctx, studentKey, fields)

	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error saving student %s: %v", student.ID, err)
		return fmt.Errorf("failed to save student to Redis: %w", err)
	}
	return nil
}

// DeleteStudent removes the student record and its set memberships.
func (s *RedisService) DeleteStudent(student models.Student) error {
	pipe := s.Client.TxPipeline()
	pipe.SRem(s.Ctx, studentsKey, student.ID)
	if student.GroupLabel != "" {
		pipe.SRem(s.Ctx, getClassStudentsKey(student.GroupLabel), student.ID)
	}
	pipe.Del(s.Ctx, getStudentInfoKey(student.ID))

	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error deleting student %s: %v", student.ID, err)
		return fmt.Errorf("failed to delete student from Redis: %w", err)
	}
	return nil
}

func decodeStudent(data map[string]string) (models.Student, error) {
	student := models.Student{
		ID:         data["id"],
		Name:       data["name"],
		GroupLabel: data["groupLabel"],
	}
	if raw, ok := data["embedding"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &student.Embedding); err != nil {
			return student, fmt.Errorf("failed to decode embedding of student %s: %w", student.ID, err)
		}
	}
	if p, ok := data["portrait"]; ok {
		student.Portrait = &p
	}
	return student, nil
}

// GetStudentByID retrieves a student by their ID
func (s *RedisService) GetStudentByID(studentID string) (*models.Student, error) {
	studentKey := getStudentInfoKey(studentID)
	data, err := s.Client.HGetAll(s.Ctx, studentKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		log.Printf("Error getting student %s: %v", studentID, err)
		return nil, fmt.Errorf("failed to get student from Redis: %w", err)
	}
	if len(data) == 0 {
		return nil, nil // Not found
	}

	student, err := decodeStudent(data)
	if err != nil {
		log.Printf("Error decoding student %s: %v", studentID, err)
		return nil, err
	}
	return &student, nil
}

func (s *RedisService) getStudents(ids []string) []models.Student {
	sort.Strings(ids)
	students := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		student, err := s.GetStudentByID(id)
		if err != nil {
			log.Printf("Error fetching details for student %s: %v", id, err)
			continue // Skip this student if details can't be fetched
		}
		if student != nil {
			students = append(students, *student)
		}
	}
	return students
}

// GetStudentsByClassID retrieves all students for a given class ID
func (s *RedisService) GetStudentsByClassID(classID string) ([]models.Student, error) {
	studentIDs, err := s.Client.SMembers(s.Ctx, getClassStudentsKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Student{}, nil // No students in this class
		}
		log.Printf("Error getting student IDs for class %s: %v", classID, err)
		return nil, fmt.Errorf("failed to get student IDs from Redis for class %s: %w", classID, err)
	}
	return s.getStudents(studentIDs), nil
}

// LoadStudents returns every stored student, ordered by ID.
func (s *RedisService) LoadStudents() ([]models.Student, error) {
	studentIDs, err := s.Client.SMembers(s.Ctx, studentsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting all student IDs: %v", err)
		return nil, fmt.Errorf("failed to get student IDs from Redis: %w", err)
	}
	return s.getStudents(studentIDs), nil
}

// SyncClassMembers makes the class member sets agree with the group labels of
// students. Members whose record names another group are removed; students
// missing from their class set are added. It returns the number of repairs.
func (s *RedisService) SyncClassMembers(students []models.Student) (int, error) {
	expected := make(map[string]map[string]struct{})
	for _, st := range students {
		if st.GroupLabel == "" {
			continue
		}
		if expected[st.GroupLabel] == nil {
			expected[st.GroupLabel] = make(map[string]struct{})
		}
		expected[st.GroupLabel][st.ID] = struct{}{}
	}

	classes, err := s.GetAllClasses()
	if err != nil {
		return 0, err
	}
	classIDs := make(map[string]struct{}, len(classes)+len(expected))
	for _, c := range classes {
		classIDs[c.ID] = struct{}{}
	}
	for id := range expected {
		classIDs[id] = struct{}{}
	}

	repaired := 0
	for classID := range classIDs {
		members, err := s.GetStudentsByClassID(classID)
		if err != nil {
			return repaired, err
		}
		present := make(map[string]struct{}, len(members))
		for _, m := range members {
			if m.GroupLabel != classID {
				log.Printf("Student %s is listed in class %s but belongs to %q. Removing.", m.ID, classID, m.GroupLabel)
				if err := s.Client.SRem(s.Ctx, getClassStudentsKey(classID), m.ID).Err(); err != nil {
					return repaired, fmt.Errorf("failed to repair class %s: %w", classID, err)
				}
				repaired++
				continue
			}
			present[m.ID] = struct{}{}
		}
		for id := range expected[classID] {
			if _, ok := present[id]; ok {
				continue
			}
			log.Printf("Student %s is missing from class %s. Adding.", id, classID)
			if err := s.ensureClass(classID); err != nil {
				return repaired, err
			}
			if err := s.Client.SAdd(s.Ctx, getClassStudentsKey(classID), id).Err(); err != nil {
				return repaired, fmt.Errorf("failed to repair class %s: %w", classID, err)
			}
			repaired++
		}
	}
	return repaired, nil
}

// GetRandomStudent selects a random student ID from a class
func (s *RedisService) GetRandomStudent(classID string) (string, error) {
	// Use SRANDMEMBER to get one random member ID
	randomStudentID, err := s.Client.SRandMember(s.Ctx, getClassStudentsKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // Class exists but has no students, or key doesn't exist
		}
		log.Printf("Error getting random student ID for class %s: %v", classID, err)
		return "", fmt.Errorf("failed to get random student ID from Redis for class %s: %w", classID, err)
	}
	return randomStudentID, nil
}

// --- Attendance Operations ---

// SaveLog stores one attendance log under its (date, student) key.
func (s *RedisService) SaveLog(entry models.AttendanceLog) error {
	raw, err := json.Marshal(storedLog{Time: entry.Time, Status: entry.Status})
	if err != nil {
		return fmt.Errorf("failed to encode attendance log: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.SAdd(s.Ctx, attendanceDatesKey, entry.Date)
	pipe.HSet(s.Ctx, getAttendanceKey(entry.Date), entry.StudentID, string(raw))

	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error saving attendance log %s/%s: %v", entry.StudentID, entry.Date, err)
		return fmt.Errorf("failed to save attendance log to Redis: %w", err)
	}
	return nil
}

// DeleteLogs removes attendance logs and forgets dates left without any log.
func (s *RedisService) DeleteLogs(keys []models.LogKey) error {
	if len(keys) == 0 {
		return nil
	}

	dates := make(map[string]struct{})
	pipe := s.Client.TxPipeline()
	for _, k := range keys {
		pipe.HDel(s.Ctx, getAttendanceKey(k.Date), k.StudentID)
		dates[k.Date] = struct{}{}
	}
	if _, err := pipe.Exec(s.Ctx); err != nil {
		log.Printf("Error deleting %d attendance logs: %v", len(keys), err)
		return fmt.Errorf("failed to delete attendance logs from Redis: %w", err)
	}

	for date := range dates {
		n, err := s.Client.HLen(s.Ctx, getAttendanceKey(date)).Result()
		if err != nil {
			log.Printf("Error counting attendance logs for %s: %v", date, err)
			continue
		}
		if n == 0 {
			if err := s.Client.SRem(s.Ctx, attendanceDatesKey, date).Err(); err != nil {
				log.Printf("Error removing date %s from index: %v", date, err)
			}
		}
	}
	return nil
}

// LoadLogs returns every stored attendance log ordered by date, time and student.
func (s *RedisService) LoadLogs() ([]models.AttendanceLog, error) {
	dates, err := s.Client.SMembers(s.Ctx, attendanceDatesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Error getting attendance dates: %v", err)
		return nil, fmt.Errorf("failed to get attendance dates from Redis: %w", err)
	}

	logs := []models.AttendanceLog{}
	for _, date := range dates {
		data, err := s.Client.HGetAll(s.Ctx, getAttendanceKey(date)).Result()
		if err != nil {
			log.Printf("Error getting attendance logs for %s: %v", date, err)
			return nil, fmt.Errorf("failed to get attendance logs for %s: %w", date, err)
		}
		for studentID, raw := range data {
			var sl storedLog
			if err := json.Unmarshal([]byte(raw), &sl); err != nil {
				log.Printf("Skipping undecodable attendance log %s/%s: %v", studentID, date, err)
				continue
			}
			entry := models.AttendanceLog{StudentID: studentID, Date: date, Time: sl.Time, Status: sl.Status}
			entry.Status = entry.EffectiveStatus()
			logs = append(logs, entry)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		a, b := logs[i], logs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.StudentID < b.StudentID
	})
	return logs, nil
}

// IsEmpty reports whether neither classes nor students are stored.
func (s *RedisService) IsEmpty() (bool, error) {
	for _, key := range []string{classesKey, studentsKey} {
		count, err := s.Client.SCard(s.Ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("failed to check %s: %w", key, err)
		}
		if count > 0 {
			return false, nil
		}
	}
	return true, nil
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Ping Redis to check connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.Addr, err)
	}

	log.Printf("Successfully connected to Redis %s DB %d", cfg.Addr, cfg.DB)
	return rdb, nil
}
