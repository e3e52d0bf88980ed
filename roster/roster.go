// Package roster owns the set of students known to the attendance server.
package roster

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"attendance-server-go/matcher"
	"attendance-server-go/models"
)

// Persister receives write-through updates after each roster mutation.
type Persister interface {
	SaveStudent(student models.Student) error
	DeleteStudent(student models.Student) error
}

// Roster is the in-memory student list
type Roster struct {
	mu       sync.RWMutex
	students map[string]*models.Student
	order    []string
	store    Persister
}

// New creates an empty roster. store may be nil.
func New(store Persister) *Roster {
	return &Roster{
		students: make(map[string]*models.Student),
		store:    store,
	}
}

func clone(s models.Student) models.Student {
	if s.Embedding != nil {
		s.Embedding = append([]float32(nil), s.Embedding...)
	}
	if s.Portrait != nil {
		p := *s.Portrait
		s.Portrait = &p
	}
	return s
}

func (r *Roster) putLocked(s models.Student) {
	if existing, ok := r.students[s.ID]; ok {
		*existing = s
		return
	}
	r.students[s.ID] = &s
	r.order = append(r.order, s.ID)
}

func (r *Roster) save(s models.Student) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveStudent(s); err != nil {
		log.Printf("Error persisting student %s: %v", s.ID, err)
		return fmt.Errorf("failed to persist student: %w", err)
	}
	return nil
}

// ValidateStudent returns the student as Put would store it: ID and name
// trimmed, an empty embedding treated as not enrolled.
func ValidateStudent(student models.Student) (models.Student, error) {
	student.ID = strings.TrimSpace(student.ID)
	student.Name = strings.TrimSpace(student.Name)
	if student.ID == "" || student.Name == "" {
		return student, fmt.Errorf("%w: student ID and name cannot be empty", models.ErrInvalidInput)
	}
	if len(student.Embedding) == 0 {
		student.Embedding = nil
	} else if err := matcher.ValidateEmbedding(student.Embedding); err != nil {
		return student, fmt.Errorf("student %s: %w", student.ID, err)
	}
	return student, nil
}

// Put inserts the student or fully replaces the one with the same ID.
func (r *Roster) Put(student models.Student) error {
	student, err := ValidateStudent(student)
	if err != nil {
		return err
	}
	student = clone(student)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.putLocked(student)
	return r.save(student)
}

// Enroll attaches a face embedding and portrait to an existing student.
func (r *Roster) Enroll(id string, embedding []float32, portrait *string) (models.Student, error) {
	if err := matcher.ValidateEmbedding(embedding); err != nil {
		return models.Student{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.students[id]
	if !ok {
		return models.Student{}, fmt.Errorf("student %s: %w", id, models.ErrNotFound)
	}
	updated := *existing
	updated.Embedding = embedding
	updated.Portrait = portrait
	updated = clone(updated)
	*existing = updated
	return clone(updated), r.save(updated)
}

// Delete removes the student and reports whether it existed.
func (r *Roster) Delete(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.students[id]
	if !ok {
		return false, nil
	}
	removed := *existing
	delete(r.students, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.store != nil {
		if err := r.store.DeleteStudent(removed); err != nil {
			log.Printf("Error deleting student %s from store: %v", id, err)
			return true, fmt.Errorf("failed to delete student: %w", err)
		}
	}
	return true, nil
}

// Get returns a copy of the student.
func (r *Roster) Get(id string) (models.Student, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.students[id]
	if !ok {
		return models.Student{}, false
	}
	return clone(*s), true
}

// List returns the students in insertion order.
func (r *Roster) List() []models.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Student, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(*r.students[id]))
	}
	return out
}

// ByGroup returns the students whose GroupLabel equals group.
func (r *Roster) ByGroup(group string) []models.Student {
	out := []models.Student{}
	for _, s := range r.List() {
		if s.GroupLabel == group {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of students.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// EnrolledCount returns how many students have a face embedding.
func (r *Roster) EnrolledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.students {
		if s.Enrolled() {
			n++
		}
	}
	return n
}

// Snapshot returns the enrolled embeddings for matching.
func (r *Roster) Snapshot() []matcher.Enrolled {
	return matcher.Snapshot(r.List())
}

// Load replaces the roster with persisted students without writing back.
func (r *Roster) Load(students []models.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.students = make(map[string]*models.Student, len(students))
	r.order = nil
	for _, s := range students {
		if s.ID == "" {
			continue
		}
		if s.Embedding != nil && matcher.ValidateEmbedding(s.Embedding) != nil {
			log.Printf("Dropping malformed embedding of persisted student %s (%d components)", s.ID, len(s.Embedding))
			s.Embedding = nil
		}
		r.putLocked(clone(s))
	}
}
