package roster

import (
	"errors"
	"testing"

	"attendance-server-go/models"
)

type memStore struct {
	saved   map[string]models.Student
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{saved: map[string]models.Student{}}
}

func (m *memStore) SaveStudent(s models.Student) error {
	m.saved[s.ID] = s
	return nil
}

func (m *memStore) DeleteStudent(s models.Student) error {
	delete(m.saved, s.ID)
	m.deleted = append(m.deleted, s.ID)
	return nil
}

func embedding(v float32) []float32 {
	e := make([]float32, models.EmbeddingDim)
	e[0] = v
	return e
}

func TestPut_Overwrites(t *testing.T) {
	store := newMemStore()
	r := New(store)

	if err := r.Put(models.Student{ID: "001", Name: "Somchai", GroupLabel: "10A"}); err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}
	if err := r.Put(models.Student{ID: "001", Name: "Somchai V.", GroupLabel: "10B"}); err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	got, _ := r.Get("001")
	if got.Name != "Somchai V." || got.GroupLabel != "10B" {
		t.Errorf("Get() = %+v, want overwritten fields", got)
	}
	if store.saved["001"].Name != "Somchai V." {
		t.Errorf("store has %+v, want latest write", store.saved["001"])
	}
}

func TestPut_Validation(t *testing.T) {
	tests := []struct {
		name    string
		student models.Student
	}{
		{"blank id", models.Student{ID: "  ", Name: "x"}},
		{"blank name", models.Student{ID: "1", Name: ""}},
		{"bad embedding", models.Student{ID: "1", Name: "x", Embedding: []float32{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil)
			if err := r.Put(tt.student); !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("Put() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestPut_EmptyEmbeddingMeansNotEnrolled(t *testing.T) {
	store := newMemStore()
	r := New(store)
	if err := r.Put(models.Student{ID: " 001 ", Name: " Somchai ", Embedding: []float32{}}); err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}
	got, ok := r.Get("001")
	if !ok || got.Name != "Somchai" || got.Embedding != nil {
		t.Errorf("Get(001) = %+v, %v; want trimmed record without embedding", got, ok)
	}
	if store.saved["001"].Embedding != nil {
		t.Errorf("stored embedding = %v, want nil", store.saved["001"].Embedding)
	}
	if r.EnrolledCount() != 0 {
		t.Errorf("EnrolledCount() = %d, want 0", r.EnrolledCount())
	}
}

func TestEnroll(t *testing.T) {
	r := New(nil)
	if err := r.Put(models.Student{ID: "001", Name: "Mali"}); err != nil {
		t.Fatal(err)
	}

	photo := "data:image/jpeg;base64,AAAA"
	got, err := r.Enroll("001", embedding(1), &photo)
	if err != nil {
		t.Fatalf("Enroll() unexpected error: %v", err)
	}
	if !got.Enrolled() || got.Portrait == nil || *got.Portrait != photo {
		t.Errorf("Enroll() = %+v, want embedding and portrait set", got)
	}
	if r.EnrolledCount() != 1 {
		t.Errorf("EnrolledCount() = %d, want 1", r.EnrolledCount())
	}
	if snap := r.Snapshot(); len(snap) != 1 || snap[0].ID != "001" {
		t.Errorf("Snapshot() = %+v, want [001]", snap)
	}

	if _, err := r.Enroll("404", embedding(1), nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Enroll(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Enroll("001", []float32{1}, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Enroll(short) error = %v, want ErrInvalidInput", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New(nil)
	if err := r.Put(models.Student{ID: "001", Name: "Mali", Embedding: embedding(1)}); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get("001")
	got.Embedding[0] = 99

	again, _ := r.Get("001")
	if again.Embedding[0] != 1 {
		t.Error("mutating a returned student changed roster state")
	}
}

func TestDelete(t *testing.T) {
	store := newMemStore()
	r := New(store)
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Put(models.Student{ID: id, Name: id}); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := r.Delete("b")
	if err != nil || !ok {
		t.Fatalf("Delete(b) = %v, %v; want true, nil", ok, err)
	}
	if ok, _ := r.Delete("b"); ok {
		t.Error("Delete(b) twice reported existing")
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("List() = %+v, want [a c]", list)
	}
	if len(store.deleted) != 1 {
		t.Errorf("store deletions = %v, want [b]", store.deleted)
	}
}

func TestByGroup(t *testing.T) {
	r := New(nil)
	_ = r.Put(models.Student{ID: "1", Name: "x", GroupLabel: "10A"})
	_ = r.Put(models.Student{ID: "2", Name: "y", GroupLabel: "10B"})
	_ = r.Put(models.Student{ID: "3", Name: "z", GroupLabel: "10A"})

	if got := r.ByGroup("10A"); len(got) != 2 {
		t.Errorf("ByGroup(10A) returned %d students, want 2", len(got))
	}
	if got := r.ByGroup("none"); got == nil || len(got) != 0 {
		t.Errorf("ByGroup(none) = %v, want empty slice", got)
	}
}

func TestLoad_DropsMalformedEmbedding(t *testing.T) {
	r := New(nil)
	r.Load([]models.Student{
		{ID: "1", Name: "x", Embedding: []float32{1, 2, 3}},
		{ID: "", Name: "nobody"},
		{ID: "2", Name: "y", Embedding: embedding(0.5)},
	})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if s, _ := r.Get("1"); s.Enrolled() {
		t.Error("student 1 kept a malformed embedding")
	}
	if r.EnrolledCount() != 1 {
		t.Errorf("EnrolledCount() = %d, want 1", r.EnrolledCount())
	}
}
