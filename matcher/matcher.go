// Package matcher classifies a probe face embedding against the enrolled roster.
package matcher

import (
	"fmt"
	"math"

	"attendance-server-go/models"
)

// Threshold is the Euclidean distance at or above which a probe is not accepted
// as the nearest identity. The extraction model is calibrated so that the same
// face stays below it.
const Threshold = 0.5

// Enrolled is one entry of the embedding snapshot
type Enrolled struct {
	ID        string
	Embedding []float32
}

// Kind tags a match result
type Kind int

const (
	Unknown Kind = iota
	Matched
)

func (k Kind) String() string {
	if k == Matched {
		return "matched"
	}
	return "unknown"
}

// Result is the outcome of Match. ID and Distance are only meaningful when Kind is Matched.
type Result struct {
	Kind     Kind
	ID       string
	Distance float64
}

// Snapshot projects the roster onto the students that have an embedding, keeping roster order.
func Snapshot(students []models.Student) []Enrolled {
	enrolled := make([]Enrolled, 0, len(students))
	for _, s := range students {
		if !s.Enrolled() {
			continue
		}
		enrolled = append(enrolled, Enrolled{ID: s.ID, Embedding: s.Embedding})
	}
	return enrolled
}

// ValidateEmbedding checks dimensionality and that every component is finite.
func ValidateEmbedding(v []float32) error {
	if len(v) != models.EmbeddingDim {
		return fmt.Errorf("%w: embedding has %d components, want %d", models.ErrInvalidInput, len(v), models.EmbeddingDim)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: embedding component %d is not finite", models.ErrInvalidInput, i)
		}
	}
	return nil
}

// EuclideanDistance computes the L2 distance between two vectors of equal length.
// Returns +Inf when the lengths differ.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match returns the nearest enrolled identity when it is closer than Threshold.
// Equal distances keep the earlier candidate.
func Match(probe []float32, enrolled []Enrolled) (Result, error) {
	if err := ValidateEmbedding(probe); err != nil {
		return Result{}, err
	}

	best := -1
	bestDist := math.Inf(1)
	for i, e := range enrolled {
		d := EuclideanDistance(probe, e.Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist >= Threshold {
		return Result{Kind: Unknown}, nil
	}
	return Result{Kind: Matched, ID: enrolled[best].ID, Distance: bestDist}, nil
}
