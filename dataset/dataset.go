// Package dataset implements the (x,y) storage abstraction SGD and batch
// GD train over: a materialized form owning rows and labels directly, and
// a transformed form that lazily applies a feature map. Lazy reads take
// an explicit per-caller scratch vector rather than thread-local storage
// — the "preferred" alternative spec.md §9 calls out.
package dataset

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/stephentu/parlearn/vector"
)

// Transform is a pure feature map T: V -> V, e.g. the random-Fourier-
// feature kernel lift.
type Transform interface {
	// Apply writes T(x) into *out, growing or repurposing it as needed.
	// It returns nothing; callers read the result through their own
	// pointer.
	Apply(x vector.Vector, out *vector.Vector)

	// PostDim returns the dimension of T's output.
	PostDim() int
}

// Storage is the underlying row/label source for a Dataset.
type Storage interface {
	X(i int) vector.Vector
	Y(i int) float64
	Len() int
	Dim() int
	// CanMaterialize reports whether this storage is already the
	// cheap, non-transforming materialized form.
	CanMaterialize() bool
}

// VectorStorage is the materialized storage: it owns rows and labels
// directly.
type VectorStorage struct {
	Rows   []vector.Vector
	Labels []float64
	dim    int
}

// NewVectorStorage validates row/label counts and labels, computes the
// shared dimension d = max_i HighestNonzeroDim(x_i), and pads every dense
// row narrower than d with implicit zeros so every row agrees on length —
// rows may arrive with differing widths (e.g. ASCII rows of ragged
// length), but every row-consuming operation elsewhere assumes a uniform
// dense width of d.
func NewVectorStorage(rows []vector.Vector, labels []float64) (*VectorStorage, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("dataset: row count %d != label count %d", len(rows), len(labels))
	}
	dim := 0
	for i, y := range labels {
		if y != -1 && y != 1 {
			return nil, fmt.Errorf("dataset: label[%d] = %v not in {-1,+1}", i, y)
		}
		if h := rows[i].HighestNonzeroDim(); h > dim {
			dim = h
		}
	}
	for i, x := range rows {
		if d, ok := x.(*vector.Dense); ok && len(d.Data) < dim {
			grown := make([]float64, dim)
			copy(grown, d.Data)
			rows[i] = vector.NewDenseFrom(grown)
		}
	}
	return &VectorStorage{Rows: rows, Labels: labels, dim: dim}, nil
}

func (s *VectorStorage) X(i int) vector.Vector  { return s.Rows[i] }
func (s *VectorStorage) Y(i int) float64        { return s.Labels[i] }
func (s *VectorStorage) Len() int               { return len(s.Rows) }
func (s *VectorStorage) Dim() int               { return s.dim }
func (s *VectorStorage) CanMaterialize() bool   { return true }

// TransformStorage lazily applies Transform to an underlying storage's
// rows. Its own X(i) allocates a fresh vector per call — callers in a hot
// loop should instead use Dataset.At with their own scratch vector.
type TransformStorage struct {
	Underlying Storage
	T          Transform
}

func (s *TransformStorage) X(i int) vector.Vector {
	var out vector.Vector
	s.T.Apply(s.Underlying.X(i), &out)
	return out
}
func (s *TransformStorage) Y(i int) float64      { return s.Underlying.Y(i) }
func (s *TransformStorage) Len() int             { return s.Underlying.Len() }
func (s *TransformStorage) Dim() int             { return s.T.PostDim() }
func (s *TransformStorage) CanMaterialize() bool { return false }

// Dataset wraps Storage with the explicit-scratch access pattern.
type Dataset struct {
	storage Storage
}

// New wraps storage in a Dataset.
func New(storage Storage) *Dataset {
	return &Dataset{storage: storage}
}

func (d *Dataset) Len() int { return d.storage.Len() }
func (d *Dataset) Dim() int { return d.storage.Dim() }

// At returns (x_i, y_i). For materialized storage scratch is ignored and
// the backing row is returned directly; for transformed storage, T is
// applied into *scratch and that pointer is returned. Each worker owns
// its own scratch vector and must not share it across goroutines while
// calling At concurrently.
func (d *Dataset) At(i int, scratch *vector.Vector) (vector.Vector, float64) {
	if ts, ok := d.storage.(*TransformStorage); ok {
		ts.T.Apply(ts.Underlying.X(i), scratch)
		return *scratch, ts.Underlying.Y(i)
	}
	return d.storage.X(i), d.storage.Y(i)
}

// Storage exposes the underlying storage, e.g. so Materialize can swap it.
func (d *Dataset) Storage() Storage { return d.storage }

// Materialize forces a lazily-transformed dataset into a concrete
// VectorStorage in place, partitioning [0,N) across runtime.NumCPU()
// goroutines with a sequential fallback when N is small. A no-op if the
// storage is already materialized.
func (d *Dataset) Materialize(ctx context.Context) error {
	if d.storage.CanMaterialize() {
		return nil
	}
	n := d.storage.Len()
	rows := make([]vector.Vector, n)
	labels := make([]float64, n)

	ncpu := runtime.NumCPU()
	if n < ncpu {
		var scratch vector.Vector
		for i := 0; i < n; i++ {
			x, y := d.At(i, &scratch)
			rows[i] = x.Clone()
			labels[i] = y
		}
	} else {
		chunk := (n + ncpu - 1) / ncpu
		var wg sync.WaitGroup
		for start := 0; start < n; start += chunk {
			end := start + chunk
			if end > n {
				end = n
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				var scratch vector.Vector
				for i := start; i < end; i++ {
					x, y := d.At(i, &scratch)
					rows[i] = x.Clone()
					labels[i] = y
				}
			}(start, end)
		}
		wg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	vs, err := NewVectorStorage(rows, labels)
	if err != nil {
		return err
	}
	d.storage = vs
	return nil
}

// Permutation is an owned permutation view over a dataset of length N.
type Permutation struct {
	Index []int
}

// NewPermutation builds a uniform random permutation of [0,n) via
// Fisher-Yates over rng.
func NewPermutation(n int, rng *rand.Rand) *Permutation {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return &Permutation{Index: idx}
}

// Len returns the permutation length.
func (p *Permutation) Len() int { return len(p.Index) }

// At returns the i-th permuted dataset position, i.e. the original index
// π[i].
func (p *Permutation) At(i int) int { return p.Index[i] }
