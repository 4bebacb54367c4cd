// Package vector implements a tagged dense/sparse feature vector with the
// algebra parlearn needs: dot products, axpy, scaling, norms, and ordered
// iteration. Representations are tagged, not inherited — there is no
// shared base type, just two concrete structs satisfying one interface.
package vector

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Vector is a feature vector in either dense or sparse representation.
type Vector interface {
	// HighestNonzeroDim returns len() for dense vectors and lastIndex+1
	// (0 if empty) for sparse vectors.
	HighestNonzeroDim() int

	// NNZ returns the number of stored entries.
	NNZ() int

	// Dot computes the inner product with another vector.
	Dot(other Vector) float64

	// AddScaled computes v += alpha*other in place (axpy).
	AddScaled(alpha float64, other Vector)

	// Scale computes v *= alpha in place.
	Scale(alpha float64)

	// Norm returns the Euclidean norm.
	Norm() float64

	// Set stores value at index i, inserting or growing as needed.
	// Panics if i is negative.
	Set(i int, value float64)

	// Iterate calls f(index, value) for every stored entry in ascending
	// index order. Iteration stops early if f returns false.
	Iterate(f func(index int, value float64) bool)

	// Clone returns an independent copy.
	Clone() Vector
}

// Dense is a vector stored as a contiguous slice indexed 0..len.
type Dense struct {
	Data []float64
}

// NewDense returns a dense vector of dimension d, all zeros.
func NewDense(d int) *Dense {
	return &Dense{Data: make([]float64, d)}
}

// NewDenseFrom wraps an existing slice without copying.
func NewDenseFrom(data []float64) *Dense {
	return &Dense{Data: data}
}

func (d *Dense) HighestNonzeroDim() int { return len(d.Data) }

func (d *Dense) NNZ() int { return len(d.Data) }

func (d *Dense) Dot(other Vector) float64 {
	switch o := other.(type) {
	case *Dense:
		if len(d.Data) != len(o.Data) {
			panic(fmt.Sprintf("vector: dense dot length mismatch: %d != %d", len(d.Data), len(o.Data)))
		}
		return floats.Dot(d.Data, o.Data)
	case *Sparse:
		return o.dotDense(d)
	default:
		panic(fmt.Sprintf("vector: unknown representation %T", other))
	}
}

func (d *Dense) AddScaled(alpha float64, other Vector) {
	switch o := other.(type) {
	case *Dense:
		if len(d.Data) != len(o.Data) {
			panic(fmt.Sprintf("vector: dense axpy length mismatch: %d != %d", len(d.Data), len(o.Data)))
		}
		floats.AddScaled(d.Data, alpha, o.Data)
	case *Sparse:
		o.Iterate(func(i int, v float64) bool {
			if i >= len(d.Data) {
				panic(fmt.Sprintf("vector: dense axpy index %d out of range (len %d)", i, len(d.Data)))
			}
			d.Data[i] += alpha * v
			return true
		})
	default:
		panic(fmt.Sprintf("vector: unknown representation %T", other))
	}
}

func (d *Dense) Scale(alpha float64) {
	floats.Scale(alpha, d.Data)
}

func (d *Dense) Norm() float64 {
	return floats.Norm(d.Data, 2)
}

func (d *Dense) Set(i int, value float64) {
	if i < 0 {
		panic(fmt.Sprintf("vector: negative dense index %d", i))
	}
	if i >= len(d.Data) {
		grown := make([]float64, i+1)
		copy(grown, d.Data)
		d.Data = grown
	}
	d.Data[i] = value
}

func (d *Dense) Iterate(f func(index int, value float64) bool) {
	for i, v := range d.Data {
		if !f(i, v) {
			return
		}
	}
}

func (d *Dense) Clone() Vector {
	cp := make([]float64, len(d.Data))
	copy(cp, d.Data)
	return &Dense{Data: cp}
}

// Sparse is a vector stored as ascending (index, value) pairs with zeros
// elided.
type Sparse struct {
	Index []int
	Value []float64
}

// NewSparse returns an empty sparse vector.
func NewSparse() *Sparse {
	return &Sparse{}
}

func (s *Sparse) HighestNonzeroDim() int {
	if len(s.Index) == 0 {
		return 0
	}
	return s.Index[len(s.Index)-1] + 1
}

func (s *Sparse) NNZ() int { return len(s.Index) }

func (s *Sparse) Dot(other Vector) float64 {
	switch o := other.(type) {
	case *Dense:
		return s.dotDense(o)
	case *Sparse:
		return s.dotSparse(o)
	default:
		panic(fmt.Sprintf("vector: unknown representation %T", other))
	}
}

// dotDense computes s·d by iterating the sparse side and indexing into the
// dense side.
func (s *Sparse) dotDense(d *Dense) float64 {
	var sum float64
	for k, i := range s.Index {
		if i >= len(d.Data) {
			continue
		}
		sum += s.Value[k] * d.Data[i]
	}
	return sum
}

// dotSparse computes s·o by iterating o and binary-searching s, as spec'd
// (iterate b, look up a by sorted binary search).
func (s *Sparse) dotSparse(o *Sparse) float64 {
	var sum float64
	for k, i := range o.Index {
		if v, ok := s.at(i); ok {
			sum += v * o.Value[k]
		}
	}
	return sum
}

// at performs the binary-search lookup of index i in s.
func (s *Sparse) at(i int) (float64, bool) {
	pos := sort.SearchInts(s.Index, i)
	if pos < len(s.Index) && s.Index[pos] == i {
		return s.Value[pos], true
	}
	return 0, false
}

func (s *Sparse) AddScaled(alpha float64, other Vector) {
	other.Iterate(func(i int, v float64) bool {
		if v == 0 {
			return true
		}
		cur, _ := s.at(i)
		s.Set(i, cur+alpha*v)
		return true
	})
}

func (s *Sparse) Scale(alpha float64) {
	for k := range s.Value {
		s.Value[k] *= alpha
	}
}

func (s *Sparse) Norm() float64 {
	return floats.Norm(s.Value, 2)
}

// Set inserts or updates index i. Fast path: ascending appends (the common
// case when building a row left-to-right). Slow path: binary search plus a
// shift to keep indices strictly ascending. A stored zero is elided by
// removing the entry.
func (s *Sparse) Set(i int, value float64) {
	if i < 0 {
		panic(fmt.Sprintf("vector: negative sparse index %d", i))
	}
	if len(s.Index) == 0 || i > s.Index[len(s.Index)-1] {
		if value == 0 {
			return
		}
		s.Index = append(s.Index, i)
		s.Value = append(s.Value, value)
		return
	}
	pos := sort.SearchInts(s.Index, i)
	if pos < len(s.Index) && s.Index[pos] == i {
		if value == 0 {
			s.Index = append(s.Index[:pos], s.Index[pos+1:]...)
			s.Value = append(s.Value[:pos], s.Value[pos+1:]...)
			return
		}
		s.Value[pos] = value
		return
	}
	if value == 0 {
		return
	}
	s.Index = append(s.Index, 0)
	copy(s.Index[pos+1:], s.Index[pos:])
	s.Index[pos] = i
	s.Value = append(s.Value, 0)
	copy(s.Value[pos+1:], s.Value[pos:])
	s.Value[pos] = value
}

func (s *Sparse) Iterate(f func(index int, value float64) bool) {
	for k, i := range s.Index {
		if !f(i, s.Value[k]) {
			return
		}
	}
}

func (s *Sparse) Clone() Vector {
	idx := make([]int, len(s.Index))
	copy(idx, s.Index)
	val := make([]float64, len(s.Value))
	copy(val, s.Value)
	return &Sparse{Index: idx, Value: val}
}
