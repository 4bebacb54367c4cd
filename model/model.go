// Package model implements the linear and kernelized-linear classifier
// model: empirical risk, its gradient, and sign predictions, with an
// optional lazily-constructed worker pool for parallel risk evaluation.
package model

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/kernel"
	"github.com/stephentu/parlearn/loss"
	"github.com/stephentu/parlearn/vector"
)

// Linear is a regularized linear classifier: F(w) = mean loss + (lambda/2)||w||^2.
type Linear struct {
	Lambda   float64
	W        []float64
	LossFn   loss.Function
	NThreads int

	poolOnce sync.Once
	inQueue  []chan riskMessage
	outQueue []chan float64
}

type riskMessage struct {
	w          []float64
	d          *dataset.Dataset
	start, end int
}

// New constructs a Linear model of dimension dim with the given
// regularizer and loss function. nthreads controls ParallelEmpiricalRisk
// concurrency (at least 1).
func New(dim int, lambda float64, lossFn loss.Function, nthreads int) (*Linear, error) {
	if lambda <= 0 {
		return nil, fmt.Errorf("model: lambda must be positive, got %v", lambda)
	}
	if nthreads < 1 {
		return nil, fmt.Errorf("model: nthreads must be >= 1, got %d", nthreads)
	}
	return &Linear{
		Lambda:   lambda,
		W:        make([]float64, dim),
		LossFn:   lossFn,
		NThreads: nthreads,
	}, nil
}

// Transform is the identity transform for a plain linear model.
func (m *Linear) Transform(d *dataset.Dataset) *dataset.Dataset { return d }

// GetLambda returns the regularization strength.
func (m *Linear) GetLambda() float64 { return m.Lambda }

// GetLossFn returns the model's loss function.
func (m *Linear) GetLossFn() loss.Function { return m.LossFn }

// Weights returns the current weight vector.
func (m *Linear) Weights() []float64 { return m.W }

// SetWeights replaces the weight vector, e.g. from a training snapshot.
func (m *Linear) SetWeights(w []float64) { m.W = w }

// Dim returns the weight vector's dimension.
func (m *Linear) Dim() int { return len(m.W) }

// EmpiricalRisk evaluates F(w) over d, serially.
func (m *Linear) EmpiricalRisk(d *dataset.Dataset) float64 {
	return m.empiricalRiskRange(m.W, d, 0, d.Len())
}

func (m *Linear) empiricalRiskRange(w []float64, d *dataset.Dataset, start, end int) float64 {
	n := end - start
	if n <= 0 {
		return m.Lambda / 2.0 * floats.Dot(w, w)
	}
	sumLoss := 0.0
	wv := vector.NewDenseFrom(w)
	var scratch vector.Vector
	for i := start; i < end; i++ {
		x, y := d.At(i, &scratch)
		yhat := wv.Dot(x)
		sumLoss += m.LossFn.Loss(y, yhat)
	}
	return sumLoss/float64(n) + m.Lambda/2.0*floats.Dot(w, w)
}

// GradEmpiricalRisk computes the gradient of F(w) over d, serially.
func (m *Linear) GradEmpiricalRisk(d *dataset.Dataset) []float64 {
	return m.gradEmpiricalRiskRange(m.W, d, 0, d.Len())
}

func (m *Linear) gradEmpiricalRiskRange(w []float64, d *dataset.Dataset, start, end int) []float64 {
	n := end - start
	grad := make([]float64, len(w))
	if n <= 0 {
		floats.AddScaled(grad, m.Lambda, w)
		return grad
	}
	wv := vector.NewDenseFrom(w)
	var scratch vector.Vector
	for i := start; i < end; i++ {
		x, y := d.At(i, &scratch)
		yhat := wv.Dot(x)
		dl := m.LossFn.DLoss(y, yhat)
		x.Iterate(func(j int, v float64) bool {
			grad[j] += v * dl
			return true
		})
	}
	floats.Scale(1.0/float64(n), grad)
	floats.AddScaled(grad, m.Lambda, w)
	return grad
}

// NormGradEmpiricalRisk is the Euclidean norm of GradEmpiricalRisk(d).
func (m *Linear) NormGradEmpiricalRisk(d *dataset.Dataset) float64 {
	return floats.Norm(m.GradEmpiricalRisk(d), 2)
}

// Predict returns sign(<w,x_i>) for every row of d.
func (m *Linear) Predict(d *dataset.Dataset) []float64 {
	preds := make([]float64, d.Len())
	wv := vector.NewDenseFrom(m.W)
	var scratch vector.Vector
	for i := 0; i < d.Len(); i++ {
		x, _ := d.At(i, &scratch)
		if wv.Dot(x) >= 0 {
			preds[i] = 1
		} else {
			preds[i] = -1
		}
	}
	return preds
}

// ensurePool lazily builds the bounded-capacity-1 worker channels used by
// ParallelEmpiricalRisk, one pair of (in,out) channels per worker thread,
// matching model.hh's tbb::concurrent_bounded_queue protocol.
func (m *Linear) ensurePool(ctx context.Context) {
	m.poolOnce.Do(func() {
		m.inQueue = make([]chan riskMessage, m.NThreads)
		m.outQueue = make([]chan float64, m.NThreads)
		for i := 0; i < m.NThreads; i++ {
			in := make(chan riskMessage, 1)
			out := make(chan float64, 1)
			m.inQueue[i] = in
			m.outQueue[i] = out
			go func(in chan riskMessage, out chan float64) {
				for msg := range in {
					out <- m.empiricalRiskPartialSum(msg.w, msg.d, msg.start, msg.end)
				}
			}(in, out)
		}
	})
}

// empiricalRiskPartialSum computes only the sum-of-losses term (no
// regularizer, no 1/n normalization) so partial sums can be added across
// workers before applying both.
func (m *Linear) empiricalRiskPartialSum(w []float64, d *dataset.Dataset, start, end int) float64 {
	if end <= start {
		return 0
	}
	wv := vector.NewDenseFrom(w)
	var scratch vector.Vector
	sum := 0.0
	for i := start; i < end; i++ {
		x, y := d.At(i, &scratch)
		sum += m.LossFn.Loss(y, wv.Dot(x))
	}
	return sum
}

// ParallelEmpiricalRisk evaluates F(w) over d using the model's own
// fixed, lazily-constructed thread pool, partitioning [0,n) into
// NThreads ranges.
func (m *Linear) ParallelEmpiricalRisk(ctx context.Context, d *dataset.Dataset) float64 {
	n := d.Len()
	elemsPerThread := n / m.NThreads
	if elemsPerThread == 0 {
		return m.EmpiricalRisk(d)
	}
	m.ensurePool(ctx)
	for i := 0; i < m.NThreads; i++ {
		start := i * elemsPerThread
		end := (i + 1) * elemsPerThread
		if i+1 == m.NThreads {
			end = n
		}
		m.inQueue[i] <- riskMessage{w: m.W, d: d, start: start, end: end}
	}
	accum := 0.0
	for i := 0; i < m.NThreads; i++ {
		accum += <-m.outQueue[i]
	}
	accum /= float64(n)
	accum += m.Lambda / 2.0 * floats.Dot(m.W, m.W)
	return accum
}

// Shutdown tears down the evaluation pool, if one was ever constructed.
func (m *Linear) Shutdown() {
	for _, in := range m.inQueue {
		close(in)
	}
	m.inQueue = nil
	m.outQueue = nil
}

// Kernelized wraps a Linear model with a random-Fourier-feature lift: the
// inner Linear operates in the lifted feature space of dimension
// Kernel.PostDim(), while Transform/Predict accept data in the original
// input space.
type Kernelized struct {
	*Linear
	Kernel *kernel.RandomFourier
}

// NewKernelized constructs a kernelized-linear model over the given RFF
// transform.
func NewKernelized(k *kernel.RandomFourier, lambda float64, lossFn loss.Function, nthreads int) (*Kernelized, error) {
	lin, err := New(k.PostDim(), lambda, lossFn, nthreads)
	if err != nil {
		return nil, err
	}
	return &Kernelized{Linear: lin, Kernel: k}, nil
}

// Transform lifts d into the RFF feature space.
func (m *Kernelized) Transform(d *dataset.Dataset) *dataset.Dataset {
	return dataset.New(&dataset.TransformStorage{Underlying: d.Storage(), T: m.Kernel})
}

// Predict lifts d into the RFF feature space and returns sign(<w,phi(x_i)>)
// for every row.
func (m *Kernelized) Predict(d *dataset.Dataset) []float64 {
	return m.Linear.Predict(m.Transform(d))
}
