// Package kernel implements the random-Fourier-feature (RFF) lift used to
// approximate a shift-invariant kernel with an explicit finite-dimensional
// feature map, following Rahimi and Recht, "Random Features for
// Large-Scale Kernel Machines", NIPS 2007. Treated by spec.md as a pure
// feature map with unspecified internals; this is a concrete
// implementation so model.Kernelized has something real to exercise.
package kernel

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/stephentu/parlearn/vector"
)

// RandomFourier approximates a Gaussian kernel exp(-gamma*||x-x'||^2) via
// kdim random projections phi_i(x) = cos(<w_i,x> + b_i) * sqrt(2/kdim),
// with w_i ~ N(0, 2*gamma*I) and b_i ~ Uniform[0, 2*pi).
type RandomFourier struct {
	xdim int
	kdim int
	w    *mat.Dense    // kdim x xdim projection directions
	b    *mat.VecDense // kdim phase offsets
}

// New samples a new RandomFourier transform mapping xdim-dimensional
// inputs to kdim-dimensional features at bandwidth gamma > 0.
func New(xdim, kdim int, gamma float64, rng *rand.Rand) (*RandomFourier, error) {
	if xdim <= 0 {
		return nil, fmt.Errorf("kernel: xdim must be positive, got %d", xdim)
	}
	if kdim <= 0 {
		return nil, fmt.Errorf("kernel: kdim must be positive, got %d", kdim)
	}
	if gamma <= 0 {
		return nil, fmt.Errorf("kernel: gamma must be positive, got %v", gamma)
	}

	stddev := math.Sqrt(2.0 * gamma)
	wData := make([]float64, kdim*xdim)
	for i := range wData {
		wData[i] = rng.NormFloat64() * stddev
	}
	bData := make([]float64, kdim)
	for i := range bData {
		bData[i] = rng.Float64() * 2.0 * math.Pi
	}

	return &RandomFourier{
		xdim: xdim,
		kdim: kdim,
		w:    mat.NewDense(kdim, xdim, wData),
		b:    mat.NewVecDense(kdim, bData),
	}, nil
}

// PostDim returns kdim, the dimension of the lifted feature space.
func (k *RandomFourier) PostDim() int { return k.kdim }

// Apply writes phi(x) into *out as a dense vector of length kdim.
func (k *RandomFourier) Apply(x vector.Vector, out *vector.Vector) {
	dense, ok := (*out).(*vector.Dense)
	if !ok || len(dense.Data) != k.kdim {
		dense = vector.NewDense(k.kdim)
	}
	scale := math.Sqrt(2.0 / float64(k.kdim))
	for i := 0; i < k.kdim; i++ {
		row := vector.NewDenseFrom(mat.Row(nil, i, k.w))
		proj := row.Dot(x)
		dense.Data[i] = math.Cos(proj+k.b.AtVec(i)) * scale
	}
	*out = dense
}
