// Package sgd implements the parallel Hogwild!-style SGD engine: a
// fan-out scheduler that partitions a per-epoch permutation across a
// fixed worker pool, running the sparse-aware regularized update rule
// with or without per-cell locking.
package sgd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/stephentu/parlearn/cvec"
	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/executor"
	"github.com/stephentu/parlearn/loss"
	"github.com/stephentu/parlearn/vector"
)

// LinearModel is the subset of model.Linear the engine needs: it reads
// and writes the weight vector and consults lambda and the loss.
type LinearModel interface {
	GetLambda() float64
	GetLossFn() loss.Function
	SetWeights(w []float64)
	Weights() []float64
	Dim() int
	Transform(d *dataset.Dataset) *dataset.Dataset
}

// HistoryEntry records the weight vector at an epoch barrier.
type HistoryEntry struct {
	Iteration   uint64
	ElapsedUsec uint64
	W           []float64
}

// Config controls the SGD engine's behavior.
type Config struct {
	NRounds  int
	NWorkers int
	Locking  bool
	TOffset  uint64
	C0       float64
	Verbose  bool
	RNG      *rand.Rand
}

// Option configures a Config.
type Option func(*Config)

// WithLocking selects the locked (true) or Hogwild! unlocked (false)
// update regime.
func WithLocking(locking bool) Option {
	return func(c *Config) { c.Locking = locking }
}

// WithTOffset sets the step-index offset added to every t_eff.
func WithTOffset(offset uint64) Option {
	return func(c *Config) { c.TOffset = offset }
}

// WithC0 sets the step-size numerator c0 > 0.
func WithC0(c0 float64) Option {
	return func(c *Config) { c.C0 = c0 }
}

// WithVerbose enables per-epoch progress logging via the stdlib log
// package.
func WithVerbose(verbose bool) Option {
	return func(c *Config) { c.Verbose = verbose }
}

// WithRNG sets the PRNG used to build per-epoch permutations.
func WithRNG(rng *rand.Rand) Option {
	return func(c *Config) { c.RNG = rng }
}

// NewConfig builds a Config for nrounds epochs over nworkers workers,
// with c0=1, no offset, unlocked (Hogwild!) regime, and a time-seeded
// PRNG, all overridable via options.
func NewConfig(nrounds, nworkers int, options ...Option) (*Config, error) {
	if nrounds < 1 {
		return nil, fmt.Errorf("sgd: nrounds must be >= 1, got %d", nrounds)
	}
	if nworkers < 1 {
		return nil, fmt.Errorf("sgd: nworkers must be >= 1, got %d", nworkers)
	}
	c := &Config{
		NRounds:  nrounds,
		NWorkers: nworkers,
		Locking:  false,
		C0:       1.0,
		RNG:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.C0 <= 0 {
		return nil, fmt.Errorf("sgd: c0 must be positive, got %v", c.C0)
	}
	return c, nil
}

// Engine runs parallel SGD against a LinearModel.
type Engine struct {
	cfg     *Config
	model   LinearModel
	History []HistoryEntry
}

// New builds an Engine for the given model and configuration.
func New(model LinearModel, cfg *Config) *Engine {
	return &Engine{cfg: cfg, model: model}
}

// Fit runs nrounds epochs of parallel SGD over d, updating the model's
// weight vector in place, and returns an error on any precondition
// violation.
func (e *Engine) Fit(ctx context.Context, d *dataset.Dataset, keepHistories bool) error {
	if e.model.GetLambda() <= 0 {
		return fmt.Errorf("sgd: model lambda must be positive, got %v", e.model.GetLambda())
	}
	if e.cfg.NRounds < 1 {
		return fmt.Errorf("sgd: nrounds must be >= 1, got %d", e.cfg.NRounds)
	}
	if e.cfg.NWorkers < 1 {
		return fmt.Errorf("sgd: nworkers must be >= 1, got %d", e.cfg.NWorkers)
	}
	if e.cfg.C0 <= 0 {
		return fmt.Errorf("sgd: c0 must be positive, got %v", e.cfg.C0)
	}

	transformed := e.model.Transform(d)
	if e.cfg.Verbose {
		log.Printf("[INFO] fitting x_shape: (%d, %d)", transformed.Len(), transformed.Dim())
	}
	start := time.Now()
	if err := transformed.Materialize(ctx); err != nil {
		return fmt.Errorf("sgd: materialize: %w", err)
	}
	if e.cfg.Verbose {
		log.Printf("[INFO] materializing took %v", time.Since(start))
	}

	n := transformed.Len()
	dim := transformed.Dim()
	if dim != e.model.Dim() {
		return fmt.Errorf("sgd: weight dimension %d != observed feature dimension %d", e.model.Dim(), dim)
	}
	featureCounts, err := computeFeatureCounts(transformed, dim)
	if err != nil {
		return err
	}

	state := cvec.New(dim)
	e.History = e.History[:0]

	actualWorkers := e.cfg.NWorkers
	if n < actualWorkers {
		actualWorkers = 1
	}
	if e.cfg.Verbose {
		log.Printf("[INFO] keep_histories: %v", keepHistories)
		log.Printf("[INFO] actual_nworkers: %d", actualWorkers)
	}

	workers := make([]*executor.Executor, actualWorkers)
	for i := range workers {
		workers[i] = executor.New()
	}
	defer func() {
		for _, w := range workers {
			w.Shutdown()
		}
	}()

	nelemsPerWorker := n / actualWorkers
	lambda := e.model.GetLambda()
	lossFn := e.model.GetLossFn()
	nf := float64(n)

	for round := 1; round <= e.cfg.NRounds; round++ {
		roundStart := time.Now()
		perm := dataset.NewPermutation(n, e.cfg.RNG)

		futures := make([]*executor.Future, actualWorkers)
		for w := 0; w < actualWorkers; w++ {
			chunkStart := w * nelemsPerWorker
			chunkEnd := (w + 1) * nelemsPerWorker
			if w+1 == actualWorkers {
				chunkEnd = n
			}
			w := w
			round := round
			futures[w] = workers[w].Enqueue(func() bool {
				runChunk(state, transformed, perm, chunkStart, chunkEnd, round, n,
					lambda, nf, lossFn, featureCounts, e.cfg.TOffset, e.cfg.C0, e.cfg.Locking)
				return true
			})
		}
		for _, f := range futures {
			f.Wait()
		}

		if keepHistories {
			snap := make([]float64, dim)
			state.Snapshot(snap)
			e.History = append(e.History, HistoryEntry{
				Iteration:   uint64(round),
				ElapsedUsec: uint64(time.Since(start).Microseconds()),
				W:           snap,
			})
		}
		if e.cfg.Verbose {
			log.Printf("[INFO] finished round %d in %v", round, time.Since(roundStart))
		}
	}

	final := make([]float64, dim)
	state.Snapshot(final)
	e.model.SetWeights(final)
	return nil
}

// runChunk performs the update rule over permutation positions
// [chunkStart, chunkEnd) for a single epoch. i is the 1-based position
// within the worker's own chunk, per spec.md's t_eff definition. Only the
// nonzero entries of each example are locked and updated, so a zero entry
// of a dense row receives no regularization decay.
func runChunk(
	state *cvec.Vector,
	d *dataset.Dataset,
	perm *dataset.Permutation,
	chunkStart, chunkEnd, round, n int,
	lambda, nf float64,
	lossFn loss.Function,
	featureCounts []uint64,
	tOffset uint64,
	c0 float64,
	locking bool,
) {
	var scratch vector.Vector
	i := 1
	for pos := chunkStart; pos < chunkEnd; pos, i = pos+1, i+1 {
		idx := perm.At(pos)
		x, y := d.At(idx, &scratch)

		tEff := uint64(round-1)*uint64(n) + uint64(i) + tOffset
		etaT := c0 / (lambda * float64(tEff))

		var yhat float64
		if locking {
			x.Iterate(func(j int, v float64) bool {
				if v == 0 {
					return true
				}
				state.Lock(j)
				yhat += v * state.UnsafeRead(j)
				return true
			})
		} else {
			x.Iterate(func(j int, v float64) bool {
				yhat += v * state.UnsafeRead(j)
				return true
			})
		}

		dl := lossFn.DLoss(y, yhat)

		x.Iterate(func(j int, v float64) bool {
			if v == 0 {
				return true
			}
			wold := state.UnsafeRead(j)
			c := featureCounts[j]
			wnew := (1.0-etaT*lambda*nf/float64(c))*wold - etaT*dl*v
			if locking {
				state.UnsafeWrite(j, wnew)
				state.Unlock(j)
			} else {
				state.UnsafeWrite(j, wnew)
			}
			return true
		})
	}
}

// computeFeatureCounts returns c[j] = |{i : x_i,j != 0}| for j in
// [0,dim). runChunk updates only nonzero entries, so every index it
// touches has c[j]>=1 by construction. Indices >= dim are skipped; the
// returned error is always nil.
func computeFeatureCounts(d *dataset.Dataset, dim int) ([]uint64, error) {
	counts := make([]uint64, dim)
	var scratch vector.Vector
	for i := 0; i < d.Len(); i++ {
		x, _ := d.At(i, &scratch)
		x.Iterate(func(j int, v float64) bool {
			if j >= dim {
				return true
			}
			if v != 0 {
				counts[j]++
			}
			return true
		})
	}
	return counts, nil
}
