// Package gd implements the non-concurrent reference batch gradient
// descent engine, used to validate the parallel SGD engine against a
// simple, serial full-gradient trainer with the same history contract.
package gd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stephentu/parlearn/dataset"
	"github.com/stephentu/parlearn/sgd"
	"github.com/stephentu/parlearn/vector"

	"gonum.org/v1/gonum/floats"
)

// LinearModel is the subset of model.Linear the engine needs. It reuses
// sgd.LinearModel since both engines share the same weight-vector
// contract.
type LinearModel = sgd.LinearModel

// HistoryEntry mirrors sgd.HistoryEntry: training history is the same
// shape regardless of which engine produced it.
type HistoryEntry = sgd.HistoryEntry

// Config controls the batch GD engine.
type Config struct {
	NRounds int
	TOffset uint64
	C0      float64
	Verbose bool
}

// Option configures a Config.
type Option func(*Config)

// WithTOffset sets the step-index offset added to every round.
func WithTOffset(offset uint64) Option {
	return func(c *Config) { c.TOffset = offset }
}

// WithC0 sets the step-size numerator c0 > 0.
func WithC0(c0 float64) Option {
	return func(c *Config) { c.C0 = c0 }
}

// WithVerbose enables per-round progress logging.
func WithVerbose(verbose bool) Option {
	return func(c *Config) { c.Verbose = verbose }
}

// NewConfig builds a Config for nrounds rounds, c0=1 and no offset unless
// overridden.
func NewConfig(nrounds int, options ...Option) (*Config, error) {
	if nrounds < 1 {
		return nil, fmt.Errorf("gd: nrounds must be >= 1, got %d", nrounds)
	}
	c := &Config{NRounds: nrounds, C0: 1.0}
	for _, opt := range options {
		opt(c)
	}
	if c.C0 <= 0 {
		return nil, fmt.Errorf("gd: c0 must be positive, got %v", c.C0)
	}
	return c, nil
}

// Engine runs reference batch gradient descent against a LinearModel.
type Engine struct {
	cfg     *Config
	model   LinearModel
	History []HistoryEntry
}

// New builds an Engine for the given model and configuration.
func New(model LinearModel, cfg *Config) *Engine {
	return &Engine{cfg: cfg, model: model}
}

// Fit runs nrounds rounds of batch gradient descent over d, updating the
// model's weight vector in place.
func (e *Engine) Fit(ctx context.Context, d *dataset.Dataset, keepHistories bool) error {
	if e.model.GetLambda() <= 0 {
		return fmt.Errorf("gd: model lambda must be positive, got %v", e.model.GetLambda())
	}

	transformed := e.model.Transform(d)
	if e.cfg.Verbose {
		log.Printf("[INFO] fitting x_shape: (%d, %d)", transformed.Len(), transformed.Dim())
	}
	start := time.Now()
	if err := transformed.Materialize(ctx); err != nil {
		return fmt.Errorf("gd: materialize: %w", err)
	}

	n := transformed.Len()
	dim := transformed.Dim()
	w := resizeWeights(e.model.Weights(), dim)

	lambda := e.model.GetLambda()
	lossFn := e.model.GetLossFn()
	e.History = e.History[:0]

	for round := 1; round <= e.cfg.NRounds; round++ {
		tEff := uint64(round) + e.cfg.TOffset
		etaT := e.cfg.C0 / (lambda * float64(tEff))

		accum := make([]float64, dim)
		wv := vector.NewDenseFrom(w)
		var scratch vector.Vector
		for i := 0; i < n; i++ {
			x, y := transformed.At(i, &scratch)
			yhat := wv.Dot(x)
			dl := lossFn.DLoss(y, yhat)
			x.Iterate(func(j int, v float64) bool {
				accum[j] += v * dl
				return true
			})
		}
		floats.Scale(etaT/float64(n), accum)
		floats.Scale(1.0-etaT*lambda, w)
		floats.SubTo(w, w, accum)

		if keepHistories {
			snap := make([]float64, dim)
			copy(snap, w)
			e.History = append(e.History, HistoryEntry{
				Iteration:   uint64(round),
				ElapsedUsec: uint64(time.Since(start).Microseconds()),
				W:           snap,
			})
		}
		if e.cfg.Verbose {
			log.Printf("[INFO] finished round %d, step size %v", round, etaT)
		}
	}

	e.model.SetWeights(w)
	return nil
}

// resizeWeights returns a slice of length dim, preserving w's existing
// values and zero-extending as needed (matches the source's resize()
// semantics, which never truncates data it doesn't have to).
func resizeWeights(w []float64, dim int) []float64 {
	out := make([]float64, dim)
	copy(out, w)
	return out
}
