// Package cvec implements the concurrent weight vector multiple SGD
// workers mutate in parallel: a fixed-length array of (version, value)
// cells supporting both per-cell locking and relaxed Hogwild!-style
// access. The low bit of a cell's version is its lock bit; the rest is a
// monotonically increasing logical version.
package cvec

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Vector is a shared, fixed-length array of (version, value) cells.
// The zero value is not usable; construct with New.
type Vector struct {
	versions []atomic.Uint64
	values   []float64
}

// New returns a zero-initialized concurrent vector of length n.
func New(n int) *Vector {
	if n < 0 {
		panic(fmt.Sprintf("cvec: negative length %d", n))
	}
	return &Vector{
		versions: make([]atomic.Uint64, n),
		values:   make([]float64, n),
	}
}

// Len returns the number of cells.
func (v *Vector) Len() int { return len(v.values) }

// UnsafeRead performs a single relaxed load of cell i's value. There is no
// atomicity guarantee with respect to concurrent writers beyond the load
// being tear-free at the float64 word size.
func (v *Vector) UnsafeRead(i int) float64 {
	return v.values[i]
}

// UnsafeWrite performs a single relaxed store of x into cell i's value.
func (v *Vector) UnsafeWrite(i int, x float64) {
	v.values[i] = x
}

// Lock spin-CASes cell i's version low bit from 0 to 1, blocking the
// caller until the cell becomes exclusive. Only the caller that
// successfully locks may call Unlock.
func (v *Vector) Lock(i int) {
	for {
		cur := v.versions[i].Load()
		if cur&1 == 0 && v.versions[i].CompareAndSwap(cur, cur|1) {
			return
		}
		runtime.Gosched()
	}
}

// Unlock clears cell i's lock bit and increments its logical version.
// Must be called exactly once per successful Lock, by the lock holder.
func (v *Vector) Unlock(i int) {
	cur := v.versions[i].Load()
	if cur&1 == 0 {
		panic(fmt.Sprintf("cvec: Unlock(%d) called while not locked", i))
	}
	next := (cur >> 1 << 1) + 2 // clear lock bit, bump logical version by 1 (= +2 in raw encoding)
	v.versions[i].Store(next)
}

// StableRead spins until cell i's version is observed unlocked, reads the
// value, then re-reads the version; it retries on mismatch so the
// returned value was coherent at some instant. The returned version
// witnesses that instant.
func (v *Vector) StableRead(i int) (float64, uint64) {
	for {
		v1 := v.versions[i].Load()
		if v1&1 != 0 {
			runtime.Gosched()
			continue
		}
		val := v.values[i]
		v2 := v.versions[i].Load()
		if v1 == v2 {
			return val, v2
		}
	}
}

// Snapshot copies all cell values into dst, which must already be
// len(v.Len()). The copy is not linearizable with respect to concurrent
// writers: the result reflects some interleaving of committed writes, not
// a single consistent instant.
func (v *Vector) Snapshot(dst []float64) {
	if len(dst) != len(v.values) {
		panic(fmt.Sprintf("cvec: Snapshot dst length %d != vector length %d", len(dst), len(v.values)))
	}
	copy(dst, v.values)
}

// Version returns the raw version word of cell i, primarily for tests
// asserting the lock-bit and increment-by-2 invariants.
func (v *Vector) Version(i int) uint64 {
	return v.versions[i].Load()
}
