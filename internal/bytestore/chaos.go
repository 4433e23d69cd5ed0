package bytestore

import (
	"errors"
	"math/rand"
)

// ErrInjected is returned by [Chaos] when it decides to simulate a failure.
var ErrInjected = errors.New("bytestore: injected fault")

// ChaosConfig controls fault-injection probabilities for [Chaos]. Each rate
// is in [0.0, 1.0]; the zero value disables all injection.
type ChaosConfig struct {
	ReadFailRate  float64
	WriteFailRate float64
	PartialRead   float64 // fraction of non-failed reads that are short
	Seed          int64
}

// Chaos wraps a [RandomAccessStore] and randomly injects read/write
// failures, for exercising the core's ResourceError handling without a real
// flaky disk. Grounded on the same idea as a filesystem fault injector: wrap
// the real implementation, roll dice per call, pass through otherwise.
type Chaos struct {
	inner RandomAccessStore
	cfg   ChaosConfig
	rng   *rand.Rand
}

// NewChaos wraps inner with fault injection according to cfg.
func NewChaos(inner RandomAccessStore, cfg ChaosConfig) *Chaos {
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}

	return &Chaos{inner: inner, cfg: cfg, rng: rand.New(rand.NewSource(seed))} //nolint:gosec // test-only fault injection, not security
}

// ReadAt implements [RandomAccessStore], occasionally failing or truncating.
func (c *Chaos) ReadAt(buf []byte, at int64) (int, error) {
	if c.rng.Float64() < c.cfg.ReadFailRate {
		return 0, ErrInjected
	}

	if c.rng.Float64() < c.cfg.PartialRead && len(buf) > 1 {
		short := buf[:len(buf)/2]
		n, err := c.inner.ReadAt(short, at)

		return n, err
	}

	return c.inner.ReadAt(buf, at)
}

// Write implements [RandomAccessStore], occasionally failing outright.
func (c *Chaos) Write(buf []byte) (int, error) {
	if c.rng.Float64() < c.cfg.WriteFailRate {
		return 0, ErrInjected
	}

	return c.inner.Write(buf)
}

// Size implements [RandomAccessStore].
func (c *Chaos) Size() (int64, error) {
	return c.inner.Size()
}

// Close implements [RandomAccessStore].
func (c *Chaos) Close() error {
	return c.inner.Close()
}
