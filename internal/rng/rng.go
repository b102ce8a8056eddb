// Package rng provides deterministic, string-seeded random number generation.
//
// A seed string is hashed with SHA-256 and the digest seeds a PCG generator,
// so the same seed always yields the same sequence. Generators are not safe
// for concurrent use; every worker and player owns its own instance.
package rng

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var (
	// ErrInvalidRange is returned for non-finite or inverted bounds.
	ErrInvalidRange = errors.New("invalid range")

	// ErrEmptyList is returned when picking from an empty list.
	ErrEmptyList = errors.New("empty list")
)

// Rng is a source of uniform random values.
type Rng interface {
	// Random returns a float in [0, 1).
	Random() float64

	// Int returns an integer in [min, max], both inclusive.
	Int(min, max int) (int, error)

	// Float returns a float in [min, max).
	Float(min, max float64) (float64, error)
}

// Seeded is a deterministic generator derived from a seed string.
type Seeded struct {
	seed string
	r    *rand.Rand
}

// New creates a generator whose sequence is fully determined by seed.
func New(seed string) *Seeded {
	sum := sha256.Sum256([]byte(seed))
	s1 := binary.BigEndian.Uint64(sum[0:8])
	s2 := binary.BigEndian.Uint64(sum[8:16])
	return &Seeded{seed: seed, r: rand.New(rand.NewPCG(s1, s2))}
}

// NewUnseeded creates a generator seeded from the operating system's entropy.
// Its output is not reproducible.
func NewUnseeded() *Seeded {
	var buf [16]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("rng: read entropy: %v", err))
	}
	return &Seeded{r: rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(buf[0:8]),
		binary.BigEndian.Uint64(buf[8:16]),
	))}
}

// Seed returns the seed string, empty for unseeded generators.
func (s *Seeded) Seed() string {
	return s.seed
}

// Random returns a float in [0, 1).
func (s *Seeded) Random() float64 {
	return s.r.Float64()
}

// Int returns an integer in [min, max], both inclusive.
func (s *Seeded) Int(min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("%w: int min %d > max %d", ErrInvalidRange, min, max)
	}
	span := uint64(max-min) + 1
	if span == 0 {
		// full int64 range
		return int(s.r.Uint64()), nil
	}
	return min + int(s.r.Uint64N(span)), nil
}

// Float returns a float in [min, max). The range must be non-empty.
func (s *Seeded) Float(min, max float64) (float64, error) {
	if !finite(min) || !finite(max) {
		return 0, fmt.Errorf("%w: float bounds must be finite (%v, %v)", ErrInvalidRange, min, max)
	}
	if min >= max {
		return 0, fmt.Errorf("%w: float range [%v, %v) is empty", ErrInvalidRange, min, max)
	}
	return min + s.r.Float64()*(max-min), nil
}

// Pick returns a uniformly chosen element of list.
func Pick[T any](r Rng, list []T) (T, error) {
	var zero T
	if len(list) == 0 {
		return zero, ErrEmptyList
	}
	i, err := r.Int(0, len(list)-1)
	if err != nil {
		return zero, err
	}
	return list[i], nil
}

// Shuffle returns a Fisher-Yates permutation of list. The input is not modified.
func Shuffle[T any](r Rng, list []T) []T {
	out := make([]T, len(list))
	copy(out, list)
	for i := len(out) - 1; i > 0; i-- {
		j, _ := r.Int(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var _ Rng = (*Seeded)(nil)
