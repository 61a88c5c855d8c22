// Package valgen provides closures that generate data patterns for
// testbench stimulus.
package valgen

import "math/rand"

// MakeConstGen returns a generator that always yields constant.
func MakeConstGen(constant uint32) func() uint32 {
	return func() uint32 {
		return constant
	}
}

// MakeIncreasingGen returns a generator that yields start+1, start+2, ...
func MakeIncreasingGen(start uint32) func() uint32 {
	current := start
	return func() uint32 {
		current++
		return current
	}
}

// MakeWalkingOnesGen returns a generator that walks a single set bit from
// bit 0 to bit 31 and wraps around.
func MakeWalkingOnesGen() func() uint32 {
	bit := 31
	return func() uint32 {
		bit = (bit + 1) % 32
		return 1 << bit
	}
}

// MakeRandomGen returns a generator of pseudo random words. The same seed
// yields the same sequence.
func MakeRandomGen(seed int64) func() uint32 {
	r := rand.New(rand.NewSource(seed))
	return func() uint32 {
		return r.Uint32()
	}
}
