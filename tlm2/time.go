package tlm2

import (
	"math"
	"sync/atomic"

	"github.com/sarchlab/gouvm/report"
)

var defaultResolution atomic.Uint64

func init() {
	defaultResolution.Store(math.Float64bits(1.0e-12))
}

// SetTimeResolution sets the resolution, in seconds, of the Times created
// afterwards. Existing Times keep their resolution.
func SetTimeResolution(res float64) {
	if res <= 0 {
		panic("tlm2: time resolution must be positive")
	}

	defaultResolution.Store(math.Float64bits(res))
}

// TimeResolution returns the resolution new Times are created with.
func TimeResolution() float64 {
	return math.Float64frombits(defaultResolution.Load())
}

// Time is a delay annotation counted in a fixed resolution. Callers pass
// values in their own timescale, given as a (scaled, secs) pair: scaled is
// one time unit of the caller expressed in its timescale and secs is the
// length of that timescale in seconds.
type Time struct {
	name  string
	res   float64
	value int64
}

// NewTime creates a zero Time. A resolution of 0 uses TimeResolution().
func NewTime(name string, res float64) *Time {
	if res == 0 {
		res = TimeResolution()
	}

	return &Time{name: name, res: res}
}

// Name returns the name of the time variable.
func (t *Time) Name() string {
	return t.name
}

// Resolution returns the resolution in seconds.
func (t *Time) Resolution() float64 {
	return t.res
}

// Value returns the raw count of resolution steps.
func (t *Time) Value() int64 {
	return t.value
}

// Reset sets the time to zero.
func (t *Time) Reset() {
	t.value = 0
}

// RealTime returns the time in the timescale described by scaled and secs.
func (t *Time) RealTime(scaled, secs float64) float64 {
	return float64(t.value) * scaled * t.res / secs
}

// Incr adds v, given in the timescale described by scaled and secs.
func (t *Time) Incr(v, scaled, secs float64) {
	if v < 0 {
		report.Errorf(t.name, "UVM/TLM/TIMENEG",
			"Cannot increment uvm_tlm_time variable %s by a negative value",
			t.name)

		return
	}

	t.checkScale(scaled, "incr")

	t.value += t.toRes(v, scaled, secs)
}

// Decr subtracts v, given in the timescale described by scaled and secs.
// A result below zero is an error and leaves the time at zero.
func (t *Time) Decr(v, scaled, secs float64) {
	if v < 0 {
		report.Errorf(t.name, "UVM/TLM/TIMENEG",
			"Cannot decrement uvm_tlm_time variable %s by a negative value",
			t.name)

		return
	}

	t.checkScale(scaled, "decr")

	t.value -= t.toRes(v, scaled, secs)

	if t.value < 0 {
		report.Errorf(t.name, "UVM/TLM/TOODECR",
			"Cannot decrement uvm_tlm_time variable %s to a negative value",
			t.name)
		t.Reset()
	}
}

// AbsTime returns the time in units of secs seconds.
func (t *Time) AbsTime(secs float64) float64 {
	return float64(t.value) * t.res / secs
}

// SetAbsTime sets the time to v units of secs seconds.
func (t *Time) SetAbsTime(v, secs float64) {
	t.value = int64(math.Round(v * secs / t.res))
}

func (t *Time) checkScale(scaled float64, op string) {
	if scaled == 0 {
		report.Fatalf(t.name, "UVM/TLM/BADSCALE",
			"uvm_tlm_time::%s() called with a scaled time literal that is "+
				"smaller than the current timescale", op)
	}
}

func (t *Time) toRes(v, scaled, secs float64) int64 {
	return int64(math.Round(v / scaled * (secs / t.res)))
}
