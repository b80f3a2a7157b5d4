// Package dsp holds small control-rate DSP helpers that are not worth
// pulling a third-party kernel for: denormal flushing and the one-pole
// smoothing filter used to tame CC/modulation jumps across a block.
package dsp

import "math"

// OnePoleSmoother is a one-pole IIR lowpass used to smooth a modulation
// source toward its target value. The time constant is derived from a
// smoothing time in milliseconds (ModKey's `smooth` parameter).
type OnePoleSmoother struct {
	coeff   float32
	current float32
	target  float32
	primed  bool
}

// NewOnePoleSmoother creates a smoother for the given sample rate.
// smoothMs <= 0 disables smoothing (SetTarget takes effect immediately).
func NewOnePoleSmoother(sampleRate float64, smoothMs float32) *OnePoleSmoother {
	s := &OnePoleSmoother{}
	s.SetTimeConstant(sampleRate, smoothMs)
	return s
}

// SetTimeConstant recomputes the smoothing coefficient for a new time
// constant without resetting the current value.
func (s *OnePoleSmoother) SetTimeConstant(sampleRate float64, smoothMs float32) {
	if smoothMs <= 0 || sampleRate <= 0 {
		s.coeff = 1.0
		return
	}
	// coeff = 1 - exp(-1 / (smoothMs/1000 * sampleRate))
	tau := float64(smoothMs) / 1000.0 * sampleRate
	s.coeff = float32(1.0 - expNeg1Over(tau))
}

func expNeg1Over(tau float64) float64 {
	if tau <= 0 {
		return 0
	}
	// exp(-1/tau) via the standard library; this runs only at control-rate
	// coefficient-recompute time (on `smooth` change), never in the
	// per-sample hot loop, so math.Exp's cost is immaterial.
	return math.Exp(-1.0 / tau)
}

// SetTarget sets the value the smoother chases. If the smoother has never
// been primed, the first target becomes the current value immediately
// (no ramp-in from zero on first use).
func (s *OnePoleSmoother) SetTarget(v float32) {
	s.target = v
	if !s.primed {
		s.current = v
		s.primed = true
	}
}

// Tick advances the smoother by one sample and returns the new current value.
func (s *OnePoleSmoother) Tick() float32 {
	s.current += s.coeff * (s.target - s.current)
	s.current = FlushDenormals(s.current)
	return s.current
}

// Current returns the smoother's present value without advancing it.
func (s *OnePoleSmoother) Current() float32 {
	return s.current
}

// Reset snaps the smoother to v with no further ramp.
func (s *OnePoleSmoother) Reset(v float32) {
	s.current = v
	s.target = v
	s.primed = true
}

// FlushDenormals converts denormal numbers to zero to avoid performance issues.
func FlushDenormals(x float32) float32 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0.0
	}
	return x
}
