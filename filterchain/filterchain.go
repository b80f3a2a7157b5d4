// Package filterchain builds and runs a region's `filters[]` cascade on
// top of algo-dsp's biquad kernel: each stage is a biquad.Chain whose
// coefficients are recomputed when the ModMatrix moves cutoff/resonance/
// gain, and whose delay-line state persists across the update via
// UpdateCoefficients (spec.md §4.2 step 4).
package filterchain

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/pass"

	"github.com/cwbudde/sfzengine/region"
)

// Stage is one filter in the chain: its current target parameters (set by
// the voice from ModMatrix results each sample) and the biquad cascade
// implementing it.
type Stage struct {
	typ        region.FilterType
	sampleRate float64
	chain      *biquad.Chain

	cutoff, resonance, gain float64
}

// NewStage creates a filter stage of the given type.
func NewStage(sampleRate float64, typ region.FilterType) *Stage {
	return &Stage{typ: typ, sampleRate: sampleRate}
}

// SetParams updates the stage's target cutoff (Hz), resonance (dB-ish Q
// proxy) and gain (dB), rebuilding coefficients in place. Called once per
// sample by the voice after the ModMatrix has produced final per-target
// values; delay-line state survives the rebuild as long as the section
// count does not change.
func (s *Stage) SetParams(cutoffHz, resonanceDB, gainDB float64) {
	if s.chain != nil && s.cutoff == cutoffHz && s.resonance == resonanceDB && s.gain == gainDB {
		return
	}
	s.cutoff, s.resonance, s.gain = cutoffHz, resonanceDB, gainDB
	coeffs := s.design()
	if len(coeffs) == 0 {
		s.chain = nil
		return
	}
	if s.chain == nil {
		s.chain = biquad.NewChain(coeffs)
		return
	}
	s.chain.UpdateCoefficients(coeffs, 1)
}

func (s *Stage) design() []biquad.Coefficients {
	f := clampFreq(s.cutoff, s.sampleRate)
	q := resonanceToQ(s.resonance)
	switch s.typ {
	case region.FilterNone:
		return nil
	case region.FilterLPF1P:
		return pass.ButterworthLP(f, 1, s.sampleRate)
	case region.FilterLPF2P, region.FilterLPF2PSV:
		return []biquad.Coefficients{design.Lowpass(f, q, s.sampleRate)}
	case region.FilterLPF4P:
		return pass.ButterworthLP(f, 4, s.sampleRate)
	case region.FilterLPF6P:
		return pass.ButterworthLP(f, 6, s.sampleRate)
	case region.FilterHPF1P:
		return pass.ButterworthHP(f, 1, s.sampleRate)
	case region.FilterHPF2P, region.FilterHPF2PSV:
		return []biquad.Coefficients{design.Highpass(f, q, s.sampleRate)}
	case region.FilterHPF4P:
		return pass.ButterworthHP(f, 4, s.sampleRate)
	case region.FilterHPF6P:
		return pass.ButterworthHP(f, 6, s.sampleRate)
	case region.FilterBPF1P, region.FilterBPF2P:
		return []biquad.Coefficients{design.Bandpass(f, q, s.sampleRate)}
	case region.FilterBPF4P:
		return repeatCoeffs(design.Bandpass(f, q, s.sampleRate), 2)
	case region.FilterBPF6P:
		return repeatCoeffs(design.Bandpass(f, q, s.sampleRate), 3)
	case region.FilterBRF1P, region.FilterBRF2P, region.FilterBRF2PSV:
		return []biquad.Coefficients{design.Notch(f, q, s.sampleRate)}
	case region.FilterBRF4P:
		return repeatCoeffs(design.Notch(f, q, s.sampleRate), 2)
	case region.FilterAPF1P:
		return []biquad.Coefficients{design.Allpass(f, q, s.sampleRate)}
	case region.FilterPink:
		// A pink-noise shaping filter is a cascade of loosely-spaced poles;
		// approximate with a gentle lowpass since the engine's input here
		// is always a sampled signal, not a noise source to be colored.
		return pass.ButterworthLP(f, 1, s.sampleRate)
	default:
		return nil
	}
}

// repeatCoeffs stacks the same biquad section n times, the usual way to
// reach a 4th/6th-order response from a single band/notch design call.
func repeatCoeffs(c biquad.Coefficients, n int) []biquad.Coefficients {
	out := make([]biquad.Coefficients, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// ProcessSample filters one sample through the stage's cascade.
func (s *Stage) ProcessSample(x float64) float64 {
	if s.chain == nil {
		return x
	}
	return s.chain.ProcessSample(x)
}

// Reset clears all delay-line state (called on voice (re)start).
func (s *Stage) Reset() {
	if s.chain != nil {
		s.chain.Reset()
	}
}

// Chain runs a region's ordered filters[] list in series.
type Chain struct {
	stages []*Stage
}

// NewChain builds a chain with one Stage per region.FilterParams entry.
func NewChain(sampleRate float64, params []region.FilterParams) *Chain {
	c := &Chain{stages: make([]*Stage, len(params))}
	for i, p := range params {
		c.stages[i] = NewStage(sampleRate, p.Type)
		c.stages[i].SetParams(float64(p.Cutoff), float64(p.Resonance), float64(p.Gain))
	}
	return c
}

// Stage returns the i-th stage for parameter updates, or nil if out of range.
func (c *Chain) Stage(i int) *Stage {
	if i < 0 || i >= len(c.stages) {
		return nil
	}
	return c.stages[i]
}

// ProcessSample runs x through every stage in series.
func (c *Chain) ProcessSample(x float64) float64 {
	for _, s := range c.stages {
		x = s.ProcessSample(x)
	}
	return x
}

// Reset clears delay-line state on every stage.
func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

func clampFreq(hz, sampleRate float64) float64 {
	nyquist := sampleRate * 0.5
	if hz <= 0 {
		return 1
	}
	if hz >= nyquist {
		return nyquist * 0.999
	}
	return hz
}

// resonanceToQ converts the region's dB-denominated resonance parameter to
// an RBJ-style Q factor. SFZ resonance is specified in dB of peak gain at
// cutoff; Q ~= 10^(resonanceDB/40) is the usual approximation.
func resonanceToQ(resonanceDB float64) float64 {
	if resonanceDB <= 0 {
		return 0.7071 // Butterworth-flat default
	}
	q := math.Pow(10, resonanceDB/40.0)
	if q < 0.5 {
		return 0.5
	}
	return q
}
