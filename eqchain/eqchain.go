// Package eqchain builds and runs a region's `equalizer[]` band cascade:
// peak bands are designed as Butterworth band-pass gain stages and shelves
// as Butterworth shelving cascades, both from algo-dsp's higher-order
// design packages, falling back to a single RBJ biquad (package design)
// when the higher-order design rejects the parameters (e.g. bandwidth
// wider than Nyquist allows).
package eqchain

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/band"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/shelving"

	"github.com/cwbudde/sfzengine/region"
)

// Band is one equalizer stage.
type Band struct {
	typ        region.EqType
	sampleRate float64
	chain      *biquad.Chain

	freq, gain, bw float64
}

// NewBand creates an equalizer band of the given type.
func NewBand(sampleRate float64, typ region.EqType) *Band {
	return &Band{typ: typ, sampleRate: sampleRate}
}

// SetParams updates the band's center/corner frequency (Hz), gain (dB) and
// bandwidth (octaves, ignored for shelves), rebuilding coefficients.
func (b *Band) SetParams(freqHz, gainDB, bwOctaves float64) {
	if b.chain != nil && b.freq == freqHz && b.gain == gainDB && b.bw == bwOctaves {
		return
	}
	b.freq, b.gain, b.bw = freqHz, gainDB, bwOctaves
	coeffs := b.design()
	if len(coeffs) == 0 {
		b.chain = nil
		return
	}
	if b.chain == nil {
		b.chain = biquad.NewChain(coeffs)
		return
	}
	b.chain.UpdateCoefficients(coeffs, 1)
}

func (b *Band) design() []biquad.Coefficients {
	f := clampFreq(b.freq, b.sampleRate)
	switch b.typ {
	case region.EqPeak:
		bwHz := octavesToHz(f, b.bw)
		if coeffs, err := band.ButterworthBand(b.sampleRate, f, bwHz, b.gain, 2); err == nil {
			return coeffs
		}
		q := bwOctavesToQ(b.bw)
		return []biquad.Coefficients{design.Peak(f, b.gain, q, b.sampleRate)}
	case region.EqLowShelf:
		if coeffs, err := shelving.ButterworthLowShelf(b.sampleRate, f, b.gain, 2); err == nil {
			return coeffs
		}
		return []biquad.Coefficients{design.LowShelf(f, b.gain, 0.7071, b.sampleRate)}
	case region.EqHighShelf:
		if coeffs, err := shelving.ButterworthHighShelf(b.sampleRate, f, b.gain, 2); err == nil {
			return coeffs
		}
		return []biquad.Coefficients{design.HighShelf(f, b.gain, 0.7071, b.sampleRate)}
	default:
		return nil
	}
}

// ProcessSample filters one sample through the band's cascade.
func (b *Band) ProcessSample(x float64) float64 {
	if b.chain == nil {
		return x
	}
	return b.chain.ProcessSample(x)
}

// Reset clears delay-line state (called on voice (re)start).
func (b *Band) Reset() {
	if b.chain != nil {
		b.chain.Reset()
	}
}

// Chain runs a region's ordered equalizer[] list in series.
type Chain struct {
	bands []*Band
}

// NewChain builds a chain with one Band per region.EqParams entry.
func NewChain(sampleRate float64, params []region.EqParams) *Chain {
	c := &Chain{bands: make([]*Band, len(params))}
	for i, p := range params {
		c.bands[i] = NewBand(sampleRate, p.Type)
		c.bands[i].SetParams(float64(p.Freq), float64(p.Gain), float64(p.BW))
	}
	return c
}

// Band returns the i-th band for parameter updates, or nil if out of range.
func (c *Chain) Band(i int) *Band {
	if i < 0 || i >= len(c.bands) {
		return nil
	}
	return c.bands[i]
}

// ProcessSample runs x through every band in series.
func (c *Chain) ProcessSample(x float64) float64 {
	for _, b := range c.bands {
		x = b.ProcessSample(x)
	}
	return x
}

// Reset clears delay-line state on every band.
func (c *Chain) Reset() {
	for _, b := range c.bands {
		b.Reset()
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

// octavesToHz converts an octave bandwidth centered on f to a linear Hz
// bandwidth: bw = f*(2^(oct/2) - 2^(-oct/2)).
func octavesToHz(f, octaves float64) float64 {
	if octaves <= 0 {
		octaves = 1
	}
	return f * (math.Pow(2, octaves/2) - math.Pow(2, -octaves/2))
}

// bwOctavesToQ is the fallback single-biquad Q for a peak filter of the
// given octave bandwidth: Q = sqrt(2^bw) / (2^bw - 1).
func bwOctavesToQ(octaves float64) float64 {
	if octaves <= 0 {
		octaves = 1
	}
	p := math.Pow(2, octaves)
	return math.Sqrt(p) / (p - 1)
}
