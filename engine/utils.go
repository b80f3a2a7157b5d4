// Package engine implements the realtime voice pipeline: region-driven
// voice allocation, per-voice rendering, and the modulation graph that
// drives it. It is the core described by the specification's VoiceManager,
// voice renderer, ModMatrix and MidiState components.
package engine

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// midiNoteToFreq converts a MIDI note number to frequency in Hz, honoring
// an optional keycenter/tuning offset expressed in cents.
func midiNoteToFreq(note int, centsOffset float32) float32 {
	const a4Freq = 440.0
	const a4Note = 69
	exponent := (float32(note-a4Note)*100.0 + centsOffset) / 1200.0
	return a4Freq * pow2Approx(exponent)
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

// centsToRatio converts a pitch offset in cents to a frequency ratio.
func centsToRatio(cents float32) float32 {
	return pow2Approx(cents / 1200.0)
}

// dbToLin converts a decibel value to a linear amplitude ratio.
func dbToLin(db float32) float32 {
	return pow2Approx(db / (20.0 / 3.32192809489)) // db * log2(10)/20 == db/(20/log2(10))
}

// linToDb converts a linear amplitude ratio to decibels.
func linToDb(lin float32) float32 {
	if lin <= 0 {
		return float32(math.Inf(-1))
	}
	return 20.0 * float32(math.Log10(float64(lin)))
}

func isFinite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
