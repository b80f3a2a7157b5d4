package eqchain

import (
	"math"
	"testing"

	"github.com/cwbudde/sfzengine/region"
)

func TestLowShelfBoostsLowFrequencyEnergy(t *testing.T) {
	const sr = 48000.0
	boosted := NewBand(sr, region.EqLowShelf)
	boosted.SetParams(200, 12, 0)

	flat := NewBand(sr, region.EqLowShelf)
	flat.SetParams(200, 0, 0)

	boostedEnergy := sumSquares(feedSine(boosted, sr, 50, 2048))
	flatEnergy := sumSquares(feedSine(flat, sr, 50, 2048))

	if boostedEnergy <= flatEnergy {
		t.Fatalf("expected +12dB low shelf to raise low-frequency energy, boosted=%v flat=%v", boostedEnergy, flatEnergy)
	}
}

func TestPeakBandAtUnityGainIsNearPassthrough(t *testing.T) {
	b := NewBand(48000, region.EqPeak)
	b.SetParams(1000, 0, 1)
	out := feedSine(b, 48000, 1000, 512)
	for i, x := range out[256:] {
		if math.Abs(x) > 1.5 {
			t.Fatalf("unexpected runaway output at sample %d: %v", i, x)
		}
	}
}

func TestChainBandAccessOutOfRange(t *testing.T) {
	c := NewChain(48000, []region.EqParams{{Type: region.EqPeak, Freq: 1000, Gain: 3, BW: 1}})
	if c.Band(0) == nil {
		t.Fatalf("expected band 0 to exist")
	}
	if c.Band(1) != nil {
		t.Fatalf("expected out-of-range band access to return nil")
	}
}

func feedSine(b *Band, sampleRate, freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
		out[i] = b.ProcessSample(x)
	}
	return out
}

func sumSquares(xs []float64) float64 {
	var sum float64
	for _, x := range xs[len(xs)/2:] {
		sum += x * x
	}
	return sum
}
