// Package bus implements the engine's output bus split: a main bus plus
// zero or more effect buses, each optionally carrying a convolution-based
// send effect driven by algo-dsp's streaming overlap-add convolver
// (spec.md §4.2 step 8, §6 "Audio I/O").
package bus

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/conv"
)

// Bus accumulates voice contributions for one block before the engine
// mixes it (possibly through an effect) into the final output.
type Bus struct {
	Left, Right []float32
}

// NewBus allocates a bus's accumulation buffers for a block of n frames.
func NewBus(n int) *Bus {
	return &Bus{Left: make([]float32, n), Right: make([]float32, n)}
}

// Clear zeroes the bus ahead of a new block's accumulation.
func (b *Bus) Clear() {
	for i := range b.Left {
		b.Left[i] = 0
		b.Right[i] = 0
	}
}

// Add accumulates a panned mono voice sample into frame i.
func (b *Bus) Add(i int, left, right float32) {
	b.Left[i] += left
	b.Right[i] += right
}

// EffectBus wraps a Bus with a per-channel streaming overlap-add
// convolution (an impulse-response send effect, e.g. a cabinet or room
// IR) applied in RenderTo before the result is mixed into the main output.
type EffectBus struct {
	*Bus
	convLeft  *conv.StreamingOverlapAdd
	convRight *conv.StreamingOverlapAdd
}

// NewEffectBus creates an effect bus of blockSize frames with kernel as its
// impulse response. A nil kernel means the bus passes its input through
// unconvolved (a plain aux send).
func NewEffectBus(blockSize int, kernel []float64) (*EffectBus, error) {
	eb := &EffectBus{Bus: NewBus(blockSize)}
	if len(kernel) == 0 {
		return eb, nil
	}
	var err error
	eb.convLeft, err = conv.NewStreamingOverlapAdd(kernel, blockSize)
	if err != nil {
		return nil, fmt.Errorf("bus: left convolver: %w", err)
	}
	eb.convRight, err = conv.NewStreamingOverlapAdd(kernel, blockSize)
	if err != nil {
		return nil, fmt.Errorf("bus: right convolver: %w", err)
	}
	return eb, nil
}

// Process runs the bus's accumulated block through its convolution (if
// any) in place, ready to be summed into the main output.
func (eb *EffectBus) Process() error {
	if eb.convLeft == nil {
		return nil
	}
	if err := processChannel(eb.convLeft, eb.Left); err != nil {
		return fmt.Errorf("bus: left channel: %w", err)
	}
	if err := processChannel(eb.convRight, eb.Right); err != nil {
		return fmt.Errorf("bus: right channel: %w", err)
	}
	return nil
}

func processChannel(c *conv.StreamingOverlapAdd, buf []float32) error {
	in := make([]float64, len(buf))
	for i, v := range buf {
		in[i] = float64(v)
	}
	out, err := c.ProcessBlock(in)
	if err != nil {
		return err
	}
	for i := range buf {
		if i < len(out) {
			buf[i] = float32(out[i])
		}
	}
	return nil
}

// Reset clears the effect bus's convolution tail state (called when
// voices stop feeding it to avoid carrying a stale reverb tail into the
// next note, e.g. on a full engine reset).
func (eb *EffectBus) Reset() {
	if eb.convLeft != nil {
		eb.convLeft.Reset()
	}
	if eb.convRight != nil {
		eb.convRight.Reset()
	}
}

// Mixer owns the main bus and a fixed set of effect buses, matching
// gainToEffect[0..N] indexing from the region model.
type Mixer struct {
	Main    *Bus
	Effects []*EffectBus
}

// NewMixer allocates a main bus and len(kernels) effect buses, each
// blockSize frames, each with its own (possibly nil) impulse response.
func NewMixer(blockSize int, kernels [][]float64) (*Mixer, error) {
	m := &Mixer{Main: NewBus(blockSize), Effects: make([]*EffectBus, len(kernels))}
	for i, k := range kernels {
		eb, err := NewEffectBus(blockSize, k)
		if err != nil {
			return nil, fmt.Errorf("bus: effect %d: %w", i, err)
		}
		m.Effects[i] = eb
	}
	return m, nil
}

// Clear zeroes every bus ahead of a new block.
func (m *Mixer) Clear() {
	m.Main.Clear()
	for _, eb := range m.Effects {
		eb.Clear()
	}
}

// MixDown processes every effect bus and sums it, plus the main bus, into
// dstLeft/dstRight.
func (m *Mixer) MixDown(dstLeft, dstRight []float32) error {
	for i, eb := range m.Effects {
		if err := eb.Process(); err != nil {
			return fmt.Errorf("bus: mixdown effect %d: %w", i, err)
		}
	}
	for i := range dstLeft {
		dstLeft[i] = m.Main.Left[i]
		dstRight[i] = m.Main.Right[i]
	}
	for _, eb := range m.Effects {
		for i := range dstLeft {
			dstLeft[i] += eb.Left[i]
			dstRight[i] += eb.Right[i]
		}
	}
	return nil
}
