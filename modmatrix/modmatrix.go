// Package modmatrix evaluates a region's connection graph once per audio
// sample: it reads controller sources from MidiState (curve, step, smooth),
// accepts already-ticked generator sources from the voice, resolves
// per-connection depth modulation, and sums contributions per target
// (spec.md §4.4).
package modmatrix

import (
	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/dsp"
	"github.com/cwbudde/sfzengine/midistate"
	"github.com/cwbudde/sfzengine/region"
)

// GeneratorSource supplies the current tick value for non-controller
// sources — envelopes, LFOs, flex envelopes — which the voice owns and
// advances before calling Evaluate. Returns ok==false for a key the voice
// does not provide (e.g. a disabled generator), which Evaluate treats as
// a zero contribution.
type GeneratorSource func(key region.ModKey) (value float32, ok bool)

// connState is the per-connection smoothing/stepping state, since each
// connection can specify its own Smooth/Step even when two connections
// share a source.
type connState struct {
	smoother   *dsp.OnePoleSmoother
	depthSmooth *dsp.OnePoleSmoother
	lastStep   float32
	stepPrimed bool
}

// Matrix evaluates one region's connection list for one voice.
type Matrix struct {
	region     *region.Region
	sampleRate float64
	curves     *curve.Table
	note       int

	conns  []connState
	result Result
}

// New builds a Matrix bound to r's connection list, for a voice playing
// note (used to read per-note CC overrides and per-note aftertouch).
func New(sampleRate float64, r *region.Region, curves *curve.Table, note int) *Matrix {
	m := &Matrix{region: r, sampleRate: sampleRate, curves: curves, note: note}
	m.conns = make([]connState, len(r.Connections))
	for i, c := range r.Connections {
		if c.Smooth > 0 {
			m.conns[i].smoother = dsp.NewOnePoleSmoother(sampleRate, c.Smooth)
		}
		if c.SourceDepthMod != nil {
			m.conns[i].depthSmooth = dsp.NewOnePoleSmoother(sampleRate, 1.0)
		}
	}
	m.result = make(Result, len(r.Connections))
	return m
}

// Result accumulates additive contributions per target ModKey.
type Result map[region.ModKey]float32

// Add accumulates a contribution into the target's running total.
func (r Result) Add(key region.ModKey, delta float32) {
	r[key] += delta
}

// Evaluate runs one sample's worth of connection evaluation and returns the
// per-target additive deltas. delay is the block-relative sample offset
// used for block-precise MidiState reads; velocity supplies the
// static-depth velocity scaling term (Connection.VelToDepth). The returned
// Result is owned by the Matrix and is overwritten by the next Evaluate
// call — callers must finish reading it before calling Evaluate again.
func (m *Matrix) Evaluate(ms *midistate.State, delay int32, velocity float32, gen GeneratorSource) Result {
	for k := range m.result {
		delete(m.result, k)
	}
	for i := range m.region.Connections {
		c := &m.region.Connections[i]
		raw, ok := m.readSource(i, c.Source, ms, delay, gen)
		if !ok {
			continue
		}

		depth := c.SourceDepth + c.VelToDepth*velocity
		if c.SourceDepthMod != nil {
			if dv, ok := m.readSource(i, *c.SourceDepthMod, ms, delay, gen); ok {
				st := &m.conns[i]
				if st.depthSmooth != nil {
					st.depthSmooth.SetTarget(dv)
					dv = st.depthSmooth.Tick()
				}
				depth = dv
			}
		}

		m.result.Add(c.Target, raw*depth)
	}
	return m.result
}

// readSource resolves one ModKey to its current shaped value: controller
// kinds go through MidiState + curve + stepping + smoothing (step 1 of
// spec.md §4.4's evaluation order); generator kinds are supplied
// pre-ticked by the voice (step 2).
func (m *Matrix) readSource(connIdx int, key region.ModKey, ms *midistate.State, delay int32, gen GeneratorSource) (float32, bool) {
	switch key.Kind {
	case region.ModKeyController:
		return m.shapeController(connIdx, key, ms.CCValueAt(key.Index, delay)), true
	case region.ModKeyPerVoiceController:
		return m.shapeController(connIdx, key, ms.EffectiveCCAt(m.note, key.Index, delay)), true
	case region.ModKeyChannelAftertouch:
		return m.shapeController(connIdx, key, ms.ChannelAftertouch()), true
	case region.ModKeyPolyAftertouch:
		return m.shapeController(connIdx, key, ms.PolyAftertouch(m.note)), true
	default:
		if gen == nil {
			return 0, false
		}
		return gen(key)
	}
}

// shapeController applies curve, step quantization and one-pole smoothing
// in that order: the target value is quantized before it is smoothed,
// so a stepped CC (e.g. a coarse switch) still ramps instead of zippering.
func (m *Matrix) shapeController(connIdx int, key region.ModKey, raw01 float32) float32 {
	shaped := raw01
	if m.curves != nil {
		shaped = m.curves.Apply(key.Curve, raw01)
	}
	if key.Step > 0 {
		shaped = quantizeStep(shaped, key.Step)
	}
	st := &m.conns[connIdx]
	if st.smoother != nil {
		st.smoother.SetTarget(shaped)
		return st.smoother.Tick()
	}
	return shaped
}

func quantizeStep(x, step float32) float32 {
	if step <= 0 {
		return x
	}
	n := x / step
	if n >= 0 {
		n += 0.5
	} else {
		n -= 0.5
	}
	return step * float32(int(n))
}
