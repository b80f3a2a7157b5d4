package envelope

import "math"

// FlexPoint is one node of a flex envelope: a time/level pair with an
// optional curvature shape and per-point CC-modulated deltas.
type FlexPoint struct {
	Time, Level float32
	Shape       float32
	CCTime      map[int]float32
	CCLevel     map[int]float32
}

// FlexEG is a stateful multi-segment envelope driven by an ordered point
// list rather than ADSR stages (spec.md §4.3). An optional sustain index
// freezes playback on that point until release.
type FlexEG struct {
	points     []FlexPoint
	sustainIdx int // -1 == no sustain

	sampleRate float64
	segment    int // index of the point we're moving toward
	progress   float32
	level      float32
	released   bool
	done       bool
}

// NewFlexEG creates a flex envelope over points with sustainIdx (-1 for none).
func NewFlexEG(sampleRate float64, points []FlexPoint, sustainIdx int) *FlexEG {
	f := &FlexEG{points: points, sustainIdx: sustainIdx, sampleRate: sampleRate}
	if len(points) > 0 {
		f.level = points[0].Level
		f.segment = 1
	} else {
		f.done = true
	}
	return f
}

// Release ends any sustain hold and lets the envelope continue toward its
// final point.
func (f *FlexEG) Release() {
	f.released = true
}

// Done reports whether the envelope has played through its final point.
func (f *FlexEG) Done() bool { return f.done }

// Level returns the current output level without advancing state.
func (f *FlexEG) Level() float32 { return f.level }

// Tick advances the envelope by one sample and returns its new level.
func (f *FlexEG) Tick() float32 {
	if f.done || f.segment >= len(f.points) {
		f.done = true
		return f.level
	}

	// Hold at the sustain point until release.
	if !f.released && f.sustainIdx >= 0 && f.segment-1 == f.sustainIdx {
		return f.level
	}

	from := f.points[f.segment-1]
	to := f.points[f.segment]
	segSeconds := maxf(0, to.Time-from.Time)
	segSamples := segSeconds * float32(f.sampleRate)
	if segSamples <= 0 {
		f.level = to.Level
		f.advanceSegment()
		return f.level
	}

	f.progress += 1.0 / segSamples
	t := f.progress
	if t >= 1 {
		t = 1
	}
	shaped := shapeCurve(t, to.Shape)
	f.level = from.Level + shaped*(to.Level-from.Level)

	if t >= 1 {
		f.advanceSegment()
	}
	return f.level
}

func (f *FlexEG) advanceSegment() {
	f.progress = 0
	f.segment++
	if f.segment >= len(f.points) {
		f.done = true
	}
}

// shapeCurve bends a linear [0,1] progress value by shape: 0 is linear,
// positive values bow the curve toward a slow start, negative toward a
// fast start (a simple power-curve, matching how SFZ flex-EG "shape"
// parametrizes concave/convex segments without a full spline evaluator).
func shapeCurve(t float32, shape float32) float32 {
	if shape == 0 {
		return t
	}
	exp := pow2(shape)
	return powf(t, exp)
}

func pow2(shape float32) float32 {
	// Maps shape in roughly [-10,10] to an exponent in (0, +inf); shape>0
	// slows the start (exponent>1), shape<0 speeds it up (exponent<1).
	return float32(math.Exp(float64(shape) * 0.25))
}

func powf(base, exp float32) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}
