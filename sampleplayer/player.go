package sampleplayer

import (
	"github.com/cwbudde/algo-dsp/dsp/interp"

	"github.com/cwbudde/sfzengine/region"
)

// Player is a voice's per-sample playback cursor over a shared, read-only
// Sample. Struct-of-arrays state (position, increment) stays in the hot
// path; loop bookkeeping is plain fields since it only changes at loop
// boundaries, not every sample.
type Player struct {
	sample *Sample
	loop   region.LoopDescriptor
	start  int64
	end    int64
	reverse bool

	interpOrder int
	interpolator *interp.LagrangeInterpolator

	position float64 // fractional frame index
	done     bool
	loopsLeft int // remaining loop iterations, -1 == infinite
}

// NewPlayer creates a playback cursor starting at startOffset frames into
// sample, honoring the region's reverse flag, loop descriptor and sample
// quality (interpolation order: 0 maps to nearest/linear, higher to cubic).
func NewPlayer(sample *Sample, startOffset int64, sampleStart, sampleEnd int64, loop region.LoopDescriptor, reverse bool, quality int) *Player {
	p := &Player{
		sample:  sample,
		loop:    loop,
		start:   sampleStart,
		end:     sampleEnd,
		reverse: reverse,
	}
	if p.end <= 0 || p.end > sample.NumFrames {
		p.end = sample.NumFrames
	}
	p.interpOrder = orderForQuality(quality)
	p.interpolator = interp.NewLagrangeInterpolator(p.interpOrder)

	p.loopsLeft = loop.Count
	if loop.Count <= 0 {
		p.loopsLeft = -1
	}

	if reverse {
		p.position = float64(p.end-1) - float64(startOffset)
	} else {
		p.position = float64(p.start) + float64(startOffset)
	}
	return p
}

func orderForQuality(q int) int {
	if q <= 2 {
		return 1
	}
	return 3
}

// Done reports whether one_shot/no_loop playback has reached the sample's
// end (or start, in reverse) and there is nothing left to render.
func (p *Player) Done() bool { return p.done }

// ReadFrame fills dst with one interpolated sample per channel at the
// cursor's current fractional position (without advancing it).
func (p *Player) ReadFrame(dst []float32) {
	if p.done {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	i0 := int64(p.position)
	frac := p.position - float64(i0)
	for ch := 0; ch < len(p.sample.Channels) && ch < len(dst); ch++ {
		dst[ch] = float32(p.interpChannel(p.sample.Channels[ch], i0, frac))
	}
}

func (p *Player) interpChannel(data []float32, i0 int64, frac float64) float64 {
	n := int64(len(data))
	samples := make([]float64, 0, 4)
	switch p.interpOrder {
	case 3:
		for _, idx := range [4]int64{i0 - 1, i0, i0 + 1, i0 + 2} {
			samples = append(samples, float64(sampleAt(data, n, idx)))
		}
	default:
		for _, idx := range [2]int64{i0, i0 + 1} {
			samples = append(samples, float64(sampleAt(data, n, idx)))
		}
	}
	return p.interpolator.Interpolate(samples, frac)
}

func sampleAt(data []float32, n, idx int64) float32 {
	if idx < 0 || idx >= n || n == 0 {
		return 0
	}
	return data[idx]
}

// Advance moves the cursor by increment frames (signed relative to the
// sample's native direction; NewPlayer already folded Reverse into the
// starting position and into the sign Advance should use) and applies
// loop-mode wraparound. released indicates whether the owning voice's
// note-off has occurred, which governs loop_sustain's exit condition.
func (p *Player) Advance(increment float64, released bool) {
	if p.done {
		return
	}
	step := increment
	if p.reverse {
		step = -step
	}
	p.position += step

	switch p.loop.Mode {
	case region.LoopNone:
		p.checkBounds()
	case region.LoopOneShot:
		// one_shot ignores note-off and plays to end regardless of released.
		p.checkBounds()
	case region.LoopContinuous:
		p.wrapLoop()
	case region.LoopSustain:
		if released {
			p.checkBounds()
		} else {
			p.wrapLoop()
		}
	}
}

func (p *Player) checkBounds() {
	if p.reverse {
		if p.position < float64(p.start) {
			p.done = true
		}
	} else {
		if p.position >= float64(p.end) {
			p.done = true
		}
	}
}

func (p *Player) wrapLoop() {
	loopStart := p.loop.Start
	loopEnd := p.loop.End
	if loopEnd <= loopStart {
		p.checkBounds()
		return
	}
	span := float64(loopEnd - loopStart)
	if p.reverse {
		if p.position < float64(loopStart) {
			if p.loopsLeft == 0 {
				p.checkBounds()
				return
			}
			if p.loopsLeft > 0 {
				p.loopsLeft--
			}
			p.position += span
		}
	} else {
		if p.position >= float64(loopEnd) {
			if p.loopsLeft == 0 {
				p.checkBounds()
				return
			}
			if p.loopsLeft > 0 {
				p.loopsLeft--
			}
			p.position -= span
		}
	}
}

// CrossfadeGain returns the linear blend weight (0..1) for the crossfade
// region around a loop boundary: 1 deep inside the loop, ramping down to 0
// over the last loop.Crossfade frames before loopEnd.
func (p *Player) CrossfadeGain() float32 {
	if p.loop.Mode != region.LoopContinuous && p.loop.Mode != region.LoopSustain {
		return 1
	}
	if p.loop.Crossfade <= 0 {
		return 1
	}
	distFromEnd := float64(p.loop.End) - p.position
	if distFromEnd >= 0 && distFromEnd < float64(p.loop.Crossfade) {
		return float32(distFromEnd / float64(p.loop.Crossfade))
	}
	return 1
}
