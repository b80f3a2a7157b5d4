package envelope

import "math"

// Waveform selects an LFO sub-oscillator's shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Saw
	Square
	StepSequence
)

// Sub is one oscillator summed into an LFO's combined output.
type Sub struct {
	Waveform Waveform
	Offset   float32 // phase offset, cycles
	Ratio    float32 // frequency multiplier relative to the LFO's base frequency
	Scale    float32
	Steps    []float32
}

// LFO is a free-running low frequency oscillator combining one or more
// Subs, with delay, fade-in and finite cycle count. FreqHz and Phase are
// exported fields a caller may change between Ticks; nothing in the engine
// writes them after construction, so ModMatrix targets do not reach them.
type LFO struct {
	sampleRate float64
	FreqHz     float32
	Phase      float32 // base phase offset, cycles
	subs       []Sub

	delaySamples int
	fadeSamples  int
	maxCycles    int

	samplesElapsed int
	cyclesDone     int
	phaseAcc       float32 // 0..1
}

// NewLFO creates an LFO. delaySeconds/fadeInSeconds/count come from
// LFOParams; count==0 means free-running.
func NewLFO(sampleRate float64, freqHz float32, phase float32, subs []Sub, delaySeconds, fadeInSeconds float32, count int) *LFO {
	return &LFO{
		sampleRate:   sampleRate,
		FreqHz:       freqHz,
		Phase:        phase,
		subs:         subs,
		delaySamples: int(delaySeconds * float32(sampleRate)),
		fadeSamples:  int(fadeInSeconds * float32(sampleRate)),
		maxCycles:    count,
	}
}

// Tick advances the LFO by one sample and returns its combined output in
// roughly [-1,1] (before per-sub Scale, which can widen that range).
func (l *LFO) Tick() float32 {
	l.samplesElapsed++
	if l.samplesElapsed < l.delaySamples {
		return 0
	}

	if l.sampleRate > 0 {
		l.phaseAcc += l.FreqHz / float32(l.sampleRate)
	}
	if l.phaseAcc >= 1 {
		l.phaseAcc -= float32(int(l.phaseAcc))
		l.cyclesDone++
	}
	if l.maxCycles > 0 && l.cyclesDone >= l.maxCycles {
		return 0
	}

	fade := float32(1)
	if l.fadeSamples > 0 {
		sinceStart := l.samplesElapsed - l.delaySamples
		if sinceStart < l.fadeSamples {
			fade = float32(sinceStart) / float32(l.fadeSamples)
		}
	}

	var out float32
	if len(l.subs) == 0 {
		out = waveformAt(Sine, l.phaseAcc+l.Phase)
	} else {
		for _, sub := range l.subs {
			phase := l.phaseAcc*sub.Ratio + sub.Offset + l.Phase
			var v float32
			if sub.Waveform == StepSequence && len(sub.Steps) > 0 {
				idx := int(phase*float32(len(sub.Steps))) % len(sub.Steps)
				if idx < 0 {
					idx += len(sub.Steps)
				}
				v = sub.Steps[idx]
			} else {
				v = waveformAt(sub.Waveform, phase)
			}
			scale := sub.Scale
			if scale == 0 {
				scale = 1
			}
			out += v * scale
		}
	}
	return out * fade
}

func waveformAt(w Waveform, phase float32) float32 {
	p := phase - float32(math.Floor(float64(phase))) // wrap to [0,1)
	switch w {
	case Sine:
		return float32(math.Sin(2 * math.Pi * float64(p)))
	case Triangle:
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	case Saw:
		return 2*p - 1
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	default:
		return 0
	}
}
