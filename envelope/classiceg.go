// Package envelope implements the modulation generators that feed the
// ModMatrix: the classic delay/attack/hold/decay/sustain/release envelope,
// the flex (point-list) envelope, and the multi-sub LFO described by
// spec.md §4.3.
package envelope

import "math"

// Stage identifies where a ClassicEG currently sits.
type Stage int

const (
	StageIdle Stage = iota
	StageDelay
	StageAttack
	StageHold
	StageDecay
	StageSustain
	StageRelease
	StageDone
)

// ClassicParams parametrizes a delay/attack/hold/decay/sustain/release
// envelope. Times are in seconds, Sustain/Start are percent (0..100).
type ClassicParams struct {
	Delay, Attack, Hold, Decay, Release float32
	Sustain                             float32
	Start                               float32
	Vel2Attack, Vel2Decay, Vel2Release, Vel2Sustain, Vel2Delay float32
	Dynamic bool
}

// ClassicEG is a stateful classic envelope generator. It advances at
// control rate (one Tick per sample) and reports its current output level
// in [0,1]; its exponential segments approach their targets asymptotically
// and never overshoot.
type ClassicEG struct {
	params   ClassicParams
	velocity float32
	sampleRate float64

	stage        Stage
	level        float32
	samplesInStage int

	delaySamples, attackSamples, holdSamples, decaySamples int
	releaseCoeff float32
	sustainLevel float32

	released bool
}

// NewClassicEG creates an envelope primed from note-on velocity (0..1).
func NewClassicEG(sampleRate float64, p ClassicParams, velocity float32) *ClassicEG {
	eg := &ClassicEG{params: p, velocity: velocity, sampleRate: sampleRate}
	eg.retarget()
	eg.level = p.Start / 100.0
	eg.stage = StageDelay
	if p.Delay <= 0 {
		eg.stage = StageAttack
	}
	return eg
}

func (eg *ClassicEG) retarget() {
	p := &eg.params
	vel := eg.velocity
	delay := maxf(0, p.Delay+p.Vel2Delay*vel)
	attack := maxf(0, p.Attack+p.Vel2Attack*vel)
	decay := maxf(0, p.Decay+p.Vel2Decay*vel)
	release := maxf(0, p.Release+p.Vel2Release*vel)
	sustain := clampf(p.Sustain+p.Vel2Sustain*vel, 0, 100)

	eg.delaySamples = int(delay * float32(eg.sampleRate))
	eg.attackSamples = int(attack * float32(eg.sampleRate))
	eg.holdSamples = int(p.Hold * float32(eg.sampleRate))
	eg.decaySamples = int(decay * float32(eg.sampleRate))
	eg.sustainLevel = sustain / 100.0

	eg.releaseCoeff = releaseCoeffFor(release, eg.sampleRate)
}

// releaseCoeffFor returns the one-pole decay coefficient for an exponential
// release of the given length in seconds, matching the -60dB-in-releaseTime
// convention used for amp-EG release ramps.
func releaseCoeffFor(releaseSeconds float32, sampleRate float64) float32 {
	if releaseSeconds <= 0 {
		return 0
	}
	// exp(-ln(1000)/ (release*sampleRate)): reach ~-60dB over `release` seconds.
	return float32(math.Exp(-math.Log(1000) / (float64(releaseSeconds) * sampleRate)))
}

// Release triggers the release stage.
func (eg *ClassicEG) Release() {
	if eg.released {
		return
	}
	eg.released = true
	eg.stage = StageRelease
	eg.samplesInStage = 0
}

// Released reports whether Release has been called.
func (eg *ClassicEG) Released() bool { return eg.released }

// CurrentStage returns the EG's current stage.
func (eg *ClassicEG) CurrentStage() Stage { return eg.stage }

// Level returns the current output level without advancing state.
func (eg *ClassicEG) Level() float32 { return eg.level }

// SetDynamicSustain recomputes the sustain target live from a modulated
// percent value, honored only when Dynamic is set (spec.md §4.3).
func (eg *ClassicEG) SetDynamicSustain(percent float32) {
	if !eg.params.Dynamic {
		return
	}
	eg.sustainLevel = clampf(percent, 0, 100) / 100.0
}

// Tick advances the envelope by one sample and returns its new level.
func (eg *ClassicEG) Tick() float32 {
	switch eg.stage {
	case StageDelay:
		eg.samplesInStage++
		if eg.samplesInStage >= eg.delaySamples {
			eg.stage = StageAttack
			eg.samplesInStage = 0
		}
	case StageAttack:
		if eg.attackSamples <= 0 {
			eg.level = 1
			eg.stage = StageHold
			eg.samplesInStage = 0
		} else {
			eg.level += 1.0 / float32(eg.attackSamples)
			eg.samplesInStage++
			if eg.level >= 1 || eg.samplesInStage >= eg.attackSamples {
				eg.level = 1
				eg.stage = StageHold
				eg.samplesInStage = 0
			}
		}
	case StageHold:
		eg.samplesInStage++
		if eg.samplesInStage >= eg.holdSamples {
			eg.stage = StageDecay
			eg.samplesInStage = 0
		}
	case StageDecay:
		if eg.decaySamples <= 0 {
			eg.level = eg.sustainLevel
			eg.stage = StageSustain
		} else {
			// Exponential approach to sustain level.
			coeff := float32(math.Exp(-math.Log(20) / float64(eg.decaySamples)))
			eg.level = eg.sustainLevel + (eg.level-eg.sustainLevel)*coeff
			eg.samplesInStage++
			if eg.samplesInStage >= eg.decaySamples {
				eg.level = eg.sustainLevel
				eg.stage = StageSustain
			}
		}
	case StageSustain:
		eg.level = eg.sustainLevel
	case StageRelease:
		if eg.releaseCoeff <= 0 {
			eg.level = 0
			eg.stage = StageDone
		} else {
			eg.level *= eg.releaseCoeff
			if eg.level < SilenceThreshold {
				eg.level = 0
				eg.stage = StageDone
			}
		}
	case StageDone, StageIdle:
		eg.level = 0
	}
	return eg.level
}

// SilenceThreshold is the level below which a releasing envelope is
// considered finished at once (spec.md §8: "voice goes free when
// envelope < 1e-4").
const SilenceThreshold = 1e-4

// Done reports whether the envelope has fully completed its release.
func (eg *ClassicEG) Done() bool { return eg.stage == StageDone }

func maxf(a, b float32) float32 {
	if a > b {
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
