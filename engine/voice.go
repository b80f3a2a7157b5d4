package engine

import (
	"github.com/cwbudde/sfzengine/bus"
	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/envelope"
	"github.com/cwbudde/sfzengine/eqchain"
	"github.com/cwbudde/sfzengine/filterchain"
	"github.com/cwbudde/sfzengine/midistate"
	"github.com/cwbudde/sfzengine/modmatrix"
	"github.com/cwbudde/sfzengine/panner"
	"github.com/cwbudde/sfzengine/region"
	"github.com/cwbudde/sfzengine/sampleplayer"
)

// offState tracks a voice's path to silence once it is no longer simply
// "playing": normal release, a fast-off steal/choke, or a scheduled
// off_time choke.
type offState int

const (
	offPlaying offState = iota
	offReleased
	offFast
	offTimed
)

// Voice renders one active note for one region. The sample cursor (via
// Player), filter/EQ delay lines and smoothers live inside its owned
// sub-objects; this struct holds lifecycle state plus per-sample scratch
// and counters (LFO tick cache, frame buffer, fade-out countdown). Each
// voice owns all of its state; nothing is laid out as struct-of-arrays
// across voices.
type Voice struct {
	active bool

	reg  *region.Region
	note int
	vel  float32

	triggerType  region.TriggerType
	triggerValue float32
	startSample  int64 // engine-global sample counter at note-on, for rt_decay timing

	sampleRate float64

	player  *sampleplayer.Player
	sample  *sampleplayer.Sample
	filters *filterchain.Chain
	eqs     *eqchain.Chain
	mod     *modmatrix.Matrix

	ampEG   *envelope.ClassicEG
	pitchEG *envelope.ClassicEG
	filEG   *envelope.ClassicEG
	flexEGs []*envelope.FlexEG
	lfos    []*envelope.LFO
	lfoTick []float32 // this sample's LFO output, ticked once before Evaluate

	frame [2]float32 // reused by readSample, avoids a per-sample allocation

	off        offState
	offSamples int // remaining samples until silent, for offFast/offTimed
	group      int
	offBy      int
	offMode    region.OffMode
	offTime    float32

	lastAmp float32 // most recent gating-envelope level, for stealing comparisons

	sustainDepressed bool
}

// NewVoice starts a voice for region r, playing note at velocity vel
// (0..1), with triggerValue (note-on velocity for attack triggers,
// recorded note-on velocity for release triggers) and sample already
// resolved and resampled to sampleRate.
func NewVoice(sampleRate float64, r *region.Region, note int, vel float32, trigger region.TriggerType, triggerValue float32, sample *sampleplayer.Sample, curves *curve.Table, quality int, startSample int64) *Voice {
	v := &Voice{
		active:       true,
		reg:          r,
		note:         note,
		vel:          vel,
		triggerType:  trigger,
		triggerValue: triggerValue,
		startSample:  startSample,
		sampleRate:   sampleRate,
		sample:       sample,
		group:        r.Group,
		offBy:        r.OffBy,
		offMode:      r.OffMode,
		offTime:      r.OffTime,
	}

	v.mod = modmatrix.New(sampleRate, r, curves, note)

	if sample != nil {
		v.player = sampleplayer.NewPlayer(sample, r.SampleOffset, r.SampleStart, r.SampleEnd, r.Loop, r.Reverse, quality)
	}

	v.filters = filterchain.NewChain(sampleRate, r.Filters)
	v.eqs = eqchain.NewChain(sampleRate, r.Equalizers)

	if r.AmpEGIsFlex >= 0 && r.AmpEGIsFlex < len(r.FlexEGs) {
		v.flexEGs = make([]*envelope.FlexEG, len(r.FlexEGs))
		for i, p := range r.FlexEGs {
			v.flexEGs[i] = newFlexEG(sampleRate, p)
		}
	} else {
		v.ampEG = newClassicEG(sampleRate, r.AmpEG, vel)
	}
	if r.PitchEG != nil {
		v.pitchEG = newClassicEG(sampleRate, *r.PitchEG, vel)
	}
	if r.FilEG != nil {
		v.filEG = newClassicEG(sampleRate, *r.FilEG, vel)
	}

	v.lfos = make([]*envelope.LFO, len(r.LFOs))
	v.lfoTick = make([]float32, len(r.LFOs))
	for i, p := range r.LFOs {
		v.lfos[i] = newLFO(sampleRate, p)
	}

	if trigger == region.TriggerRelease {
		v.ampGateRelease()
	}

	return v
}

func newClassicEG(sampleRate float64, p region.EGParams, vel float32) *envelope.ClassicEG {
	return envelope.NewClassicEG(sampleRate, envelope.ClassicParams{
		Delay: p.Delay, Attack: p.Attack, Hold: p.Hold, Decay: p.Decay, Release: p.Release,
		Sustain: p.Sustain, Start: p.Start,
		Vel2Attack: p.Vel2Attack, Vel2Decay: p.Vel2Decay, Vel2Release: p.Vel2Release,
		Vel2Sustain: p.Vel2Sustain, Vel2Delay: p.Vel2Delay, Dynamic: p.Dynamic,
	}, vel)
}

func newFlexEG(sampleRate float64, p region.FlexEGParams) *envelope.FlexEG {
	points := make([]envelope.FlexPoint, len(p.Points))
	for i, pt := range p.Points {
		points[i] = envelope.FlexPoint{Time: pt.Time, Level: pt.Level, Shape: pt.Shape, CCTime: pt.CCTime, CCLevel: pt.CCLevel}
	}
	return envelope.NewFlexEG(sampleRate, points, p.SustainIdx)
}

func newLFO(sampleRate float64, p region.LFOParams) *envelope.LFO {
	freq := p.FreqHz
	subs := make([]envelope.Sub, len(p.Subs))
	for i, s := range p.Subs {
		subs[i] = envelope.Sub{Waveform: envelope.Waveform(s.Waveform), Offset: s.Offset, Ratio: s.Ratio, Scale: s.Scale, Steps: s.Steps}
	}
	return envelope.NewLFO(sampleRate, freq, p.Phase, subs, p.Delay, p.FadeIn, p.Count)
}

// ampGateRelease immediately pushes a release-triggered voice's gating
// envelope into its release segment: such a voice has no attack phase of
// its own, it only decays.
func (v *Voice) ampGateRelease() {
	if v.ampEG != nil {
		v.ampEG.Release()
	}
	for _, f := range v.flexEGs {
		f.Release()
	}
}

// Release marks the voice for normal (envelope-driven) release.
func (v *Voice) Release() {
	if v.off == offPlaying {
		v.off = offReleased
	}
	if v.ampEG != nil {
		v.ampEG.Release()
	}
	for _, f := range v.flexEGs {
		f.Release()
	}
	if v.pitchEG != nil {
		v.pitchEG.Release()
	}
	if v.filEG != nil {
		v.filEG.Release()
	}
}

// FastOff transitions the voice to a ~5ms linear fade before freeing,
// used for stolen and group-choked voices (spec.md §4.1).
func (v *Voice) FastOff() {
	v.off = offFast
	v.offSamples = int(0.005 * v.sampleRate)
}

// TimedOff transitions the voice to a scheduled off after seconds.
func (v *Voice) TimedOff(seconds float32) {
	v.off = offTimed
	v.offSamples = int(seconds * float32(v.sampleRate))
}

// Choke silences the voice per its region's off_mode, used by group choke
// (off_by) when another region in the same group starts a new voice.
func (v *Voice) Choke() {
	switch v.offMode {
	case region.OffFast:
		v.FastOff()
	case region.OffTime:
		v.TimedOff(v.offTime)
	default:
		v.Release()
	}
}

// SetSustain records the sustain pedal state on the voice. Rendering does
// not read it: loop_sustain exits on note-off, and sustain_cancels_release
// deferral is handled by the VoiceManager.
func (v *Voice) SetSustain(depressed bool) {
	v.sustainDepressed = depressed
}

// Level returns the voice's current gating envelope level, used by the
// stealing algorithm's amplitude-weighted tie-break.
func (v *Voice) Level() float32 { return v.lastAmp }

// Active reports whether the voice is still occupying a pool slot.
func (v *Voice) Active() bool { return v.active }

// Note reports the MIDI note number this voice is playing.
func (v *Voice) Note() int { return v.note }

// TriggerType reports which trigger condition started this voice.
func (v *Voice) TriggerType() region.TriggerType { return v.triggerType }

// Free releases this voice back to the pool.
func (v *Voice) Free() { v.active = false }

// gateLevel reads the current output level of whichever envelope is
// gating this voice (a flex-EG nominated ampeg, or the classic amp EG).
func (v *Voice) gateLevel() float32 {
	if len(v.flexEGs) > 0 && v.reg.AmpEGIsFlex >= 0 && v.reg.AmpEGIsFlex < len(v.flexEGs) {
		return v.flexEGs[v.reg.AmpEGIsFlex].Level()
	}
	if v.ampEG != nil {
		return v.ampEG.Level()
	}
	return 0
}

func (v *Voice) gateDone() bool {
	if len(v.flexEGs) > 0 && v.reg.AmpEGIsFlex >= 0 && v.reg.AmpEGIsFlex < len(v.flexEGs) {
		return v.flexEGs[v.reg.AmpEGIsFlex].Done()
	}
	if v.ampEG != nil {
		return v.ampEG.Done()
	}
	return true
}

// RenderBlock renders n frames starting at the block's ms-relative sample
// offset blockDelay into mix, following spec.md §4.2's eight-step pipeline.
// blockStartSample is the engine-global sample counter at the start of this
// block, used to time rt_decay attenuation against the voice's startSample.
func (v *Voice) RenderBlock(ms *midistate.State, blockDelay int32, blockStartSample int64, mix *bus.Mixer, n int) {
	if !v.active {
		return
	}

	r := v.reg

	// Steps 1-2: modulation + generator tick, accumulated per-sample since
	// filter/EQ/pan/gain targets can move within a block.
	for i := 0; i < n; i++ {
		if v.off == offFast || v.off == offTimed {
			if v.offSamples <= 0 {
				v.active = false
				return
			}
			v.offSamples--
		}

		delay := blockDelay + int32(i)

		for li, l := range v.lfos {
			v.lfoTick[li] = l.Tick()
		}
		result := v.mod.Evaluate(ms, delay, v.vel, v.generatorSource)

		v.applyModResult(result)

		var gate float32
		if len(v.flexEGs) > 0 && r.AmpEGIsFlex >= 0 && r.AmpEGIsFlex < len(v.flexEGs) {
			gate = v.flexEGs[r.AmpEGIsFlex].Tick()
			for fi, f := range v.flexEGs {
				if fi != r.AmpEGIsFlex {
					f.Tick()
				}
			}
		} else if v.ampEG != nil {
			gate = v.ampEG.Tick()
		}
		if v.pitchEG != nil {
			v.pitchEG.Tick()
		}
		if v.filEG != nil {
			v.filEG.Tick()
		}
		v.lastAmp = gate

		if v.off == offFast {
			t := float32(v.offSamples) / maxf(1, float32(0.005*v.sampleRate))
			gate *= t
		}

		// Step 3: sample read + loop.
		sampL, sampR := v.readSample()

		// Step 4-5: filter + EQ chains (mono signal path).
		mono := (sampL + sampR) * 0.5
		filtered := v.filters.ProcessSample(float64(mono))
		eqd := v.eqs.ProcessSample(filtered)

		// Step 6: amplifier.
		elapsedSamples := blockStartSample + int64(i) - v.startSample
		gain := v.amplifierGain(gate, result, elapsedSamples) * v.crossfadeGain()
		sig := float32(eqd) * gain

		// Step 7: panner.
		left, right := v.pan(result, sig)

		// Step 8: bus split.
		v.splitToBuses(mix, i, left, right)

		if v.player != nil {
			released := v.off == offReleased || v.off == offFast
			v.player.Advance(v.pitchIncrement(ms, result), released)
			if v.player.Done() {
				v.active = false
				return
			}
		}
		if v.gateDone() && v.off != offPlaying {
			v.active = false
			return
		}
	}
}

// generatorSource supplies non-controller modulation sources to the
// matrix: the amp/pitch/fil classic EGs, flex-EGs, and LFO slots. LFOs are
// ticked once per sample into v.lfoTick before Evaluate runs, so a single
// LFO referenced by several connections as a source is advanced exactly
// once per sample rather than once per connection.
func (v *Voice) generatorSource(key region.ModKey) (float32, bool) {
	switch key.Kind {
	case region.ModKeyAmpEG:
		if v.ampEG != nil {
			return v.ampEG.Level(), true
		}
	case region.ModKeyPitchEG:
		if v.pitchEG != nil {
			return v.pitchEG.Level(), true
		}
	case region.ModKeyFilEG:
		if v.filEG != nil {
			return v.filEG.Level(), true
		}
	case region.ModKeyFlexEnvelope:
		if key.Index >= 0 && key.Index < len(v.flexEGs) {
			return v.flexEGs[key.Index].Level(), true
		}
	case region.ModKeyLFO, region.ModKeyAmpLFO, region.ModKeyPitchLFO, region.ModKeyFilLFO:
		if key.Index >= 0 && key.Index < len(v.lfoTick) {
			return v.lfoTick[key.Index], true
		}
	}
	return 0, false
}

func (v *Voice) applyModResult(result modmatrix.Result) {
	// Targets are read directly out of result by amplifierGain/pan/
	// pitchIncrement/filter-update below; this hook exists for targets
	// that must be pushed into owned sub-objects before they're read,
	// namely filter/EQ coefficients and dynamic sustain.
	r := v.reg
	for i := range r.Filters {
		key := region.FilterCutoff(i)
		cutoffCents := result[key]
		cutoff := float64(r.Filters[i].Cutoff) * float64(centsToRatio(cutoffCents))
		resonance := float64(r.Filters[i].Resonance) + float64(result[region.FilterResonance(i)])
		gain := float64(r.Filters[i].Gain) + float64(result[region.FilterGain(i)])
		v.filters.Stage(i).SetParams(cutoff, resonance, gain)
	}
	for i := range r.Equalizers {
		freqCents := result[region.EqFreq(i)]
		freq := float64(r.Equalizers[i].Freq) * float64(centsToRatio(freqCents))
		gain := float64(r.Equalizers[i].Gain) + float64(result[region.EqGain(i)])
		bw := float64(r.Equalizers[i].BW) + float64(result[region.EqBw(i)])
		v.eqs.Band(i).SetParams(freq, gain, bw)
	}
	if r.AmpEG.Dynamic && v.ampEG != nil {
		v.ampEG.SetDynamicSustain(r.AmpEG.Sustain + result[region.ModKey{Kind: region.ModKeyAmplitude}]*100)
	}
}

func (v *Voice) readSample() (float32, float32) {
	if v.player == nil {
		return 0, 0
	}
	v.player.ReadFrame(v.frame[:])
	xfade := v.player.CrossfadeGain()
	if v.sample.NumChannels() == 1 {
		return v.frame[0] * xfade, v.frame[0] * xfade
	}
	return v.frame[0] * xfade, v.frame[1] * xfade
}

func (v *Voice) amplifierGain(gate float32, result modmatrix.Result, elapsedSamples int64) float32 {
	r := v.reg
	volumeDB := r.Volume + result[region.ModKey{Kind: region.ModKeyVolume}]
	amplitude := clampf(r.Amplitude+result[region.ModKey{Kind: region.ModKeyAmplitude}], 0, 2)

	keytrackDB := r.AmpKeytrack * float32(v.note-r.AmpKeycenter) / 100.0
	veltrack := 1 + r.AmpVeltrack/100.0*(v.vel-1)

	rtDecayAtten := float32(1)
	if r.Trigger == region.TriggerRelease && r.RtDecay > 0 {
		if elapsedSamples < 0 {
			elapsedSamples = 0
		}
		elapsedSeconds := float32(elapsedSamples) / float32(v.sampleRate)
		rtDecayAtten = dbToLin(-r.RtDecay * elapsedSeconds)
	}

	globalGain := dbToLin(volumeDB + keytrackDB)
	return globalGain * amplitude * r.Scaling.Global * r.Scaling.Master * r.Scaling.Group * veltrack * rtDecayAtten * gate
}

func (v *Voice) pan(result modmatrix.Result, sig float32) (float32, float32) {
	r := v.reg
	pan := r.Pan + result[region.ModKey{Kind: region.ModKeyPan}]*100
	width := r.Width + result[region.ModKey{Kind: region.ModKeyWidth}]*100
	position := r.Position + result[region.ModKey{Kind: region.ModKeyPosition}]*100
	l, rr := panner.StereoGains(panner.Law{Pan: pan, Width: width, Position: position})
	return sig * l, sig * rr
}

func (v *Voice) pitchIncrement(ms *midistate.State, result modmatrix.Result) float64 {
	r := v.reg
	if v.sample == nil {
		return 0
	}
	centsOffset := float32(r.Transpose)*100 + r.Tune
	centsOffset += float32(v.note-r.PitchKeycenter) * r.PitchKeytrack
	centsOffset += result[region.ModKey{Kind: region.ModKeyPitch}]
	centsOffset += v.pitchBendCents(ms)

	targetFreq := midiNoteToFreq(v.note, centsOffset)
	keycenterFreq := midiNoteToFreq(r.PitchKeycenter, 0)
	ratio := float64(targetFreq / keycenterFreq)
	return ratio * v.sample.SampleRate / v.sampleRate
}

// pitchBendCents converts the active channel or per-note pitch bend value
// (-1..1) into cents using the region's bend_up/bend_down scaling: an
// upward bend scales by BendUp, a downward bend by BendDown (already
// signed, usually negative), matching spec.md §4.4.
func (v *Voice) pitchBendCents(ms *midistate.State) float32 {
	bend := ms.PitchBend()
	if pn, ok := ms.PerNoteBend(v.note); ok {
		bend = pn
	}
	if bend >= 0 {
		return bend * v.reg.BendUp
	}
	return -bend * v.reg.BendDown
}

// crossfadeGain blends this voice's gain across any key or velocity
// crossfade ranges the region declares, so overlapping regions at a
// boundary fade smoothly instead of switching abruptly (spec.md §3's
// crossfade ranges, §4.2 step 6).
func (v *Voice) crossfadeGain() float32 {
	r := v.reg
	g := float32(1)
	if r.XFadeKeyLo.Hi != r.XFadeKeyLo.Lo {
		g *= panner.CrossfadeGain(r.XFadeCurve, xfadePosition(float32(v.note), r.XFadeKeyLo))
	}
	if r.XFadeKeyHi.Hi != r.XFadeKeyHi.Lo {
		g *= 1 - panner.CrossfadeGain(r.XFadeCurve, xfadePosition(float32(v.note), r.XFadeKeyHi))
	}
	if r.XFadeVelLo.Hi != r.XFadeVelLo.Lo {
		g *= panner.CrossfadeGain(r.XFadeCurve, xfadePosition(v.vel, r.XFadeVelLo))
	}
	if r.XFadeVelHi.Hi != r.XFadeVelHi.Lo {
		g *= 1 - panner.CrossfadeGain(r.XFadeCurve, xfadePosition(v.vel, r.XFadeVelHi))
	}
	return g
}

// xfadePosition maps value's position within rng to [0,1], clamped at the
// ends: 0 at or before rng.Lo, 1 at or after rng.Hi.
func xfadePosition(value float32, rng region.Range) float32 {
	if rng.Hi <= rng.Lo {
		return 1
	}
	return clampf((value-rng.Lo)/(rng.Hi-rng.Lo), 0, 1)
}

func (v *Voice) splitToBuses(mix *bus.Mixer, i int, left, right float32) {
	r := v.reg
	if len(r.GainToEffect) > 0 {
		mix.Main.Add(i, left*r.GainToEffect[0], right*r.GainToEffect[0])
	} else {
		mix.Main.Add(i, left, right)
	}
	for bi := 1; bi < len(r.GainToEffect) && bi-1 < len(mix.Effects); bi++ {
		g := r.GainToEffect[bi]
		if g == 0 {
			continue
		}
		mix.Effects[bi-1].Add(i, left*g, right*g)
	}
}
