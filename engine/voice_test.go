package engine

import (
	"testing"

	"github.com/cwbudde/sfzengine/bus"
	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/midistate"
	"github.com/cwbudde/sfzengine/panner"
	"github.com/cwbudde/sfzengine/region"
	"github.com/cwbudde/sfzengine/sampleplayer"
)

const testSampleRate = 48000.0

func monoSample(frames int) *sampleplayer.Sample {
	data := make([]float32, frames)
	for i := range data {
		data[i] = 1
	}
	return &sampleplayer.Sample{Channels: [][]float32{data}, SampleRate: testSampleRate, NumFrames: int64(frames)}
}

func baseRegion(frames int) *region.Region {
	return &region.Region{
		SampleEnd:      int64(frames),
		Key:            region.FullRange(),
		Velocity:       region.FullRange(),
		PitchKeycenter: 60,
		PitchKeytrack:  100,
		AmpEG:          region.EGParams{Attack: 0, Decay: 0, Sustain: 100, Release: 0.01},
		AmpEGIsFlex:    -1,
		Amplitude:      1,
		Scaling:        region.ScalingLevels{Global: 1, Master: 1, Group: 1},
	}
}

func newTestVoice(r *region.Region, sample *sampleplayer.Sample, note int, vel float32, trigger region.TriggerType) *Voice {
	return NewVoice(testSampleRate, r, note, vel, trigger, vel, sample, curve.NewDefaultTable(), 10, 0)
}

func renderVoice(v *Voice, ms *midistate.State, n int) *bus.Mixer {
	mix, err := bus.NewMixer(n, nil)
	if err != nil {
		panic(err)
	}
	v.RenderBlock(ms, 0, 0, mix, n)
	return mix
}

func TestVoiceAtKeycenterPlaysAtUnityRate(t *testing.T) {
	sample := monoSample(200)
	r := baseRegion(200)
	v := newTestVoice(r, sample, 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	mix := renderVoice(v, ms, 50)
	if !v.Active() {
		t.Fatalf("expected voice to remain active mid-sample")
	}
	if inc := v.pitchIncrement(ms, nil); inc != 1 {
		t.Fatalf("expected unity playback increment at keycenter, got %v", inc)
	}
	// Immediate-attack, full-sustain gain renders the constant-1 sample
	// back out at unit amplitude, scaled on each channel by the center-pan
	// gain of the sin/cos law (about 0.707).
	want, _ := panner.StereoGains(panner.Law{})
	if d := mix.Main.Left[49] - want; d > 0.01 || d < -0.01 {
		t.Fatalf("expected center-panned unit output %v at keycenter, got %v", want, mix.Main.Left[49])
	}
}

func TestVoiceFreesWhenOneShotSampleEnds(t *testing.T) {
	sample := monoSample(32)
	r := baseRegion(32)
	r.Loop = region.LoopDescriptor{Mode: region.LoopOneShot}
	v := newTestVoice(r, sample, 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	renderVoice(v, ms, 64)
	if v.Active() {
		t.Fatalf("expected one-shot voice to free itself once the sample runs out")
	}
}

func TestReleaseDrivesVoiceToSilenceAndFree(t *testing.T) {
	sample := monoSample(4800)
	r := baseRegion(4800)
	r.Loop = region.LoopDescriptor{Mode: region.LoopContinuous, Start: 0, End: 4799}
	r.AmpEG.Release = 0.001
	v := newTestVoice(r, sample, 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	renderVoice(v, ms, 10)
	v.Release()
	renderVoice(v, ms, int(testSampleRate))

	if v.Active() {
		t.Fatalf("expected released voice to free itself once its gate envelope completes")
	}
}

func TestFastOffSilencesWithinScheduledWindow(t *testing.T) {
	sample := monoSample(48000)
	r := baseRegion(48000)
	r.Loop = region.LoopDescriptor{Mode: region.LoopContinuous, Start: 0, End: 47999}
	v := newTestVoice(r, sample, 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	v.FastOff()
	renderVoice(v, ms, int(0.005*testSampleRate)+2)

	if v.Active() {
		t.Fatalf("expected fast-off voice to free itself once its fade window elapses")
	}
}

func TestLFOSharedBySourceAndSourceDepthTicksOnce(t *testing.T) {
	// An LFO referenced both as a connection's own source and as another
	// connection's depth modulator must still advance once per sample: if
	// generatorSource ticked lazily inside the callback instead of reading
	// a pre-ticked cache, it would be advanced twice here.
	sample := monoSample(4800)
	r := baseRegion(4800)
	r.Loop = region.LoopDescriptor{Mode: region.LoopContinuous, Start: 0, End: 4799}
	r.LFOs = []region.LFOParams{{
		FreqHz: 1000, // fast enough that a double-tick is observable within a few samples
		Subs:   []region.LFOSub{{Waveform: region.LFOSine, Ratio: 1, Scale: 1}},
	}}
	lfoKey := region.ModKey{Kind: region.ModKeyLFO, Index: 0}
	depthKey := region.ModKey{Kind: region.ModKeyLFO, Index: 0}
	r.Connections = []region.Connection{
		{Source: lfoKey, Target: region.ModKey{Kind: region.ModKeyPitch}, SourceDepth: 1},
		{Source: region.ModKey{Kind: region.ModKeyController, Index: 1}, Target: region.ModKey{Kind: region.ModKeyPan}, SourceDepth: 0, SourceDepthMod: &depthKey},
	}
	v := newTestVoice(r, sample, 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	// One tick of a 1kHz LFO at 48kHz advances its phase by 1/48 of a
	// cycle. After 8 rendered samples the voice's LFO must sit exactly
	// where a fresh LFO with the same parameters sits after 8 ticks.
	renderVoice(v, ms, 8)
	if !v.Active() {
		t.Fatalf("expected voice to remain active")
	}
	ref := newLFO(testSampleRate, r.LFOs[0])
	for i := 0; i < 8; i++ {
		ref.Tick()
	}
	if got, want := v.lfos[0].Tick(), ref.Tick(); got != want {
		t.Fatalf("expected the voice's LFO to advance once per rendered sample: next tick %v, want %v", got, want)
	}
}

func TestCrossfadeGainRampsAcrossKeyBoundary(t *testing.T) {
	r := baseRegion(200)
	r.XFadeKeyLo = region.Range{Lo: 56, Hi: 60}
	v := newTestVoice(r, monoSample(200), 58, 1, region.TriggerAttack)

	got := v.crossfadeGain()
	if got <= 0 || got >= 1 {
		t.Fatalf("expected a partial gain mid-crossfade, got %v", got)
	}

	below := newTestVoice(r, monoSample(200), 50, 1, region.TriggerAttack)
	if g := below.crossfadeGain(); g != 0 {
		t.Fatalf("expected zero gain below the fade-in range, got %v", g)
	}

	above := newTestVoice(r, monoSample(200), 70, 1, region.TriggerAttack)
	if g := above.crossfadeGain(); g != 1 {
		t.Fatalf("expected unity gain above the fade-in range, got %v", g)
	}
}

func TestCrossfadeGainDefaultsToUnityWhenUnconfigured(t *testing.T) {
	r := baseRegion(200)
	v := newTestVoice(r, monoSample(200), 60, 1, region.TriggerAttack)
	if g := v.crossfadeGain(); g != 1 {
		t.Fatalf("expected unity gain with no crossfade ranges configured, got %v", g)
	}
}

func TestPitchBendCentsScalesByBendUpAndBendDown(t *testing.T) {
	r := baseRegion(200)
	r.BendUp = 200
	r.BendDown = -300
	v := newTestVoice(r, monoSample(200), 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	ms.PitchBendEvent(0, 1)
	if got := v.pitchBendCents(ms); got != 200 {
		t.Fatalf("expected full bend-up to read %v cents, got %v", r.BendUp, got)
	}

	ms.PitchBendEvent(0, -1)
	if got := v.pitchBendCents(ms); got != r.BendDown {
		t.Fatalf("expected full bend-down to read %v cents, got %v", r.BendDown, got)
	}

	ms.PitchBendEvent(0, 0)
	if got := v.pitchBendCents(ms); got != 0 {
		t.Fatalf("expected centered bend to contribute no cents, got %v", got)
	}
}

func TestPerNoteBendOverridesChannelBend(t *testing.T) {
	r := baseRegion(200)
	r.BendUp = 100
	v := newTestVoice(r, monoSample(200), 60, 1, region.TriggerAttack)
	ms := midistate.New(testSampleRate)

	ms.PitchBendEvent(0, 1)
	ms.PerNotePitchBendEvent(0, 60, 0.5)
	if got := v.pitchBendCents(ms); got != 50 {
		t.Fatalf("expected the per-note bend override to win, got %v", got)
	}
}
