package engine

import (
	"testing"

	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/region"
	"github.com/cwbudde/sfzengine/sampleplayer"
)

// fakeSamples resolves every ref to the same long constant-1 mono sample,
// long enough that none of these tests run it to its natural end.
type fakeSamples struct {
	sample *sampleplayer.Sample
}

func newFakeSamples(frames int) *fakeSamples {
	data := make([]float32, frames)
	for i := range data {
		data[i] = 1
	}
	return &fakeSamples{sample: &sampleplayer.Sample{
		Channels:   [][]float32{data},
		SampleRate: testSampleRate,
		NumFrames:  int64(frames),
	}}
}

func (f *fakeSamples) Sample(ref string) *sampleplayer.Sample { return f.sample }

func vmRegion(frames int) *region.Region {
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
		Loop:           region.LoopDescriptor{Mode: region.LoopContinuous, Start: 0, End: int64(frames) - 1},
		Polyphony: region.PolyphonyLimits{
			Polyphony:     region.Unlimited,
			GroupPoly:     region.Unlimited,
			NotePolyphony: region.Unlimited,
		},
	}
}

func newTestManager(t *testing.T, maxVoices int, regions []*region.Region) *VoiceManager {
	t.Helper()
	cfg := Config{SampleRate: testSampleRate, MaxVoices: maxVoices, BlockSize: 4096, Quality: 10}
	vm, err := NewVoiceManager(cfg, regions, newFakeSamples(48000), curve.NewDefaultTable())
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}
	return vm
}

func renderManager(vm *VoiceManager, n int) {
	block := vm.cfg.BlockSize
	left := make([]float32, block)
	right := make([]float32, block)
	for n > 0 {
		m := n
		if m > block {
			m = block
		}
		if err := vm.RenderBlock(m, left, right); err != nil {
			panic(err)
		}
		n -= m
	}
}

func TestEmptyRegionTableNoteOnIsNoOp(t *testing.T) {
	vm := newTestManager(t, 8, nil)
	started := vm.NoteOn(0, 60, 1)
	if started != 0 {
		t.Fatalf("expected no regions to match, got %d voices started", started)
	}
	if vm.ActiveVoiceCount() != 0 {
		t.Fatalf("expected no active voices")
	}
}

func TestPolyphonyZeroNeverStartsAVoice(t *testing.T) {
	r := vmRegion(48000)
	r.Polyphony.Polyphony = 0
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.NoteOn(0, 60, 1)
	if vm.ActiveVoiceCount() != 0 {
		t.Fatalf("expected polyphony=0 region to never start a voice, got %d active", vm.ActiveVoiceCount())
	}
}

func TestOneShotLoopIgnoresNoteOff(t *testing.T) {
	r := vmRegion(48000)
	r.Loop = region.LoopDescriptor{Mode: region.LoopOneShot}
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.NoteOn(0, 60, 1)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected a voice to start")
	}
	vm.NoteOff(0, 60, 0)
	renderManager(vm, 100)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected one-shot voice to keep playing through note-off")
	}
}

func TestGroupChokeSilencesVictimWithinFastOffWindow(t *testing.T) {
	victim := vmRegion(48000)
	victim.Group = 1
	victim.Key = region.Range{Lo: 60, Hi: 60}
	victim.OffMode = region.OffFast

	choker := vmRegion(48000)
	choker.Group = 2
	choker.OffBy = 1
	choker.Key = region.Range{Lo: 61, Hi: 61}

	vm := newTestManager(t, 8, []*region.Region{victim, choker})

	vm.NoteOn(0, 60, 1)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected victim voice to start")
	}

	vm.NoteOn(0, 61, 1)
	if vm.ActiveVoiceCount() != 2 {
		t.Fatalf("expected both victim and choker voices active right after choke fires")
	}

	renderManager(vm, int(0.005*testSampleRate)+2)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected group-1 voice to fall silent and free within the fast-off window, got %d active", vm.ActiveVoiceCount())
	}
}

func TestSelfMaskStealsLowerLevelVoiceEvenWithFreeSlots(t *testing.T) {
	r := vmRegion(48000)
	r.Polyphony.NotePolyphony = 1
	r.Polyphony.SelfMask = true
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.NoteOn(0, 60, 0.5)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected first voice to start")
	}

	vm.NoteOn(1024, 60, 1.0)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected note_selfmask=on to cap note 60 to a single survivor even with free pool slots, got %d active", vm.ActiveVoiceCount())
	}
}

func TestSustainDefersReleaseUntilPedalUp(t *testing.T) {
	r := vmRegion(48000)
	r.SustainCancelsRelease = true
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.CC(0, 64, 1.0) // sustain down
	vm.NoteOn(0, 60, 1)
	vm.NoteOff(10, 60, 0)
	renderManager(vm, 200)
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected release to be deferred while sustain is held")
	}

	vm.CC(0, 64, 0.0) // sustain up
	renderManager(vm, int(testSampleRate))
	if vm.ActiveVoiceCount() != 0 {
		t.Fatalf("expected voice to release and free once sustain lifts")
	}
}

func TestSustainHasNoEffectWithoutSustainCancelsRelease(t *testing.T) {
	r := vmRegion(48000) // SustainCancelsRelease left false: the default
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.CC(0, 64, 1.0) // sustain down
	vm.NoteOn(0, 60, 1)
	vm.NoteOff(10, 60, 0)
	renderManager(vm, int(testSampleRate))
	if vm.ActiveVoiceCount() != 0 {
		t.Fatalf("expected note-off to release immediately when the region did not opt into sustain deferral")
	}
}

func TestStartCCFiresOnlyOnCrossingIntoRange(t *testing.T) {
	r := vmRegion(48000)
	r.StartCC = []region.CCCondition{{CC: 20, Lo: 0.5, Hi: 1.0}}
	vm := newTestManager(t, 8, []*region.Region{r})

	vm.CC(0, 20, 0.2) // stays outside [0.5,1.0], no voice
	if vm.ActiveVoiceCount() != 0 {
		t.Fatalf("expected no voice while cc stays outside the trigger range")
	}

	vm.CC(0, 20, 0.8) // crosses into range: fires
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected crossing into the start_cc range to fire a voice")
	}

	vm.CC(0, 20, 0.9) // already inside range: must not re-fire
	if vm.ActiveVoiceCount() != 1 {
		t.Fatalf("expected no re-trigger while the cc stays inside the range")
	}
}
