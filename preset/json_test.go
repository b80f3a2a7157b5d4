package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/sfzengine/panner"
	"github.com/cwbudde/sfzengine/region"
)

func TestBuildAppliesDefaultsAndOverrides(t *testing.T) {
	velLo := float32(1)
	velHi := float32(100)
	f := &File{
		SampleRate: 48000,
		MaxVoices:  16,
		BlockSize:  512,
		Regions: []RegionFile{
			{
				SampleRef:      "piano.wav",
				SampleEnd:      48000,
				PitchKeycenter: 60,
				Velocity:       &RangeFile{Lo: &velLo, Hi: &velHi},
				Trigger:        "release",
				OffMode:        "fast",
			},
		},
	}

	cfg, regions, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.SampleRate != 48000 || cfg.MaxVoices != 16 {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	r := regions[0]
	if r.Key != region.FullRange() {
		t.Fatalf("expected default full key range, got %+v", r.Key)
	}
	if r.Velocity.Lo != 1 || r.Velocity.Hi != 100 {
		t.Fatalf("expected overridden velocity range, got %+v", r.Velocity)
	}
	if r.Trigger != region.TriggerRelease {
		t.Fatalf("expected release trigger, got %v", r.Trigger)
	}
	if r.OffMode != region.OffFast {
		t.Fatalf("expected fast off mode, got %v", r.OffMode)
	}
	if r.Polyphony.Polyphony != region.Unlimited {
		t.Fatalf("expected unlimited polyphony by default, got %d", r.Polyphony.Polyphony)
	}
	if r.AmpEG.Sustain != 100 {
		t.Fatalf("expected default ampeg sustain 100, got %v", r.AmpEG.Sustain)
	}
}

func TestBuildRejectsUnknownTrigger(t *testing.T) {
	f := &File{
		SampleRate: 48000, MaxVoices: 1, BlockSize: 64,
		Regions: []RegionFile{{Trigger: "bogus"}},
	}
	if _, _, err := Build(f); err == nil {
		t.Fatalf("expected an error for an unrecognized trigger value")
	}
}

func TestBuildRejectsZeroSampleRate(t *testing.T) {
	f := &File{MaxVoices: 1, BlockSize: 64}
	if _, _, err := Build(f); err == nil {
		t.Fatalf("expected an error for sample_rate <= 0")
	}
}

func TestPolyphonyZeroOverrideIsPreservedNotTreatedAsUnset(t *testing.T) {
	zero := 0
	f := &File{
		SampleRate: 48000, MaxVoices: 1, BlockSize: 64,
		Regions: []RegionFile{{Polyphony: &PolyphonyFile{Polyphony: &zero}}},
	}
	_, regions, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if regions[0].Polyphony.Polyphony != 0 {
		t.Fatalf("expected an explicit polyphony=0 override to survive as 0, got %d", regions[0].Polyphony.Polyphony)
	}
}

func TestBuildParsesCrossfadeRangesAndSustainCancelsRelease(t *testing.T) {
	lo := float32(56)
	hi := float32(60)
	f := &File{
		SampleRate: 48000, MaxVoices: 1, BlockSize: 64,
		Regions: []RegionFile{{
			XFadeKeyLo:            &RangeFile{Lo: &lo, Hi: &hi},
			XFadeCurve:            "power",
			SustainCancelsRelease: true,
		}},
	}
	_, regions, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := regions[0]
	if r.XFadeKeyLo.Lo != 56 || r.XFadeKeyLo.Hi != 60 {
		t.Fatalf("expected xfade_key_lo to be parsed, got %+v", r.XFadeKeyLo)
	}
	if r.XFadeCurve != panner.Power {
		t.Fatalf("expected power crossfade curve, got %v", r.XFadeCurve)
	}
	if !r.SustainCancelsRelease {
		t.Fatalf("expected sustain_cancels_release to be parsed as true")
	}
}

func TestBuildRejectsUnknownXFadeCurve(t *testing.T) {
	f := &File{
		SampleRate: 48000, MaxVoices: 1, BlockSize: 64,
		Regions: []RegionFile{{XFadeCurve: "bogus"}},
	}
	if _, _, err := Build(f); err == nil {
		t.Fatalf("expected an error for an unrecognized xfade_curve value")
	}
}

func TestLoadJSONReadsFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instrument.json")
	const content = `{
		"sample_rate": 48000,
		"max_voices": 8,
		"block_size": 256,
		"regions": [{"sample": "a.wav", "sample_end": 1000, "pitch_keycenter": 60}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, regions, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if cfg.MaxVoices != 8 || len(regions) != 1 {
		t.Fatalf("unexpected load result cfg=%+v regions=%d", cfg, len(regions))
	}
}
