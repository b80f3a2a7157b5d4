// Package preset loads a JSON instrument description into a Region table
// and engine Config. This is a minimal field-by-field loader, not a
// mapping-language parser: it has no opcode grammar, no inheritance chain
// (global/master/group opcode layering), and no key/value opcode syntax —
// regions are specified as plain JSON objects. The `.sfz`-syntax parser
// itself is an external collaborator, out of scope for this module.
package preset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/sfzengine/engine"
	"github.com/cwbudde/sfzengine/panner"
	"github.com/cwbudde/sfzengine/region"
)

// File is the top-level JSON schema: engine-wide defaults plus a flat
// region table.
type File struct {
	SampleRate  float64      `json:"sample_rate"`
	MaxVoices   int          `json:"max_voices"`
	BlockSize   int          `json:"block_size"`
	Quality     int          `json:"quality"`
	BPM         float32      `json:"bpm"`
	KeySwitchLo *int         `json:"key_switch_lo"`
	KeySwitchHi *int         `json:"key_switch_hi"`
	Seed        int64        `json:"seed"`
	Regions     []RegionFile `json:"regions"`
}

// RangeFile is the JSON shape of an inclusive [lo,hi] range.
type RangeFile struct {
	Lo *float32 `json:"lo"`
	Hi *float32 `json:"hi"`
}

// CCConditionFile constrains a region on a controller value.
type CCConditionFile struct {
	CC int     `json:"cc"`
	Lo float32 `json:"lo"`
	Hi float32 `json:"hi"`
}

// EGFile is the JSON shape of a classic envelope's parameters.
type EGFile struct {
	Delay    float32 `json:"delay"`
	Attack   float32 `json:"attack"`
	Hold     float32 `json:"hold"`
	Decay    float32 `json:"decay"`
	Sustain  float32 `json:"sustain"`
	Release  float32 `json:"release"`
}

// LoopFile is the JSON shape of a region's loop descriptor.
type LoopFile struct {
	Mode      string `json:"mode"` // "none", "one_shot", "continuous", "sustain"
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Crossfade int64  `json:"crossfade"`
	Count     int    `json:"count"`
}

// KeySwitchFile is the JSON shape of a region's key-switch gating.
type KeySwitchFile struct {
	Enabled bool `json:"enabled"`
	Last    *int `json:"last"`
	Down    *int `json:"down"`
	Up      *int `json:"up"`
}

// PolyphonyFile is the JSON shape of a region's concurrent-voice caps.
// A nil field means unlimited, matching region.Unlimited.
type PolyphonyFile struct {
	Polyphony     *int `json:"polyphony"`
	GroupPoly     *int `json:"group_poly"`
	NotePolyphony *int `json:"note_polyphony"`
	SelfMask      bool `json:"note_selfmask"`
}

// RegionFile is the JSON shape of one region. Fields absent from the input
// keep the Go zero value (or region.FullRange()/region.Unlimited where a
// zero value would otherwise misbehave, applied in toRegion).
type RegionFile struct {
	SampleRef      string            `json:"sample"`
	SampleEnd      int64             `json:"sample_end"`
	Key            *RangeFile        `json:"key_range"`
	Velocity       *RangeFile        `json:"vel_range"`
	PitchKeycenter int               `json:"pitch_keycenter"`
	PitchKeytrack  *float32          `json:"pitch_keytrack"`
	Transpose      int               `json:"transpose"`
	Tune           float32           `json:"tune"`
	Trigger        string            `json:"trigger"` // "attack","release","first","legato","release_key"
	SeqPosition    int               `json:"seq_position"`
	SeqLength      int               `json:"seq_length"`
	Group          int               `json:"group"`
	OffBy          int               `json:"off_by"`
	OffMode        string            `json:"off_mode"` // "normal","fast","time"
	OffTime        float32           `json:"off_time"`
	AmpEG          *EGFile           `json:"ampeg"`
	Loop           *LoopFile         `json:"loop"`
	KeySwitch      *KeySwitchFile    `json:"key_switch"`
	CCConds        []CCConditionFile `json:"cc_conds"`
	StartCC        []CCConditionFile `json:"start_cc"`
	Volume         float32           `json:"volume"`
	Amplitude      *float32          `json:"amplitude"`
	Pan            float32           `json:"pan"`
	RtDecay        float32           `json:"rt_decay"`
	Polyphony      *PolyphonyFile    `json:"polyphony"`

	XFadeKeyLo            *RangeFile `json:"xfade_key_lo"`
	XFadeKeyHi            *RangeFile `json:"xfade_key_hi"`
	XFadeVelLo            *RangeFile `json:"xfade_vel_lo"`
	XFadeVelHi            *RangeFile `json:"xfade_vel_hi"`
	XFadeCurve            string     `json:"xfade_curve"` // "gain" (default) or "power"
	SustainCancelsRelease bool       `json:"sustain_cancels_release"`
}

// LoadJSON reads path and builds an engine Config plus Region table from
// it. Errors are returned, never logged (the loader has no opinion on
// where diagnostics go).
func LoadJSON(path string) (engine.Config, []*region.Region, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, nil, fmt.Errorf("preset: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return engine.Config{}, nil, fmt.Errorf("preset: parsing %s: %w", path, err)
	}
	return Build(&f)
}

// Build converts an already-parsed File into an engine Config and Region
// table, validating field-by-field the way algo-piano's ApplyFile does.
func Build(f *File) (engine.Config, []*region.Region, error) {
	cfg := engine.Config{
		SampleRate: f.SampleRate,
		MaxVoices:  f.MaxVoices,
		BlockSize:  f.BlockSize,
		Quality:    f.Quality,
		BPM:        f.BPM,
		Seed:       f.Seed,
	}
	if cfg.SampleRate <= 0 {
		return engine.Config{}, nil, fmt.Errorf("preset: sample_rate must be > 0")
	}
	if cfg.MaxVoices <= 0 {
		return engine.Config{}, nil, fmt.Errorf("preset: max_voices must be > 0")
	}
	if cfg.BlockSize <= 0 {
		return engine.Config{}, nil, fmt.Errorf("preset: block_size must be > 0")
	}
	if f.KeySwitchLo != nil {
		cfg.KeySwitchLo = *f.KeySwitchLo
	}
	if f.KeySwitchHi != nil {
		cfg.KeySwitchHi = *f.KeySwitchHi
	} else {
		cfg.KeySwitchHi = cfg.KeySwitchLo - 1 // disabled, per Config.KeySwitchHi < Lo convention
	}

	regions := make([]*region.Region, len(f.Regions))
	for i, rf := range f.Regions {
		r, err := toRegion(i, &rf)
		if err != nil {
			return engine.Config{}, nil, err
		}
		regions[i] = r
	}
	return cfg, regions, nil
}

func toRegion(id int, rf *RegionFile) (*region.Region, error) {
	r := &region.Region{
		ID:             id,
		SampleRef:      rf.SampleRef,
		SampleEnd:      rf.SampleEnd,
		Key:            region.FullRange(),
		Velocity:       region.FullRange(),
		PitchKeycenter: rf.PitchKeycenter,
		PitchKeytrack:  100,
		Transpose:      rf.Transpose,
		Tune:           rf.Tune,
		SeqPosition:    rf.SeqPosition,
		SeqLength:      rf.SeqLength,
		Group:          rf.Group,
		OffBy:          rf.OffBy,
		OffTime:        rf.OffTime,
		Volume:         rf.Volume,
		Amplitude:      1,
		Pan:            rf.Pan,
		RtDecay:        rf.RtDecay,
		Scaling:        region.ScalingLevels{Global: 1, Master: 1, Group: 1},
		AmpEGIsFlex:    -1,
		Polyphony: region.PolyphonyLimits{
			Polyphony:     region.Unlimited,
			GroupPoly:     region.Unlimited,
			NotePolyphony: region.Unlimited,
		},
	}

	if rf.Key != nil {
		r.Key = toRange(*rf.Key, 0, 127)
	}
	if rf.Velocity != nil {
		r.Velocity = toRange(*rf.Velocity, 0, 127)
	}
	if rf.PitchKeytrack != nil {
		r.PitchKeytrack = *rf.PitchKeytrack
	}
	if rf.Amplitude != nil {
		if *rf.Amplitude < 0 {
			return nil, fmt.Errorf("preset: region %d amplitude must be >= 0", id)
		}
		r.Amplitude = *rf.Amplitude
	}

	trigger, err := parseTrigger(rf.Trigger)
	if err != nil {
		return nil, fmt.Errorf("preset: region %d: %w", id, err)
	}
	r.Trigger = trigger

	offMode, err := parseOffMode(rf.OffMode)
	if err != nil {
		return nil, fmt.Errorf("preset: region %d: %w", id, err)
	}
	r.OffMode = offMode

	if rf.AmpEG != nil {
		r.AmpEG = region.EGParams{
			Delay: rf.AmpEG.Delay, Attack: rf.AmpEG.Attack, Hold: rf.AmpEG.Hold,
			Decay: rf.AmpEG.Decay, Sustain: rf.AmpEG.Sustain, Release: rf.AmpEG.Release,
		}
	} else {
		r.AmpEG = region.EGParams{Sustain: 100, Release: 0.01}
	}

	if rf.Loop != nil {
		mode, err := parseLoopMode(rf.Loop.Mode)
		if err != nil {
			return nil, fmt.Errorf("preset: region %d: %w", id, err)
		}
		r.Loop = region.LoopDescriptor{
			Mode: mode, Start: rf.Loop.Start, End: rf.Loop.End,
			Crossfade: rf.Loop.Crossfade, Count: rf.Loop.Count,
		}
	}

	if rf.KeySwitch != nil {
		ks := region.KeySwitch{Enabled: rf.KeySwitch.Enabled}
		if rf.KeySwitch.Last != nil {
			ks.HasLast, ks.Last = true, *rf.KeySwitch.Last
		}
		if rf.KeySwitch.Down != nil {
			ks.HasDown, ks.Down = true, *rf.KeySwitch.Down
		}
		if rf.KeySwitch.Up != nil {
			ks.HasUp, ks.Up = true, *rf.KeySwitch.Up
		}
		r.KeySwitch = ks
	}

	for _, c := range rf.CCConds {
		r.CCConds = append(r.CCConds, region.CCCondition{CC: c.CC, Lo: c.Lo, Hi: c.Hi})
	}
	for _, c := range rf.StartCC {
		r.StartCC = append(r.StartCC, region.CCCondition{CC: c.CC, Lo: c.Lo, Hi: c.Hi})
	}

	if rf.XFadeKeyLo != nil {
		r.XFadeKeyLo = toRange(*rf.XFadeKeyLo, 0, 0)
	}
	if rf.XFadeKeyHi != nil {
		r.XFadeKeyHi = toRange(*rf.XFadeKeyHi, 0, 0)
	}
	if rf.XFadeVelLo != nil {
		r.XFadeVelLo = toRange(*rf.XFadeVelLo, 0, 0)
	}
	if rf.XFadeVelHi != nil {
		r.XFadeVelHi = toRange(*rf.XFadeVelHi, 0, 0)
	}
	xfadeCurve, err := parseXFadeCurve(rf.XFadeCurve)
	if err != nil {
		return nil, fmt.Errorf("preset: region %d: %w", id, err)
	}
	r.XFadeCurve = xfadeCurve
	r.SustainCancelsRelease = rf.SustainCancelsRelease

	if rf.Polyphony != nil {
		if rf.Polyphony.Polyphony != nil {
			r.Polyphony.Polyphony = *rf.Polyphony.Polyphony
		}
		if rf.Polyphony.GroupPoly != nil {
			r.Polyphony.GroupPoly = *rf.Polyphony.GroupPoly
		}
		if rf.Polyphony.NotePolyphony != nil {
			r.Polyphony.NotePolyphony = *rf.Polyphony.NotePolyphony
		}
		r.Polyphony.SelfMask = rf.Polyphony.SelfMask
	}

	return r, nil
}

func toRange(rf RangeFile, defLo, defHi float32) region.Range {
	lo, hi := defLo, defHi
	if rf.Lo != nil {
		lo = *rf.Lo
	}
	if rf.Hi != nil {
		hi = *rf.Hi
	}
	return region.Range{Lo: lo, Hi: hi}
}

func parseTrigger(s string) (region.TriggerType, error) {
	switch s {
	case "", "attack":
		return region.TriggerAttack, nil
	case "release":
		return region.TriggerRelease, nil
	case "first":
		return region.TriggerFirst, nil
	case "legato":
		return region.TriggerLegato, nil
	case "release_key":
		return region.TriggerReleaseKey, nil
	default:
		return 0, fmt.Errorf("unknown trigger %q", s)
	}
}

func parseOffMode(s string) (region.OffMode, error) {
	switch s {
	case "", "normal":
		return region.OffNormal, nil
	case "fast":
		return region.OffFast, nil
	case "time":
		return region.OffTime, nil
	default:
		return 0, fmt.Errorf("unknown off_mode %q", s)
	}
}

func parseXFadeCurve(s string) (panner.XFadeCurve, error) {
	switch s {
	case "", "gain":
		return panner.Gain, nil
	case "power":
		return panner.Power, nil
	default:
		return 0, fmt.Errorf("unknown xfade_curve %q", s)
	}
}

func parseLoopMode(s string) (region.LoopMode, error) {
	switch s {
	case "", "none":
		return region.LoopNone, nil
	case "one_shot":
		return region.LoopOneShot, nil
	case "continuous":
		return region.LoopContinuous, nil
	case "sustain":
		return region.LoopSustain, nil
	default:
		return 0, fmt.Errorf("unknown loop mode %q", s)
	}
}
