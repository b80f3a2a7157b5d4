package modmatrix

import (
	"testing"

	"github.com/cwbudde/sfzengine/curve"
	"github.com/cwbudde/sfzengine/midistate"
	"github.com/cwbudde/sfzengine/region"
)

func TestControllerSourceAddsIntoTargetScaledByDepth(t *testing.T) {
	r := &region.Region{}
	r.AddConnection(region.Connection{
		Source:      region.Controller(74, curve.Linear, 0, 0),
		Target:      region.ModKey{Kind: region.ModKeyFilCutoff, Index: 0},
		SourceDepth: 2400,
	})
	m := New(48000, r, curve.NewDefaultTable(), 60)

	ms := midistate.New(48000)
	ms.CCEvent(0, 74, 0.5)

	res := m.Evaluate(ms, 0, 0, nil)
	got := res[region.ModKey{Kind: region.ModKeyFilCutoff, Index: 0}]
	want := float32(0.5 * 2400)
	if !within(got, want, 1.0) {
		t.Fatalf("expected cutoff delta ~%v, got %v", want, got)
	}
}

func TestMissingGeneratorSourceContributesZero(t *testing.T) {
	r := &region.Region{}
	r.AddConnection(region.Connection{
		Source:      region.ModKey{Kind: region.ModKeyAmpLFO},
		Target:      region.ModKey{Kind: region.ModKeyAmplitude},
		SourceDepth: 1,
	})
	m := New(48000, r, curve.NewDefaultTable(), 60)
	ms := midistate.New(48000)

	res := m.Evaluate(ms, 0, 0, nil)
	if _, ok := res[region.ModKey{Kind: region.ModKeyAmplitude}]; ok {
		t.Fatalf("expected no contribution when generator source is unavailable")
	}
}

func TestDepthModulatorScalesContribution(t *testing.T) {
	r := &region.Region{}
	depthSrc := region.ModKey{Kind: region.ModKeyController, Index: 1}
	r.AddConnection(region.Connection{
		Source:         region.ModKey{Kind: region.ModKeyAmpLFO},
		Target:         region.ModKey{Kind: region.ModKeyAmplitude},
		SourceDepthMod: &depthSrc,
	})
	m := New(48000, r, curve.NewDefaultTable(), 60)
	ms := midistate.New(48000)
	ms.CCEvent(0, 1, 0.25)

	gen := func(key region.ModKey) (float32, bool) {
		if key.Kind == region.ModKeyAmpLFO {
			return 1.0, true
		}
		return 0, false
	}
	res := m.Evaluate(ms, 0, 0, gen)
	got := res[region.ModKey{Kind: region.ModKeyAmplitude}]
	if got <= 0 {
		t.Fatalf("expected positive depth-modulated contribution, got %v", got)
	}
}

func within(got, want, tol float32) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tol
}
