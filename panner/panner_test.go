package panner

import "testing"

func TestCenterPanGivesEqualPower(t *testing.T) {
	l, r := StereoGains(Law{Pan: 0})
	if !within(l, r, 1e-4) {
		t.Fatalf("expected equal gains at center pan, got l=%v r=%v", l, r)
	}
	sumSq := l*l + r*r
	if !within(sumSq, 1, 1e-3) {
		t.Fatalf("expected constant-power law to sum to unity, got %v", sumSq)
	}
}

func TestHardLeftSilencesRight(t *testing.T) {
	l, r := StereoGains(Law{Pan: -100})
	if r > 1e-3 {
		t.Fatalf("expected hard-left pan to silence the right channel, got %v", r)
	}
	if l < 0.99 {
		t.Fatalf("expected hard-left pan to give unity left gain, got %v", l)
	}
}

func TestCrossfadeGainClampsToUnitRange(t *testing.T) {
	if got := CrossfadeGain(Gain, -1); got != 0 {
		t.Fatalf("expected out-of-range t to clamp to 0, got %v", got)
	}
	if got := CrossfadeGain(Power, 2); got != 1 {
		t.Fatalf("expected out-of-range t to clamp to 1, got %v", got)
	}
}

func TestPowerCrossfadeAtMidpointIsLouderThanGain(t *testing.T) {
	g := CrossfadeGain(Gain, 0.5)
	p := CrossfadeGain(Power, 0.5)
	if p <= g {
		t.Fatalf("expected power-law midpoint (%v) above linear-gain midpoint (%v)", p, g)
	}
}

func within(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
