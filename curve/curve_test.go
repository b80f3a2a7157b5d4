package curve

import "testing"

func TestLinearCurveIsIdentity(t *testing.T) {
	tbl := NewDefaultTable()
	for _, x := range []float32{0, 0.1, 0.37, 0.5, 0.9, 1.0} {
		got := tbl.Apply(Linear, x)
		if diff := got - x; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("linear curve at %v: got %v, want %v", x, got, x)
		}
	}
}

func TestConcaveCurveIsBelowIdentityInInterior(t *testing.T) {
	tbl := NewDefaultTable()
	if got := tbl.Apply(Concave, 0.5); got >= 0.5 {
		t.Fatalf("expected concave(0.5) < 0.5, got %v", got)
	}
}

func TestOutOfRangeCurveIndexFallsBackToLinear(t *testing.T) {
	tbl := NewDefaultTable()
	got := tbl.Apply(999, 0.5)
	if diff := got - 0.5; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected fallback to linear curve, got %v", got)
	}
}
