package bus

import "testing"

func TestBusAddAccumulates(t *testing.T) {
	b := NewBus(4)
	b.Add(0, 0.5, -0.5)
	b.Add(0, 0.25, 0.25)
	if b.Left[0] != 0.75 {
		t.Fatalf("expected accumulated left 0.75, got %v", b.Left[0])
	}
	if b.Right[0] != -0.25 {
		t.Fatalf("expected accumulated right -0.25, got %v", b.Right[0])
	}
}

func TestClearZeroesBus(t *testing.T) {
	b := NewBus(4)
	b.Add(1, 1, 1)
	b.Clear()
	if b.Left[1] != 0 || b.Right[1] != 0 {
		t.Fatalf("expected Clear to zero accumulated samples")
	}
}

func TestEffectBusWithoutKernelPassesThrough(t *testing.T) {
	eb, err := NewEffectBus(8, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eb.Add(0, 1, 1)
	if err := eb.Process(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eb.Left[0] != 1 {
		t.Fatalf("expected nil-kernel bus to pass through unconvolved, got %v", eb.Left[0])
	}
}

func TestMixerMixDownSumsMainAndEffects(t *testing.T) {
	m, err := NewMixer(8, [][]float64{nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Main.Add(0, 0.5, 0.5)
	m.Effects[0].Add(0, 0.25, 0.25)

	left := make([]float32, 8)
	right := make([]float32, 8)
	if err := m.MixDown(left, right); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if left[0] != 0.75 || right[0] != 0.75 {
		t.Fatalf("expected mixdown to sum main+effect, got left=%v right=%v", left[0], right[0])
	}
}
