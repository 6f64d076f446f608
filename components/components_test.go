package components

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestEnergySaturates(t *testing.T) {
	tests := []struct {
		name string
		got  Energy
		want Energy
	}{
		{"sub below zero", Energy(5).Sub(9), 0},
		{"sub exact", Energy(5).Sub(5), 0},
		{"sub", Energy(5).Sub(2), 3},
		{"add overflow", Energy(math.MaxUint64 - 1).Add(5), math.MaxUint64},
		{"add", Energy(1).Add(2), 3},
		{"min", Energy(10).Min(4), 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %d, want %d", tc.got, tc.want)
			}
		})
	}
}

func TestCapacityFor(t *testing.T) {
	if got := CapacityFor(1); got != 30_000_000 {
		t.Errorf("CapacityFor(1) = %d, want 30000000", got)
	}
	if CapacityFor(8) <= CapacityFor(1) {
		t.Error("capacity should grow with volume")
	}
}

func TestSetRadiusClampsEnergy(t *testing.T) {
	var c Cell
	var phys PhysicsRecord

	c.SetRadius(2, &phys)
	c.Energy = Energy(c.Capacity)

	c.SetRadius(1, &phys)

	if uint64(c.Energy) != c.Capacity {
		t.Errorf("energy %d exceeds capacity %d", c.Energy, c.Capacity)
	}
	if phys.Radius != 1 {
		t.Errorf("physics radius = %v, want 1", phys.Radius)
	}
	if c.Volume != 1 || c.SuperVolume != 1 || c.Area != 1 {
		t.Errorf("volume terms = %v %v %v, want 1", c.Volume, c.SuperVolume, c.Area)
	}
}

func TestNewRandomDeterministic(t *testing.T) {
	_, a := NewRandom(rand.New(rand.NewPCG(1, 2)))
	_, b := NewRandom(rand.New(rand.NewPCG(1, 2)))

	for i := 0; i < 8; i++ {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestVec2Normalized(t *testing.T) {
	v := Vec2{3, 4}.Normalized()
	if math.Abs(float64(v.Len())-1) > 1e-6 {
		t.Errorf("len = %v, want 1", v.Len())
	}
	if !(Vec2{}).Normalized().IsZero() {
		t.Error("zero vector should stay zero")
	}
}
