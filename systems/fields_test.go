package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/pool"
)

func TestFieldOffset(t *testing.T) {
	g := newFieldGrid(320, 128)

	tests := []struct {
		name string
		p    components.Vec2
		want uint32
	}{
		{"bottom left corner", components.Vec2{X: -320, Y: -320}, 0},
		{"first cell", components.Vec2{X: -316, Y: -316}, 0},
		{"second column", components.Vec2{X: -314, Y: -320}, 1},
		{"second row", components.Vec2{X: -320, Y: -314}, 128},
		{"beyond top right", components.Vec2{X: 1000, Y: 1000}, 128*128 - 1},
		{"beyond bottom left", components.Vec2{X: -1000, Y: -1000}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.Offset(tc.p); got != tc.want {
				t.Errorf("Offset(%+v) = %d, want %d", tc.p, got, tc.want)
			}
		})
	}
}

func TestFieldCentreRoundTrip(t *testing.T) {
	g := newFieldGrid(320, 128)
	for _, i := range []uint32{0, 1, 127, 128, 5000, 128*128 - 1} {
		if got := g.Offset(g.Centre(i)); got != i {
			t.Errorf("Offset(Centre(%d)) = %d", i, got)
		}
	}
}

func TestLightFieldDeterministic(t *testing.T) {
	a := NewLightField(320, 128, 1234)
	b := NewLightField(320, 128, 1234)

	for i, v := range a.Bytes() {
		if b.Bytes()[i] != v {
			t.Fatalf("cell %d differs: %d vs %d", i, v, b.Bytes()[i])
		}
	}
	if a.Z() != float32(lightInitialZ) || a.Row() != 0 {
		t.Errorf("initial state z=%v row=%d", a.Z(), a.Row())
	}
}

func TestLightFieldStepAdvancesZOnWrap(t *testing.T) {
	p := pool.New("light-test", 1)
	lf := NewLightField(320, 16, 7)
	z0 := lf.Z()

	for range 15 {
		lf.Step(p, 8, 0.5)
	}
	if lf.Row() != 15 || lf.Z() != z0 {
		t.Fatalf("after 15 steps row=%d z=%v", lf.Row(), lf.Z())
	}

	lf.Step(p, 8, 0.5)
	if lf.Row() != 0 {
		t.Errorf("row = %d, want 0 after wrap", lf.Row())
	}
	if want := z0 + 0.5*16; lf.Z() != want {
		t.Errorf("z = %v, want %v", lf.Z(), want)
	}
}

func TestLightFieldFlash(t *testing.T) {
	lf := NewLightField(320, 128, 99)
	centre := components.Vec2{}
	before := lf.Red(centre)

	lf.Flash(centre, true)
	if got := lf.Red(centre); got < before {
		t.Errorf("flash darkened centre: %d -> %d", before, got)
	}

	lf.Flash(centre, false)
	if got := lf.Red(centre); got != before {
		t.Errorf("after removing flash = %d, want %d", got, before)
	}
}

func TestWasteField(t *testing.T) {
	p := pool.New("waste-test", 1)
	wf := NewWasteField(320, 128)

	wf.Deposit(3, 100)
	wf.Deposit(4, math.MaxUint32+10)
	if wf.At(4) != math.MaxUint32 {
		t.Errorf("deposit did not saturate: %d", wf.At(4))
	}

	wf.Eat(3, 30)
	wf.Eat(3, 30)
	wf.Eat(5, 50)
	wf.Drain(p, 64)

	if wf.At(3) != 40 {
		t.Errorf("cell 3 = %d, want 40", wf.At(3))
	}
	if wf.At(5) != 0 {
		t.Errorf("cell 5 = %d, want 0 (drain never underflows)", wf.At(5))
	}

	// The accumulator is reset by Drain.
	wf.Drain(p, 64)
	if wf.At(3) != 40 {
		t.Errorf("second drain changed cell 3 to %d", wf.At(3))
	}

	if got, want := wf.Total(), uint64(40)+math.MaxUint32; got != want {
		t.Errorf("Total = %d, want %d", got, want)
	}

	wf.Clear()
	if wf.Total() != 0 {
		t.Errorf("Total after Clear = %d", wf.Total())
	}
}
