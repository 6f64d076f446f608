package game

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/pthm-cable/phylo/components"
	"github.com/pthm-cable/phylo/config"
)

func TestHueToRGB(t *testing.T) {
	tests := []struct {
		name string
		hsv  [4]float32
		want [4]float32
	}{
		{"red", [4]float32{0, 1, 1, 0}, [4]float32{1, 0, 0, 1}},
		{"green", [4]float32{2, 1, 1, 0}, [4]float32{0, 1, 0, 1}},
		{"blue", [4]float32{4, 1, 1, 0}, [4]float32{0, 0, 1, 1}},
		{"wrapped red", [4]float32{6, 1, 1, 0}, [4]float32{1, 0, 0, 1}},
		{"grey", [4]float32{-1, 1, 0.5, 0}, [4]float32{0.5, 0.5, 0.5, 1}},
		{"desaturated", [4]float32{3, 0, 0.8, 0}, [4]float32{0.8, 0.8, 0.8, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hueToRGB(tt.hsv)
			for k := range got {
				if math.Abs(float64(got[k]-tt.want[k])) > 1e-6 {
					t.Fatalf("hueToRGB(%v) = %v, want %v", tt.hsv, got, tt.want)
				}
			}
		})
	}
}

func TestEffectivePigments(t *testing.T) {
	tests := []struct {
		name             string
		green, red, blue float32
		wg, wr, wb       float32
	}{
		{"blue excludes others", 1, 1, 1, 0, 0, 1},
		{"green flattens red", 1, 0.5, 0, 1, 0.25, 0},
		{"negatives clipped", -1, 1, 0, 0, 1, 0},
		{"none", 0, 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &components.Cell{Green: tt.green, Red: tt.red, Blue: tt.blue}
			g, r, b := effectivePigments(c)
			if math.Abs(float64(g-tt.wg)) > 1e-6 || math.Abs(float64(r-tt.wr)) > 1e-6 || math.Abs(float64(b-tt.wb)) > 1e-6 {
				t.Errorf("effectivePigments = (%v, %v, %v), want (%v, %v, %v)", g, r, b, tt.wg, tt.wr, tt.wb)
			}
		})
	}
}

func TestPaintFollowsRenderMode(t *testing.T) {
	s := NewSimulation(testConfig(t, 1), "painted wall")
	s.Step()
	c := &s.Cells()[0]
	c.Dye = [4]float32{2, 1, 1, 0}

	s.SetRenderMode(config.RenderDye)
	s.StepLite()
	ri := s.RenderInstances()[c.RenderIdx]
	if ri.Color1[0] != 0 || ri.Color1[1] != 1 || ri.Color1[2] != 0 {
		t.Errorf("dye colour = %v, want green", ri.Color1)
	}
	if ri.Color1[3] != c.Integrity {
		t.Errorf("alpha = %v, want integrity %v", ri.Color1[3], c.Integrity)
	}
}

func TestRandomName(t *testing.T) {
	a := RandomName(rand.New(rand.NewPCG(3, 4)))
	b := RandomName(rand.New(rand.NewPCG(3, 4)))
	if a != b {
		t.Errorf("same seed gave %q and %q", a, b)
	}
	words := strings.Fields(a)
	if len(words) != 2 {
		t.Fatalf("RandomName = %q, want two words", a)
	}
	if !slices.Contains(adjectives, words[0]) || !slices.Contains(nouns, words[1]) {
		t.Errorf("RandomName = %q, words not drawn from the lists", a)
	}
}

func TestHousekeepingKillsExhaustedCell(t *testing.T) {
	tests := []struct {
		name    string
		touched uint32
	}{
		{"untouched", 0},
		{"crowded", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulation(testConfig(t, 1), "last ember")
			s.Step()

			clear(s.LightField().Bytes())
			s.waste.Clear()
			s.illumination = 0
			s.machine.Queues().Reset()

			c := s.cells.At(0)
			e := c.Entity
			phys := s.physics.At(c.PhysicsIdx)
			c.Energy = 1
			c.MoveState = false
			c.GrowthPoint = 2
			phys.TouchedThisFrame = tt.touched

			s.housekeep(0, 0)

			if c.Energy != 0 {
				t.Fatalf("energy after housekeeping = %d, want 0", c.Energy)
			}
			if kills := s.machine.Queue(0).Kills; len(kills) != 1 || kills[0].Key != c.ID {
				t.Fatalf("queued kills = %+v, want one for cell %d", kills, c.ID)
			}

			s.dispatch()
			s.destroyQueued()
			if s.world.Alive(e) {
				t.Error("exhausted cell survived dispatch and destroy")
			}
		})
	}
}
