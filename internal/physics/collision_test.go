package physics

import (
	"testing"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

func TestResolveCollisionsStationaryCarsDoNothing(t *testing.T) {
	cfg := testCarConfig()
	a := &model.CarState{X: 100, Y: 100}
	b := &model.CarState{X: 100.1, Y: 100}

	ResolveCollisions([]*model.CarState{a, b}, []*model.CarConfig{cfg, cfg})

	if a.Speed != 0 || b.Speed != 0 {
		t.Fatalf("stationary collision should not change speed, got %f and %f", a.Speed, b.Speed)
	}
	if a.X == 100 && b.X == 100.1 {
		// still expected: overlap separation still applies even at zero speed.
	}
}

func TestResolveCollisionsHeadOnScalesSpeedAndSeparates(t *testing.T) {
	cfg := testCarConfig()
	a := &model.CarState{X: 100, Y: 100, Speed: 20}
	b := &model.CarState{X: 100.5, Y: 100, Speed: 20}

	ResolveCollisions([]*model.CarState{a, b}, []*model.CarConfig{cfg, cfg})

	if a.Speed != 16 || b.Speed != 16 {
		t.Fatalf("expected both speeds scaled by the 0.8 factor to 16, got %f and %f", a.Speed, b.Speed)
	}
	if !a.Colliding || !b.Colliding {
		t.Fatal("expected both cars flagged colliding")
	}
	if a.X >= b.X {
		t.Fatalf("expected cars separated along x with a left of b, got a.X=%f b.X=%f", a.X, b.X)
	}
}

func TestResolveCollisionsNoOverlapLeavesStateUnchanged(t *testing.T) {
	cfg := testCarConfig()
	a := &model.CarState{X: 0, Y: 0, Speed: 10}
	b := &model.CarState{X: 1000, Y: 1000, Speed: 10}

	ResolveCollisions([]*model.CarState{a, b}, []*model.CarConfig{cfg, cfg})

	if a.Colliding || b.Colliding {
		t.Fatal("expected no collision for distant cars")
	}
	if a.Speed != 10 || b.Speed != 10 {
		t.Fatal("expected speeds unaffected without overlap")
	}
}

func TestResolveCollisionsDeterministicPairOrder(t *testing.T) {
	cfg := testCarConfig()
	states := []*model.CarState{
		{X: 0, Y: 0, Speed: 10},
		{X: 0.1, Y: 0, Speed: 10},
		{X: 0.2, Y: 0, Speed: 10},
	}
	configs := []*model.CarConfig{cfg, cfg, cfg}

	ResolveCollisions(states, configs)
	firstRun := []float64{states[0].X, states[1].X, states[2].X}

	states2 := []*model.CarState{
		{X: 0, Y: 0, Speed: 10},
		{X: 0.1, Y: 0, Speed: 10},
		{X: 0.2, Y: 0, Speed: 10},
	}
	ResolveCollisions(states2, configs)
	secondRun := []float64{states2[0].X, states2[1].X, states2[2].X}

	for i := range firstRun {
		if firstRun[i] != secondRun[i] {
			t.Fatalf("expected deterministic result, mismatch at %d: %f vs %f", i, firstRun[i], secondRun[i])
		}
	}
}
