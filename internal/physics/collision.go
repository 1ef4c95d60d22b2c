package physics

import (
	"math"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// collisionEnergyLoss is the inelastic speed multiplier applied to both
// cars in a collision (§4.2).
const collisionEnergyLoss = 0.8

type aabb struct {
	minX, minY, maxX, maxY float64
}

// boundingBoxFor approximates a car's footprint with a square AABB using
// the larger of length/width as both half-extents, per §4.2's instruction
// to approximate rotation by using the larger bounding extent.
func boundingBoxFor(state *model.CarState, cfg *model.CarConfig) aabb {
	half := math.Max(cfg.LengthM, cfg.WidthM) / 2
	return aabb{
		minX: state.X - half,
		minY: state.Y - half,
		maxX: state.X + half,
		maxY: state.Y + half,
	}
}

func (a aabb) overlaps(b aabb) bool {
	return a.minX < b.maxX && a.maxX > b.minX && a.minY < b.maxY && a.maxY > b.minY
}

// ResolveCollisions checks every unordered pair of cars for AABB overlap.
// states[i] and configs[i] must describe the same car. Pair iteration is
// in slice order, deterministic regardless of map iteration elsewhere
// (§4.2: "pair iteration must be deterministic"). A second separation
// pass is not performed even when three or more cars mutually overlap in
// one tick, matching the spec.
func ResolveCollisions(states []*model.CarState, configs []*model.CarConfig) {
	n := len(states)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := states[i], states[j]
			boxA := boundingBoxFor(a, configs[i])
			boxB := boundingBoxFor(b, configs[j])
			if !boxA.overlaps(boxB) {
				continue
			}

			a.Colliding = true
			b.Colliding = true

			overlapX := math.Min(boxA.maxX, boxB.maxX) - math.Max(boxA.minX, boxB.minX)
			overlapY := math.Min(boxA.maxY, boxB.maxY) - math.Max(boxA.minY, boxB.minY)

			if overlapX < overlapY {
				push := overlapX / 2
				if a.X < b.X {
					a.X -= push
					b.X += push
				} else {
					a.X += push
					b.X -= push
				}
			} else {
				push := overlapY / 2
				if a.Y < b.Y {
					a.Y -= push
					b.Y += push
				} else {
					a.Y += push
					b.Y -= push
				}
			}

			a.Speed *= collisionEnergyLoss
			b.Speed *= collisionEnergyLoss
		}
	}
}
