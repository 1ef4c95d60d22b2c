// Package ai synthesizes per-tick inputs for AI-controlled cars by
// looking ahead along the track centerline, grounded on the same
// projection math as internal/physics (§4.3).
package ai

import (
	"math"

	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/physics"
)

// Tunables from §4.3.
const (
	lookAheadMinM      = 8.0
	lookAheadGainS     = 0.5
	overshootThreshold = 1.05
	steeringGain       = 1.0
)

// DriveInput synthesizes the input triple for one AI car this tick. It
// never mutates state; the caller feeds the result through the same
// physics.Step path used for human input (§4.3: "the physics path is
// identical").
func DriveInput(state *model.CarState, cfg *model.CarConfig, track *model.TrackConfig) model.Input {
	lapLength := track.LapLength()
	if lapLength <= 0 || len(track.Centerline) < 2 {
		return model.Input{}
	}

	lookAhead := math.Max(lookAheadMinM, lookAheadGainS*state.Speed)
	targetArc := math.Mod(state.ArcPosition+lookAhead, lapLength)

	target := pointAtArc(track, targetArc)
	heading := Vec2{math.Cos(state.YawRad), math.Sin(state.YawRad)}
	toTarget := Vec2{target.X - state.X, target.Y - state.Y}

	steering := steeringFor(heading, toTarget, cfg.MaxSteeringAngleRad)

	curvature := curvatureNear(track, state.ArcPosition)
	targetSpeed := speedForCurvature(curvature, cfg)

	var throttle, brake float64
	switch {
	case math.IsInf(targetSpeed, 1):
		throttle = 1
	case state.Speed > overshootThreshold*targetSpeed:
		overshoot := (state.Speed - targetSpeed) / math.Max(targetSpeed, 1)
		brake = clamp01(overshoot)
	default:
		deficit := (targetSpeed - state.Speed) / math.Max(targetSpeed, 1)
		throttle = clamp01(deficit)
	}

	return model.Input{Throttle: throttle, Brake: brake, Steering: steering}
}

// Vec2 mirrors physics.Vec2's shape; kept local to avoid a needless cross
// import for what is, here, just a pair of floats.
type Vec2 struct{ X, Y float64 }

func steeringFor(heading, toTarget Vec2, maxSteerRad float64) float64 {
	targetLen := math.Hypot(toTarget.X, toTarget.Y)
	if targetLen == 0 {
		return 0
	}
	// signed angle between heading and vector-to-target
	cross := heading.X*toTarget.Y - heading.Y*toTarget.X
	dot := heading.X*toTarget.X + heading.Y*toTarget.Y
	angle := math.Atan2(cross, dot)

	if maxSteerRad == 0 {
		return 0
	}
	normalized := angle / maxSteerRad
	return clamp(normalized, -1, 1)
}

func speedForCurvature(curvature float64, cfg *model.CarConfig) float64 {
	topSpeed := physics.ApproxTopSpeed(cfg)
	if curvature <= 1e-6 {
		return topSpeed
	}
	target := math.Sqrt(cfg.GripCoefficient * physics.GravityMS2 / curvature)
	return math.Min(target, topSpeed)
}

// pointAtArc interpolates a centerline point at the given arc length.
// It does not wrap: callers pass an arc already in [0, lapLength), and
// an arc outside the centerline's range returns the last point.
func pointAtArc(track *model.TrackConfig, arc float64) model.CenterlinePoint {
	cl := track.Centerline
	for i := 0; i < len(cl)-1; i++ {
		if arc >= cl[i].ArcLength && arc <= cl[i+1].ArcLength {
			span := cl[i+1].ArcLength - cl[i].ArcLength
			if span <= 0 {
				return cl[i]
			}
			t := (arc - cl[i].ArcLength) / span
			return model.CenterlinePoint{
				X:         cl[i].X + t*(cl[i+1].X-cl[i].X),
				Y:         cl[i].Y + t*(cl[i+1].Y-cl[i].Y),
				ArcLength: arc,
			}
		}
	}
	return cl[len(cl)-1]
}

// curvatureNear estimates local curvature via three consecutive
// centerline samples around the given arc position (Menger curvature).
func curvatureNear(track *model.TrackConfig, arc float64) float64 {
	lapLength := track.LapLength()
	step := 5.0
	p0 := pointAtArc(track, math.Mod(arc-step+lapLength, lapLength))
	p1 := pointAtArc(track, math.Mod(arc+lapLength, lapLength))
	p2 := pointAtArc(track, math.Mod(arc+step, lapLength))

	a := math.Hypot(p1.X-p0.X, p1.Y-p0.Y)
	b := math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
	c := math.Hypot(p2.X-p0.X, p2.Y-p0.Y)
	if a == 0 || b == 0 || c == 0 {
		return 0
	}

	// triangle area via cross product, then Menger curvature = 4*area/(a*b*c)
	area := math.Abs((p1.X-p0.X)*(p2.Y-p0.Y)-(p2.X-p0.X)*(p1.Y-p0.Y)) / 2
	return 4 * area / (a * b * c)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
