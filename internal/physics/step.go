package physics

import (
	"math"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// GravityMS2 is g, used by the grip-limit cap (§4.2 step 3) and the AI
// driver's curvature-based target speed (§4.3).
const GravityMS2 = 9.81

// minDenom keeps the bicycle-model denominator away from zero (§4.2 step 2).
const minDenom = 1e-3

// Step advances one car's state by one fixed tick. It mutates state in
// place following the five-step sequence in §4.2:
//
//  1. longitudinal force -> speed integration, clamped at zero
//  2. bicycle-model yaw rate
//  3. grip-limited yaw rate
//  4. yaw/position integration
//  5. store clamped input back for telemetry
func Step(state *model.CarState, cfg *model.CarConfig, input model.Input, dt float64) {
	in := input.Clamp()

	// 1. longitudinal dynamics.
	rollingResistance := 0.0
	if state.Speed > 0 {
		rollingResistance = cfg.RollingFrictionN
	}
	drive := in.Throttle * cfg.PeakDriveForceN
	brake := in.Brake * cfg.PeakBrakeForceN
	drag := cfg.DragCoefficient * state.Speed * state.Speed
	netForce := drive - brake - drag - rollingResistance

	mass := cfg.MassKg
	if mass <= 0 {
		mass = 1
	}
	state.Speed += (netForce / mass) * dt
	if state.Speed < 0 || math.IsNaN(state.Speed) {
		state.Speed = 0
	}

	// 2. bicycle-model yaw rate.
	steerAngle := in.Steering * cfg.MaxSteeringAngleRad
	yawRate := 0.0
	if steerAngle != 0 && cfg.WheelbaseM > 0 {
		tanAbs := math.Abs(math.Tan(steerAngle))
		if tanAbs < minDenom {
			tanAbs = minDenom
		}
		turnRadius := cfg.WheelbaseM / tanAbs
		yawRate = (state.Speed / turnRadius) * sign(steerAngle)
	}

	// 3. grip-limited yaw rate.
	gripLimit := cfg.GripCoefficient * GravityMS2
	lateralAccel := math.Abs(state.Speed * yawRate)
	if lateralAccel > gripLimit && lateralAccel > 0 {
		scale := gripLimit / lateralAccel
		yawRate *= scale
	}
	if math.IsNaN(yawRate) {
		yawRate = 0
	}
	state.YawRate = yawRate

	// 4. integrate yaw, then position.
	state.YawRad += yawRate * dt
	vx := math.Cos(state.YawRad) * state.Speed
	vy := math.Sin(state.YawRad) * state.Speed
	state.X += vx * dt
	state.Y += vy * dt

	if math.IsNaN(state.X) || math.IsNaN(state.Y) || math.IsNaN(state.YawRad) {
		// PhysicsError (§7): numerical degeneracy is clamped locally and
		// never propagated to the client.
		state.X, state.Y, state.YawRad = 0, 0, 0
		state.Speed = 0
	}

	// 5. store clamped input for telemetry.
	state.LastInput = in
}

// ApproxTopSpeed estimates a car's terminal speed under full throttle from
// the drive/drag force balance (drive == drag + rolling resistance),
// used by the AI driver to cap its curvature-derived target speed (§4.3).
func ApproxTopSpeed(cfg *model.CarConfig) float64 {
	if cfg.DragCoefficient <= 0 {
		return math.Inf(1)
	}
	// drive = drag*v^2 + rolling  =>  v = sqrt((drive-rolling)/drag)
	net := cfg.PeakDriveForceN - cfg.RollingFrictionN
	if net <= 0 {
		return 0
	}
	return math.Sqrt(net / cfg.DragCoefficient)
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
