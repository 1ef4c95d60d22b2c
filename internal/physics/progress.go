package physics

import (
	"math"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// wrapHighFraction/wrapLowFraction are the dual thresholds from §4.2's
// wrap rule: a transition from above 0.9*lapLength to below 0.1*lapLength
// is a lap completion; any other backward motion is not.
const (
	wrapHighFraction = 0.9
	wrapLowFraction  = 0.1
)

// UpdateProgress projects state's position onto the nearest centerline
// segment (ties broken by lowest segment index) and applies the lap-wrap
// rule. tick is the scheduler's current_tick, used to derive lap time on a
// wrap event; tickPeriodMs is the fixed tick period in milliseconds.
func UpdateProgress(state *model.CarState, track *model.TrackConfig, tick int64, tickPeriodMs float64) {
	lapLength := track.LapLength()
	if len(track.Centerline) < 2 || lapLength <= 0 {
		return
	}

	pos := Vec2{state.X, state.Y}
	bestDist := math.Inf(1)
	bestArc := state.ArcPosition

	for i := 0; i < len(track.Centerline)-1; i++ {
		a := track.Centerline[i]
		b := track.Centerline[i+1]
		segStart := Vec2{a.X, a.Y}
		segEnd := Vec2{b.X, b.Y}
		seg := segEnd.Sub(segStart)
		segLenSq := seg.X*seg.X + seg.Y*seg.Y

		t := 0.0
		if segLenSq > 0 {
			t = ((pos.X-segStart.X)*seg.X + (pos.Y-segStart.Y)*seg.Y) / segLenSq
			t = clamp(t, 0, 1)
		}
		proj := segStart.Add(seg.Mul(t))
		dist := Distance(pos, proj)

		if dist < bestDist {
			bestDist = dist
			bestArc = a.ArcLength + t*(b.ArcLength-a.ArcLength)
		}
	}

	prevArc := state.ArcPosition
	state.ArcPosition = bestArc

	if prevArc > wrapHighFraction*lapLength && bestArc < wrapLowFraction*lapLength {
		state.CompletedLaps++
		if state.LastWrapTick >= 0 {
			lapTimeMs := int64(float64(tick-state.LastWrapTick) * tickPeriodMs)
			state.LastLapTimeMs = lapTimeMs
			if state.BestLapTimeMs == 0 || lapTimeMs < state.BestLapTimeMs {
				state.BestLapTimeMs = lapTimeMs
			}
		}
		state.LastWrapTick = tick
	}
}

// CrossedStartFinish reports whether the most recent UpdateProgress call
// registered a wrap event on this exact tick, used by Session.tick to
// detect the start/finish boundary crossing for finish-order assignment
// (§4.4).
func CrossedStartFinish(state *model.CarState, tick int64) bool {
	return state.LastWrapTick == tick
}
