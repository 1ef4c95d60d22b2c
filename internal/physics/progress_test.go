package physics

import (
	"testing"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

func straightTrack() *model.TrackConfig {
	return &model.TrackConfig{
		WidthM: 10,
		Centerline: []model.CenterlinePoint{
			{X: 0, Y: 0, ArcLength: 0},
			{X: 100, Y: 0, ArcLength: 100},
		},
	}
}

func TestUpdateProgressMonotoneWithinLap(t *testing.T) {
	track := straightTrack()
	state := &model.CarState{LastWrapTick: -1}

	state.X = 10
	UpdateProgress(state, track, 1, 1000.0/240)
	first := state.ArcPosition

	state.X = 20
	UpdateProgress(state, track, 2, 1000.0/240)
	second := state.ArcPosition

	if second <= first {
		t.Fatalf("expected monotone progress, got %f then %f", first, second)
	}
}

func TestUpdateProgressWrapIncrementsLap(t *testing.T) {
	track := straightTrack()
	state := &model.CarState{LastWrapTick: -1}

	state.X = 95 // 0.95 * lapLength
	UpdateProgress(state, track, 1, 1000.0/240)
	if state.CompletedLaps != 0 {
		t.Fatalf("expected no lap yet, got %d", state.CompletedLaps)
	}

	state.X = 5 // 0.05 * lapLength: wraps from >0.9 to <0.1
	UpdateProgress(state, track, 2, 1000.0/240)
	if state.CompletedLaps != 1 {
		t.Fatalf("expected lap counter to increment on wrap, got %d", state.CompletedLaps)
	}
}

func TestUpdateProgressSmallBackwardMotionDoesNotWrap(t *testing.T) {
	track := straightTrack()
	state := &model.CarState{LastWrapTick: -1}

	state.X = 50
	UpdateProgress(state, track, 1, 1000.0/240)

	state.X = 48 // small backward motion, nowhere near the 0.9/0.1 thresholds
	UpdateProgress(state, track, 2, 1000.0/240)

	if state.CompletedLaps != 0 {
		t.Fatalf("small backward motion must not increment lap counter, got %d", state.CompletedLaps)
	}
}

func TestUpdateProgressTiesBrokenByLowestSegmentIndex(t *testing.T) {
	// Two collinear segments meeting exactly at the query point: both
	// segments report zero perpendicular distance, so the lower index
	// (and hence its smaller cumulative arc length) must win.
	track := &model.TrackConfig{
		Centerline: []model.CenterlinePoint{
			{X: 0, Y: 0, ArcLength: 0},
			{X: 50, Y: 0, ArcLength: 50},
			{X: 100, Y: 0, ArcLength: 100},
		},
	}
	state := &model.CarState{X: 50, Y: 0, LastWrapTick: -1}
	UpdateProgress(state, track, 1, 1000.0/240)

	if state.ArcPosition != 50 {
		t.Fatalf("expected arc position 50 at shared vertex, got %f", state.ArcPosition)
	}
}
