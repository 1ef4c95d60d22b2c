// Package scheduler runs the fixed-timestep tick loop (§4.8): drain,
// advance, emit, housekeep, once per configured tick period, without
// trying to "catch up" on an overrun. The loop-as-its-own-goroutine
// shape is grounded on the teacher's World.GameLoop, generalized from a
// single World to the registry's whole session directory.
package scheduler

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/registry"
	"github.com/gdoct/apexsim-sub001/internal/replay"
	"github.com/gdoct/apexsim-sub001/internal/session"
)

// Dependencies bundles everything the tick loop needs from the rest of
// the server. lobbyBroadcastEveryTicks (derived in New) turns the 4 Hz
// cadence named in §4.8 step 3 into a tick-count interval relative to
// whatever tick rate the scheduler is configured with. Replay is
// optional: a nil manager disables recording entirely.
type Dependencies struct {
	Registry      *registry.Registry
	Router        Router
	Replay        *replay.Manager
	TickPeriod    time.Duration
	TickPeriodMs  float64
	Log           zerolog.Logger
	OnSessionDone func(model.SessionID)
}

// Router applies inbound non-input messages (auth, lobby, session
// operations, heartbeat) and supplies per-session input batches; the
// concrete implementation lives in internal/router so scheduler has no
// dependency on transport or connection bookkeeping.
type Router interface {
	DrainReliable(currentTick int64)
	DrainDatagrams()
	InputsFor(sessionID model.SessionID) map[model.PlayerID]model.Input
	EmitTelemetry(sessionID model.SessionID, snapshot codec.Telemetry)
	EmitLobbyState(state codec.LobbyState)
	Housekeep(currentTick int64, tickPeriodMs float64)
}

// Scheduler drives the loop described in §4.8.
type Scheduler struct {
	deps                     Dependencies
	currentTick              int64
	lobbyBroadcastEveryTicks int64
	recorders                map[model.SessionID]*replay.Recorder
	stop                     chan struct{}
	stopped                  chan struct{}
}

func New(deps Dependencies) *Scheduler {
	ticksPerSecond := 1000.0 / deps.TickPeriodMs
	everyTicks := int64(math.Round(ticksPerSecond / 4))
	if everyTicks < 1 {
		everyTicks = 1
	}
	return &Scheduler{
		deps:                     deps,
		lobbyBroadcastEveryTicks: everyTicks,
		recorders:                make(map[model.SessionID]*replay.Recorder),
		stop:                     make(chan struct{}),
		stopped:                  make(chan struct{}),
	}
}

// Run blocks, executing one iteration per tick period until Stop is
// called. It is meant to be launched in its own goroutine.
func (s *Scheduler) Run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.deps.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case start := <-ticker.C:
			s.currentTick++
			s.iterate()

			if elapsed := time.Since(start); elapsed > s.deps.TickPeriod {
				// §4.8: do not catch up, just log and proceed.
				s.deps.Log.Warn().
					Dur("elapsed", elapsed).
					Dur("budget", s.deps.TickPeriod).
					Int64("tick", s.currentTick).
					Msg("tick overran budget")
			}
		}
	}
}

func (s *Scheduler) iterate() {
	// 1. drain
	s.deps.Router.DrainReliable(s.currentTick)
	s.deps.Router.DrainDatagrams()

	// 2. advance
	sessions := s.deps.Registry.Sessions()
	for id, sess := range sessions {
		inputs := s.deps.Router.InputsFor(id)
		if err := sess.Tick(inputs); err != nil {
			s.deps.Log.Error().Err(err).Str("session_id", id.String()).Msg("session tick failed, isolated")
		}
	}

	// 3. emit
	for id, sess := range sessions {
		snapshot := sess.BuildTelemetry()
		s.deps.Router.EmitTelemetry(id, snapshot)
		s.recordTelemetry(id, sess, snapshot)
	}
	if s.currentTick%s.lobbyBroadcastEveryTicks == 0 {
		s.deps.Router.EmitLobbyState(s.deps.Registry.Summarize())
	}

	// 4. housekeep
	s.deps.Router.Housekeep(s.currentTick, s.deps.TickPeriodMs)
	for id, sess := range sessions {
		if sess.ShouldBeRemoved() {
			s.finishRecording(id)
			s.deps.Registry.RemoveSession(id)
			if s.deps.OnSessionDone != nil {
				s.deps.OnSessionDone(id)
			}
		}
	}
}

// recordTelemetry begins a recorder on the Countdown->Racing transition
// and appends one frame per Racing tick (§4.6). Recording is a no-op
// when Replay is nil, so deployments can disable it entirely.
func (s *Scheduler) recordTelemetry(id model.SessionID, sess *session.Session, snapshot codec.Telemetry) {
	if s.deps.Replay == nil || sess.State != session.Racing {
		return
	}

	rec, ok := s.recorders[id]
	if !ok {
		rec = s.deps.Replay.NewSessionRecorder()
		participantIDs := make([]model.PlayerID, 0, len(sess.Participants))
		for playerID := range sess.Participants {
			participantIDs = append(participantIDs, playerID)
		}
		rec.Begin(replay.Header{
			SessionID:      id,
			TrackConfigID:  sess.TrackConfigID,
			ParticipantIDs: participantIDs,
		})
		s.recorders[id] = rec
	}
	rec.Record(s.currentTick, snapshot)
}

// finishRecording flushes and forgets a session's recorder, if one was
// started, once the session is about to be removed.
func (s *Scheduler) finishRecording(id model.SessionID) {
	rec, ok := s.recorders[id]
	if !ok {
		return
	}
	delete(s.recorders, id)
	if s.deps.Replay != nil {
		s.deps.Replay.Enqueue(rec)
	}
}

// Stop signals the loop to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

// CurrentTick exposes the scheduler's tick counter for housekeeping
// callers outside the loop (e.g. connection.Touch at accept time).
func (s *Scheduler) CurrentTick() int64 { return s.currentTick }
