// Package session implements one race's state machine: participant and
// spectator membership, the Lobby -> Countdown -> Racing -> Finished
// lifecycle, per-tick physics advancement, and telemetry snapshot
// construction (§4.4). The tick-loop shape (drain -> update -> derive
// summary) is grounded on the teacher's World.Update method.
package session

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/ai"
	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/physics"
)

// Participant couples a car's simulated state to its static config and
// whether it is AI-controlled.
type Participant struct {
	CarState  *model.CarState
	CarConfig *model.CarConfig
	IsAI      bool
	Name      string
}

// Config bundles the values fixed at session creation (§4.5 create_session).
type Config struct {
	ID                   model.SessionID
	TrackConfigID        model.TrackConfigID
	Track                *model.TrackConfig
	HostPlayerID         model.PlayerID
	MaxPlayers           int
	AICount              int
	LapLimit             int
	TickPeriodMs         float64
	CountdownTicks       int
	RaceTimeCeilingTicks int64
	FinishedGraceTicks   int64
}

// Session is one race instance (§3).
type Session struct {
	ID            model.SessionID
	TrackConfigID model.TrackConfigID
	track         *model.TrackConfig
	HostPlayerID  model.PlayerID
	State         State
	MaxPlayers    int
	AICount       int
	LapLimit      int

	CurrentTick        int64
	CountdownRemaining int
	RaceStartTick      int64

	countdownTicks       int
	raceTimeCeilingTicks int64
	finishedGraceTicks   int64
	finishedAtTick       int64

	tickPeriodMs float64

	Participants map[model.PlayerID]*Participant
	order        []model.PlayerID // participant ids sorted by grid slot, for deterministic iteration
	gridOccupied []bool
	Spectators   map[model.PlayerID]struct{}

	nextFinishOrder int
	InternalError   error

	log zerolog.Logger
}

// New creates an empty session in Lobby state with HostPlayerID set
// (§4.5 create_session). The host and any AI participants are added by
// the caller (the registry) via AddParticipant, matching the teacher's
// pattern of the owning collaborator performing the mutation rather than
// the constructor reaching out to collaborators itself.
func New(cfg Config, logger zerolog.Logger) *Session {
	return &Session{
		ID:                   cfg.ID,
		TrackConfigID:        cfg.TrackConfigID,
		track:                cfg.Track,
		HostPlayerID:         cfg.HostPlayerID,
		State:                Lobby,
		MaxPlayers:           cfg.MaxPlayers,
		AICount:              cfg.AICount,
		LapLimit:             cfg.LapLimit,
		countdownTicks:       cfg.CountdownTicks,
		raceTimeCeilingTicks: cfg.RaceTimeCeilingTicks,
		finishedGraceTicks:   cfg.FinishedGraceTicks,
		tickPeriodMs:         cfg.TickPeriodMs,
		Participants:         make(map[model.PlayerID]*Participant),
		Spectators:           make(map[model.PlayerID]struct{}),
		gridOccupied:         make([]bool, cfg.MaxPlayers),
		log:                  logger.With().Str("session_id", cfg.ID.String()).Logger(),
	}
}

// AddParticipant assigns the lowest-numbered empty grid slot and creates
// a CarState for the player (§4.4 add_participant).
func (s *Session) AddParticipant(playerID model.PlayerID, name string, carCfg *model.CarConfig, isAI bool) (int, error) {
	if s.State != Lobby {
		return 0, ErrWrongState
	}
	if len(s.Participants) >= s.MaxPlayers {
		return 0, ErrSessionFull
	}

	slotIndex := -1
	for i, occupied := range s.gridOccupied {
		if !occupied {
			slotIndex = i
			break
		}
	}
	if slotIndex == -1 {
		return 0, ErrSessionFull
	}

	var slot model.GridSlot
	found := false
	for _, gs := range s.track.GridSlots {
		if gs.Index == slotIndex {
			slot = gs
			found = true
			break
		}
	}
	if !found {
		slot = model.GridSlot{Index: slotIndex}
	}

	carState := model.NewCarState(playerID, slot)
	s.Participants[playerID] = &Participant{CarState: carState, CarConfig: carCfg, IsAI: isAI, Name: name}
	s.gridOccupied[slotIndex] = true
	s.reorder()

	return slotIndex, nil
}

// RemoveParticipant takes a player out of the session (§4.5 leave,
// §10 DNF-on-mid-race-leave). It returns whether the departing player
// was host so the caller (registry) knows to react, though host
// reassignment itself happens here per §4.4.
//
// A player leaving mid-race is marked DNF rather than erased: the
// CarState is pulled out of physics stepping but stays in Participants
// (and s.order) so BuildTelemetry keeps reporting it for the rest of the
// race, per §10 ("recorded in the session's final telemetry so replay
// consumers can distinguish it from an unfinished race"). A player
// leaving outside Racing (Lobby/Countdown/Finished) has no race outcome
// to preserve and is removed outright.
func (s *Session) RemoveParticipant(playerID model.PlayerID) (wasHost bool, ok bool) {
	p, exists := s.Participants[playerID]
	if !exists {
		return false, false
	}

	wasHost = playerID == s.HostPlayerID

	if s.State == Racing && !p.CarState.DidFinish {
		p.CarState.Disconnected = true
		p.CarState.FinishOrder = model.FinishOrderDNF
	} else {
		delete(s.Participants, playerID)
		s.gridOccupied[p.CarState.GridSlot] = false
		s.reorder()
	}

	if wasHost {
		s.reassignHost()
	}

	if s.activeParticipantCount() == 0 {
		s.transitionToFinished()
	}

	return wasHost, true
}

// activeParticipantCount counts participants still eligible to affect
// session lifecycle decisions, excluding those already marked DNF.
func (s *Session) activeParticipantCount() int {
	n := 0
	for _, p := range s.Participants {
		if !p.CarState.Disconnected {
			n++
		}
	}
	return n
}

// RemoveSpectator removes a spectator, if present.
func (s *Session) RemoveSpectator(playerID model.PlayerID) bool {
	if _, ok := s.Spectators[playerID]; !ok {
		return false
	}
	delete(s.Spectators, playerID)
	return true
}

// AddSpectator attaches a player for telemetry delivery with no CarState
// (§4.5 join as spectator).
func (s *Session) AddSpectator(playerID model.PlayerID) {
	s.Spectators[playerID] = struct{}{}
}

func (s *Session) reassignHost() {
	for _, id := range s.order {
		if !s.Participants[id].CarState.Disconnected {
			s.HostPlayerID = id
			return
		}
	}
}

func (s *Session) reorder() {
	ids := make([]model.PlayerID, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.Participants[ids[i]].CarState.GridSlot < s.Participants[ids[j]].CarState.GridSlot
	})
	s.order = ids
}

// Start transitions Lobby -> Countdown (§4.5 start).
func (s *Session) Start() error {
	if s.State != Lobby {
		return ErrWrongState
	}
	s.State = Countdown
	s.CountdownRemaining = s.countdownTicks
	return nil
}

// Tick advances the session by one fixed timestep. inputsByPlayer holds
// only the inputs that arrived since the previous tick (possibly empty);
// a participant with no fresh input keeps using its CarState's
// last-received input, per §4.4's "defaulting to all-zero if none yet"
// rule (the zero default lives in CarState's zero value).
func (s *Session) Tick(inputsByPlayer map[model.PlayerID]model.Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Per §4.8: an error during any single session's tick must be
			// isolated. The session is marked Finished with an internal
			// error outcome and the scheduler's loop continues.
			s.InternalError = errPanic(r)
			s.State = Finished
			s.finishedAtTick = s.CurrentTick
			err = s.InternalError
		}
	}()

	s.CurrentTick++

	switch s.State {
	case Lobby:
		s.tickLobby(inputsByPlayer)
	case Countdown:
		s.tickCountdown(inputsByPlayer)
	case Racing:
		s.tickRacing(inputsByPlayer)
	case Finished:
		s.tickFinished()
	}

	return nil
}

// tickLobby records fresh inputs without stepping physics: §3 only
// allows pose changes once Racing, but input still needs to be captured
// so a car isn't stuck replaying a stale triple the moment the race
// starts.
func (s *Session) tickLobby(inputsByPlayer map[model.PlayerID]model.Input) {
	for id, in := range inputsByPlayer {
		p, ok := s.Participants[id]
		if !ok {
			continue
		}
		p.CarState.LastInput = in.Clamp()
	}
}

func (s *Session) tickCountdown(inputsByPlayer map[model.PlayerID]model.Input) {
	// Only brake input is honored during countdown (§4.4): throttle and
	// steering from any fresh input are dropped before storing.
	for id, in := range inputsByPlayer {
		p, ok := s.Participants[id]
		if !ok {
			continue
		}
		p.CarState.LastInput = model.Input{Brake: in.Clamp().Brake}
	}

	s.CountdownRemaining--
	if s.CountdownRemaining <= 0 {
		s.State = Racing
		s.RaceStartTick = s.CurrentTick
		for _, p := range s.Participants {
			p.CarState.LastWrapTick = s.CurrentTick
		}
	}
}

func (s *Session) tickRacing(inputsByPlayer map[model.PlayerID]model.Input) {
	states := make([]*model.CarState, 0, len(s.order))
	configs := make([]*model.CarConfig, 0, len(s.order))

	for _, id := range s.order {
		p := s.Participants[id]
		if p.CarState.Disconnected {
			continue
		}

		var in model.Input
		if p.IsAI {
			in = ai.DriveInput(p.CarState, p.CarConfig, s.track)
		} else if fresh, ok := inputsByPlayer[id]; ok {
			in = fresh.Clamp()
		} else {
			in = p.CarState.LastInput
		}

		physics.Step(p.CarState, p.CarConfig, in, s.tickPeriodMs/1000)
		states = append(states, p.CarState)
		configs = append(configs, p.CarConfig)
	}

	physics.ResolveCollisions(states, configs)

	finishers := make([]*model.CarState, 0)
	for _, st := range states {
		physics.UpdateProgress(st, s.track, s.CurrentTick, s.tickPeriodMs)
		if st.CompletedLaps >= s.LapLimit && physics.CrossedStartFinish(st, s.CurrentTick) && !st.DidFinish {
			finishers = append(finishers, st)
		}
	}

	// §9 open question: simultaneous finishers this tick are ordered by
	// greater arc distance past the boundary at tick end, i.e. lower
	// ArcPosition (just past zero) sorts after a higher one only if we
	// compare overshoot magnitude; since ArcPosition wraps to a small
	// value right after crossing, larger ArcPosition here means it
	// travelled further past the line in this tick and should finish
	// first.
	sort.SliceStable(finishers, func(i, j int) bool {
		return finishers[i].ArcPosition > finishers[j].ArcPosition
	})
	for _, st := range finishers {
		s.nextFinishOrder++
		st.FinishOrder = s.nextFinishOrder
		st.DidFinish = true
	}

	if s.allParticipantsSettled() || s.CurrentTick-s.RaceStartTick > s.raceTimeCeilingTicks {
		s.transitionToFinished()
	}
}

func (s *Session) allParticipantsSettled() bool {
	if len(s.Participants) == 0 {
		return true
	}
	for _, p := range s.Participants {
		if p.CarState.Disconnected {
			continue
		}
		if !p.CarState.DidFinish {
			return false
		}
	}
	return true
}

func (s *Session) tickFinished() {
	// emit a final telemetry snapshot for a grace period then request
	// removal (§4.4); the scheduler checks ShouldBeRemoved.
}

func (s *Session) transitionToFinished() {
	if s.State == Finished {
		return
	}
	s.State = Finished
	s.finishedAtTick = s.CurrentTick
}

// ShouldBeRemoved reports whether the Finished grace period has elapsed
// (§4.4: "emit a final telemetry snapshot for a grace period ... then
// request removal").
func (s *Session) ShouldBeRemoved() bool {
	return s.State == Finished && s.CurrentTick-s.finishedAtTick > s.finishedGraceTicks
}

func errPanic(r interface{}) error {
	return &panicError{value: r}
}

type panicError struct{ value interface{} }

func (e *panicError) Error() string { return "session: recovered panic during tick" }

// BuildTelemetry produces a compact snapshot of every participant
// (§4.4 build_telemetry).
func (s *Session) BuildTelemetry() codec.Telemetry {
	var countdownMs *int64
	if s.State == Countdown {
		ms := int64(float64(s.CountdownRemaining) * s.tickPeriodMs)
		countdownMs = &ms
	}

	cars := make([]codec.CarTelemetry, 0, len(s.order))
	for _, id := range s.order {
		p := s.Participants[id]
		cs := p.CarState

		var finishOrder *uint16
		if cs.FinishOrder > 0 {
			v := uint16(cs.FinishOrder)
			finishOrder = &v
		}

		progress := 0.0
		if lapLength := s.track.LapLength(); lapLength > 0 {
			progress = cs.ArcPosition / lapLength
		}

		cars = append(cars, codec.CarTelemetry{
			PlayerID:      cs.PlayerID,
			X:             cs.X,
			Y:             cs.Y,
			Yaw:           cs.YawRad,
			Speed:         cs.Speed,
			Throttle:      cs.LastInput.Throttle,
			Steering:      cs.LastInput.Steering,
			CurrentLap:    uint16(cs.CompletedLaps),
			TrackProgress: progress,
			FinishOrder:   finishOrder,
			DNF:           cs.FinishOrder == model.FinishOrderDNF,
		})
	}

	return codec.Telemetry{
		ServerTick:   s.CurrentTick,
		SessionState: uint8(s.State),
		CountdownMs:  countdownMs,
		Cars:         cars,
	}
}

// Summarize produces the lightweight directory entry used by the lobby
// registry's periodic broadcast (§4.5 summarize, §3 lobby registry).
func (s *Session) Summarize(trackName, hostName string) codec.SessionSummary {
	return codec.SessionSummary{
		ID:               s.ID,
		TrackName:        trackName,
		HostName:         hostName,
		ParticipantCount: uint8(len(s.Participants)),
		MaxPlayers:       uint8(s.MaxPlayers),
		SpectatorCount:   uint8(len(s.Spectators)),
		State:            uint8(s.State),
	}
}

// Now returns the current wall-clock time; kept as a thin seam so tests
// can avoid depending on real time if ever needed.
var Now = time.Now
