// Package registry is the lobby: it tracks authenticated players who are
// not yet in a session, owns the directory of live sessions, and is the
// single entry point through which the scheduler's drain step applies
// every non-input client message (§4.5). Its locking discipline (one
// RWMutex guarding the maps, short critical sections, no calls out to
// session methods while holding the write lock longer than necessary)
// is grounded on the teacher's World, which guards its entity map the
// same way.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/content"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/session"
)

// Settings bundles the session defaults the registry applies to every
// create_session call (§4.5, §6a configuration surface).
type Settings struct {
	TickPeriodMs         float64
	CountdownTicks       int
	RaceTimeCeilingTicks int64
	FinishedGraceTicks   int64
	MaxSessionsSoftCap   int
	ServerVersion        string
}

// Registry is the lobby/session directory (§3, §4.5).
type Registry struct {
	mu sync.RWMutex

	settings Settings
	store    *content.Store
	log      zerolog.Logger

	lobbyPlayers map[model.PlayerID]*model.Player
	connToPlayer map[model.ConnectionID]model.PlayerID

	sessions      map[model.SessionID]*session.Session
	playerSession map[model.PlayerID]model.SessionID

	aiSeq int
}

func New(store *content.Store, settings Settings, logger zerolog.Logger) *Registry {
	if settings.MaxSessionsSoftCap <= 0 {
		settings.MaxSessionsSoftCap = 99
	}
	return &Registry{
		settings:      settings,
		store:         store,
		log:           logger.With().Str("component", "registry").Logger(),
		lobbyPlayers:  make(map[model.PlayerID]*model.Player),
		connToPlayer:  make(map[model.ConnectionID]model.PlayerID),
		sessions:      make(map[model.SessionID]*session.Session),
		playerSession: make(map[model.PlayerID]model.SessionID),
	}
}

// Authenticate validates a connecting client and admits it to the lobby
// pool (§4.5). The token check is a stub: any non-empty token passes,
// matching the spec's explicit "stub accepts any non-empty" rule.
func (r *Registry) Authenticate(connID model.ConnectionID, token, name string) (model.PlayerID, error) {
	if token == "" {
		return model.PlayerID{}, ErrAuthFailed
	}
	if name == "" {
		name = "player"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	playerID := model.NewPlayerID()
	r.lobbyPlayers[playerID] = &model.Player{ID: playerID, Name: name, ConnectionID: connID}
	r.connToPlayer[connID] = playerID

	r.log.Info().Str("player_id", playerID.String()).Str("name", name).Msg("player authenticated")
	return playerID, nil
}

// SelectCar records a lobby player's chosen car config (§4.5).
func (r *Registry) SelectCar(playerID model.PlayerID, carID model.CarConfigID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lobbyPlayers[playerID]
	if !ok {
		return ErrNotInLobby
	}
	if _, ok := r.store.GetCar(carID); !ok {
		return ErrUnknownCar
	}
	p.CarConfigID = carID
	return nil
}

// CreateSession registers a new session in Lobby state with the host as
// its sole human participant, then fills the requested AI count (§4.5).
func (r *Registry) CreateSession(hostID model.PlayerID, trackID model.TrackConfigID, maxPlayers, aiCount, lapLimit int) (model.SessionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	host, ok := r.lobbyPlayers[hostID]
	if !ok {
		return model.SessionID{}, ErrNotInLobby
	}
	if !host.HasCarSelected() {
		return model.SessionID{}, ErrNoCarSelected
	}
	track, ok := r.store.GetTrack(trackID)
	if !ok {
		return model.SessionID{}, ErrUnknownTrack
	}
	hostCar, ok := r.store.GetCar(host.CarConfigID)
	if !ok {
		return model.SessionID{}, ErrUnknownCar
	}
	if len(r.sessions) >= r.settings.MaxSessionsSoftCap {
		return model.SessionID{}, fmt.Errorf("registry: session soft cap of %d reached", r.settings.MaxSessionsSoftCap)
	}
	if maxPlayers < 1+aiCount {
		maxPlayers = 1 + aiCount
	}

	sessionID := model.NewSessionID()
	sess := session.New(session.Config{
		ID:                   sessionID,
		TrackConfigID:        trackID,
		Track:                track,
		HostPlayerID:         hostID,
		MaxPlayers:           maxPlayers,
		AICount:              aiCount,
		LapLimit:             lapLimit,
		TickPeriodMs:         r.settings.TickPeriodMs,
		CountdownTicks:       r.settings.CountdownTicks,
		RaceTimeCeilingTicks: r.settings.RaceTimeCeilingTicks,
		FinishedGraceTicks:   r.settings.FinishedGraceTicks,
	}, r.log)

	if _, err := sess.AddParticipant(hostID, host.Name, hostCar, false); err != nil {
		return model.SessionID{}, err
	}

	defaultCars := r.store.ListCars()
	for i := 0; i < aiCount; i++ {
		r.aiSeq++
		aiID := model.NewPlayerID()
		aiCar := hostCar
		if len(defaultCars) > 0 {
			aiCar = defaultCars[i%len(defaultCars)]
		}
		name := fmt.Sprintf("AI %d", r.aiSeq)
		if _, err := sess.AddParticipant(aiID, name, aiCar, true); err != nil {
			r.log.Warn().Err(err).Msg("failed to seat AI participant")
			break
		}
	}

	r.sessions[sessionID] = sess
	delete(r.lobbyPlayers, hostID)
	r.playerSession[hostID] = sessionID

	r.log.Info().Str("session_id", sessionID.String()).Str("host", hostID.String()).Msg("session created")
	return sessionID, nil
}

// Join moves a lobby player into an existing session, as a racer or a
// spectator (§4.5).
func (r *Registry) Join(playerID model.PlayerID, sessionID model.SessionID, asSpectator bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.lobbyPlayers[playerID]
	if !ok {
		return 0, ErrNotInLobby
	}
	sess, ok := r.sessions[sessionID]
	if !ok {
		return 0, ErrUnknownSession
	}

	if asSpectator {
		sess.AddSpectator(playerID)
		delete(r.lobbyPlayers, playerID)
		r.playerSession[playerID] = sessionID
		return 0, nil
	}

	if sess.State != session.Lobby {
		return 0, ErrAlreadyStarted
	}
	if !player.HasCarSelected() {
		return 0, ErrNoCarSelected
	}
	carCfg, ok := r.store.GetCar(player.CarConfigID)
	if !ok {
		return 0, ErrUnknownCar
	}

	slot, err := sess.AddParticipant(playerID, player.Name, carCfg, false)
	if err != nil {
		return 0, err
	}

	delete(r.lobbyPlayers, playerID)
	r.playerSession[playerID] = sessionID
	return slot, nil
}

// Leave removes a player from whatever session it is in (participant or
// spectator) and returns it to the lobby pool (§4.5).
func (r *Registry) Leave(playerID model.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(playerID)
}

func (r *Registry) leaveLocked(playerID model.PlayerID) error {
	sessionID, ok := r.playerSession[playerID]
	if !ok {
		return ErrNotInSession
	}
	sess, ok := r.sessions[sessionID]
	if !ok {
		delete(r.playerSession, playerID)
		return nil
	}

	name := playerID.String()
	if p, ok := sess.Participants[playerID]; ok {
		name = p.Name
	}

	if _, wasParticipant := sess.RemoveParticipant(playerID); !wasParticipant {
		sess.RemoveSpectator(playerID)
	}

	delete(r.playerSession, playerID)
	r.lobbyPlayers[playerID] = &model.Player{ID: playerID, Name: name}
	return nil
}

// Start transitions a session from Lobby to Countdown; only the host may
// call it (§4.5).
func (r *Registry) Start(requestingPlayerID model.PlayerID, sessionID model.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if sess.HostPlayerID != requestingPlayerID {
		return ErrNotHost
	}
	return sess.Start()
}

// Disconnect tears down everything associated with a connection: its
// player leaves any session and is dropped from the lobby pool entirely.
func (r *Registry) Disconnect(connID model.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playerID, ok := r.connToPlayer[connID]
	if !ok {
		return
	}
	_ = r.leaveLocked(playerID)
	delete(r.lobbyPlayers, playerID)
	delete(r.connToPlayer, connID)
}

// Summarize builds the LobbyState snapshot broadcast to every lobby-pool
// member (§4.5 summarize, §4.8 step 3).
func (r *Registry) Summarize() codec.LobbyState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]codec.PlayerSummary, 0, len(r.lobbyPlayers))
	for _, p := range r.lobbyPlayers {
		players = append(players, codec.PlayerSummary{ID: p.ID, Name: p.Name})
	}

	sessions := make([]codec.SessionSummary, 0, len(r.sessions))
	for _, sess := range r.sessions {
		trackName := ""
		if t, ok := r.store.GetTrack(sess.TrackConfigID); ok {
			trackName = t.Name
		}
		hostName := sess.HostPlayerID.String()
		if p, ok := r.lookupName(sess.HostPlayerID); ok {
			hostName = p
		}
		sessions = append(sessions, sess.Summarize(trackName, hostName))
	}

	cars := make([]codec.CarSummary, 0)
	for _, c := range r.store.ListCars() {
		cars = append(cars, codec.CarSummary{ID: c.ID, Name: c.Name})
	}

	tracks := make([]codec.TrackSummary, 0)
	for _, t := range r.store.ListTracks() {
		tracks = append(tracks, codec.TrackSummary{ID: t.ID, Name: t.Name})
	}

	return codec.LobbyState{Players: players, Sessions: sessions, Cars: cars, Tracks: tracks}
}

// lookupName finds a participant's display name across sessions; used
// only to populate SessionSummary.HostName for the lobby broadcast.
func (r *Registry) lookupName(playerID model.PlayerID) (string, bool) {
	for _, sess := range r.sessions {
		if p, ok := sess.Participants[playerID]; ok {
			return p.Name, true
		}
	}
	return "", false
}

// Sessions returns a snapshot of the live session directory for the
// scheduler's advance/emit steps. Session pointers are shared, not
// copied, so mutations the scheduler makes (via Tick) are visible
// immediately; only the map itself is a point-in-time copy.
func (r *Registry) Sessions() map[model.SessionID]*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.SessionID]*session.Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}

// RemoveSession drops a session from the directory, e.g. once the
// scheduler observes ShouldBeRemoved.
func (r *Registry) RemoveSession(id model.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// PlayerSession reports which session a player currently belongs to.
func (r *Registry) PlayerSession(playerID model.PlayerID) (model.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerSession[playerID]
	return id, ok
}

// ConnectionPlayer resolves a connection id to its authenticated player.
func (r *Registry) ConnectionPlayer(connID model.ConnectionID) (model.PlayerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.connToPlayer[connID]
	return id, ok
}

// IsLobbyMember reports whether a player is currently in the lobby pool
// (authenticated but not seated in any session), the audience the
// periodic LobbyState broadcast is scoped to (§4.8 step 3).
func (r *Registry) IsLobbyMember(playerID model.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lobbyPlayers[playerID]
	return ok
}

// ErrNotInSession mirrors session.ErrNotInSession so callers that only
// import registry still get a comparable sentinel.
var ErrNotInSession = session.ErrNotInSession
