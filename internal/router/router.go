// Package router is the scheduler's drain step made concrete: it reads
// inbound reliable messages and datagrams off the transport layer,
// applies them through the registry, and fans outbound messages back
// out to the right connections and datagram addresses. Splitting this
// from internal/scheduler keeps the tick loop itself free of any
// transport-specific bookkeeping, the same separation the teacher draws
// between World.Update (pure simulation) and the Client pumps (I/O).
package router

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/registry"
	"github.com/gdoct/apexsim-sub001/internal/session"
	"github.com/gdoct/apexsim-sub001/internal/transport"
)

// Settings bundles the router's timing configuration (§6, §10).
type Settings struct {
	HeartbeatTimeout       time.Duration
	MalformedThreshold     int
	MalformedWindowSeconds int
}

// Router implements scheduler.Router against a live registry and
// transport layer.
type Router struct {
	reg       *registry.Registry
	connMgr   *transport.Manager
	datagram  *transport.DatagramSocket
	addresses *transport.AddressRegistry
	settings  Settings
	log       zerolog.Logger

	pendingInputs map[model.PlayerID]model.Input
}

func New(reg *registry.Registry, connMgr *transport.Manager, datagram *transport.DatagramSocket, addresses *transport.AddressRegistry, settings Settings, logger zerolog.Logger) *Router {
	return &Router{
		reg:           reg,
		connMgr:       connMgr,
		datagram:      datagram,
		addresses:     addresses,
		settings:      settings,
		log:           logger.With().Str("component", "router").Logger(),
		pendingInputs: make(map[model.PlayerID]model.Input),
	}
}

// DrainReliable pulls every inbound message currently queued on every
// connection and applies it (§4.8 step 1). It never blocks: each
// connection's inbound channel is drained with a non-blocking receive.
func (r *Router) DrainReliable(currentTick int64) {
	for _, conn := range r.connMgr.All() {
		for {
			select {
			case msg := <-conn.Inbound():
				r.applyReliable(conn, msg, currentTick)
			default:
				goto nextConn
			}
		}
	nextConn:
	}
}

func (r *Router) applyReliable(conn *transport.Connection, msg codec.Message, currentTick int64) {
	conn.Touch(currentTick)

	switch m := msg.(type) {
	case codec.Authenticate:
		r.handleAuthenticate(conn, m)
	case codec.Heartbeat:
		conn.Send(codec.HeartbeatAck{ServerTick: currentTick})
	case codec.SelectCar:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			if err := r.reg.SelectCar(playerID, m.CarID); err != nil {
				r.sendError(conn, err)
			}
		})
	case codec.RequestLobbyState:
		conn.Send(r.reg.Summarize())
	case codec.CreateSession:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			sessionID, err := r.reg.CreateSession(playerID, m.TrackID, int(m.MaxPlayers), int(m.AICount), int(m.LapLimit))
			if err != nil {
				r.sendError(conn, err)
				return
			}
			conn.Send(codec.SessionJoined{SessionID: sessionID, GridPosition: 0})
		})
	case codec.JoinSession:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			slot, err := r.reg.Join(playerID, m.SessionID, false)
			if err != nil {
				r.sendError(conn, err)
				return
			}
			conn.Send(codec.SessionJoined{SessionID: m.SessionID, GridPosition: uint8(slot)})
		})
	case codec.JoinAsSpectator:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			if _, err := r.reg.Join(playerID, m.SessionID, true); err != nil {
				r.sendError(conn, err)
			}
		})
	case codec.LeaveSession:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			if err := r.reg.Leave(playerID); err != nil {
				r.sendError(conn, err)
				return
			}
			r.addresses.Forget(playerID)
			conn.Send(codec.SessionLeft{})
		})
	case codec.StartSession:
		r.withPlayer(conn, func(playerID model.PlayerID) {
			sessionID, ok := r.reg.PlayerSession(playerID)
			if !ok {
				r.sendError(conn, registry.ErrNotInSession)
				return
			}
			if err := r.reg.Start(playerID, sessionID); err != nil {
				r.sendError(conn, err)
				return
			}
			conn.Send(codec.SessionStarting{CountdownSeconds: 5})
		})
	case codec.Disconnect:
		r.disconnect(conn)
	}
}

// HandleConnect wires a freshly accepted connection into the manager
// and starts its pumps, applying the malformed-frame threshold from
// §7/§10: a connection that exceeds it gets a protocol-violation Error
// and is disconnected.
func (r *Router) HandleConnect(conn *transport.Connection) {
	r.connMgr.Add(conn)
	go conn.WritePump()

	window := time.Duration(r.settings.MalformedWindowSeconds) * time.Second
	go conn.ReadPump(
		func() {
			if conn.RecordMalformed(r.settings.MalformedThreshold, window) {
				conn.Send(codec.Error{Code: codec.ErrCodeProtocolViolation, Message: "too many malformed frames"})
				r.disconnect(conn)
			}
		},
		func(err error) {
			r.log.Debug().Err(err).Msg("connection closed")
			r.disconnect(conn)
		},
	)
}

func (r *Router) handleAuthenticate(conn *transport.Connection, m codec.Authenticate) {
	playerID, err := r.reg.Authenticate(conn.ID, m.Token, m.Name)
	if err != nil {
		conn.Send(codec.AuthFailure{Reason: err.Error()})
		return
	}
	r.addresses.RegisterPending(playerID, conn.RemoteIP())
	conn.Send(codec.AuthSuccess{PlayerID: playerID, ServerVersion: "1.0"})
}

func (r *Router) withPlayer(conn *transport.Connection, fn func(playerID model.PlayerID)) {
	playerID, ok := r.reg.ConnectionPlayer(conn.ID)
	if !ok {
		conn.Send(codec.Error{Code: codec.ErrCodeProtocolViolation, Message: "not authenticated"})
		return
	}
	fn(playerID)
}

func (r *Router) sendError(conn *transport.Connection, err error) {
	conn.Send(codec.Error{Code: errorCode(err), Message: err.Error()})
}

// errorCode maps the LobbyError taxonomy (§7) to a stable numeric code
// for the wire.
func errorCode(err error) uint32 {
	switch {
	case errors.Is(err, registry.ErrUnknownSession), errors.Is(err, registry.ErrUnknownCar), errors.Is(err, registry.ErrUnknownTrack), errors.Is(err, registry.ErrUnknownPlayer):
		return 404
	case errors.Is(err, session.ErrSessionFull):
		return 409
	case errors.Is(err, registry.ErrAlreadyStarted), errors.Is(err, session.ErrWrongState), errors.Is(err, registry.ErrAlreadyInSession):
		return 409
	case errors.Is(err, registry.ErrNotHost):
		return 403
	case errors.Is(err, registry.ErrNotInLobby), errors.Is(err, session.ErrNotInSession), errors.Is(err, registry.ErrNoCarSelected):
		return 400
	default:
		return 500
	}
}

// DrainDatagrams pulls the latest coalesced per-player inputs off the
// datagram socket (§4.8 step 1, §9 coalescing).
func (r *Router) DrainDatagrams() {
	latest := r.datagram.DrainLatest()
	for playerID, in := range latest {
		r.pendingInputs[playerID] = model.Input{
			Throttle: in.Throttle,
			Brake:    in.Brake,
			Steering: in.Steering,
		}
	}
}

// InputsFor returns the fresh inputs belonging to a session's
// participants, consuming them so each is applied exactly once.
func (r *Router) InputsFor(sessionID model.SessionID) map[model.PlayerID]model.Input {
	sessions := r.reg.Sessions()
	sess, ok := sessions[sessionID]
	if !ok {
		return nil
	}

	out := make(map[model.PlayerID]model.Input)
	for playerID := range sess.Participants {
		if in, ok := r.pendingInputs[playerID]; ok {
			out[playerID] = in
			delete(r.pendingInputs, playerID)
		}
	}
	return out
}

// EmitTelemetry sends a session's snapshot to every participant and
// spectator's outbound datagram queue (§4.8 step 3). Participants
// receive it over the reliable channel's companion datagram address if
// bound; spectators likewise.
func (r *Router) EmitTelemetry(sessionID model.SessionID, snapshot codec.Telemetry) {
	sessions := r.reg.Sessions()
	sess, ok := sessions[sessionID]
	if !ok {
		return
	}

	for playerID := range sess.Participants {
		r.sendTelemetry(playerID, snapshot)
	}
	for playerID := range sess.Spectators {
		r.sendTelemetry(playerID, snapshot)
	}
}

func (r *Router) sendTelemetry(playerID model.PlayerID, snapshot codec.Telemetry) {
	addr, ok := r.addresses.BindAddr(playerID)
	if !ok {
		return
	}
	r.datagram.Send(addr, snapshot)
}

// EmitLobbyState pushes the periodic lobby snapshot to every lobby-pool
// member on the reliable channel (§4.8 step 3). Players already seated
// in a session get their state from that session's Telemetry/SessionJoined
// flow instead, not the lobby-wide broadcast.
func (r *Router) EmitLobbyState(state codec.LobbyState) {
	for _, conn := range r.connMgr.All() {
		playerID, ok := r.reg.ConnectionPlayer(conn.ID)
		if !ok {
			continue
		}
		if r.reg.IsLobbyMember(playerID) {
			conn.Send(state)
		}
	}
}

// Housekeep runs heartbeat timeouts and slow-connection eviction (§4.8
// step 4, §4.7).
func (r *Router) Housekeep(currentTick int64, tickPeriodMs float64) {
	for _, conn := range r.connMgr.CheckTimeouts(currentTick, tickPeriodMs, r.settings.HeartbeatTimeout) {
		r.disconnect(conn)
	}
	for _, conn := range r.connMgr.SlowConnections() {
		r.disconnect(conn)
	}
}

func (r *Router) disconnect(conn *transport.Connection) {
	playerID, hadPlayer := r.reg.ConnectionPlayer(conn.ID)
	_, wasInSession := r.reg.PlayerSession(playerID)

	r.reg.Disconnect(conn.ID)
	r.connMgr.Remove(conn.ID)
	conn.Close()

	if hadPlayer {
		r.addresses.Forget(playerID)
		if wasInSession {
			r.broadcastPlayerDisconnected(playerID)
		}
	}
}

func (r *Router) broadcastPlayerDisconnected(playerID model.PlayerID) {
	for _, conn := range r.connMgr.All() {
		conn.Send(codec.PlayerDisconnected{PlayerID: playerID})
	}
}
