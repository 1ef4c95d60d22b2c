package codec

import "github.com/gdoct/apexsim-sub001/internal/model"

// Tag identifies a message variant on the wire as a uint32 (§4.1).
type Tag uint32

const (
	TagAuthenticate Tag = iota + 1
	TagHeartbeat
	TagSelectCar
	TagRequestLobbyState
	TagCreateSession
	TagJoinSession
	TagJoinAsSpectator
	TagLeaveSession
	TagStartSession
	TagDisconnect

	TagAuthSuccess
	TagAuthFailure
	TagHeartbeatAck
	TagLobbyState
	TagSessionJoined
	TagSessionLeft
	TagSessionStarting
	TagError
	TagPlayerDisconnected

	TagPlayerInput
	TagTelemetry
)

// Message is implemented by every wire message variant.
type Message interface {
	Tag() Tag
}

// --- client -> server, reliable channel ---

type Authenticate struct {
	Token string
	Name  string
}

func (Authenticate) Tag() Tag { return TagAuthenticate }

type Heartbeat struct {
	ClientTick int64
}

func (Heartbeat) Tag() Tag { return TagHeartbeat }

type SelectCar struct {
	CarID model.CarConfigID
}

func (SelectCar) Tag() Tag { return TagSelectCar }

type RequestLobbyState struct{}

func (RequestLobbyState) Tag() Tag { return TagRequestLobbyState }

type CreateSession struct {
	TrackID    model.TrackConfigID
	MaxPlayers uint8
	AICount    uint8
	LapLimit   uint16
}

func (CreateSession) Tag() Tag { return TagCreateSession }

type JoinSession struct {
	SessionID model.SessionID
}

func (JoinSession) Tag() Tag { return TagJoinSession }

type JoinAsSpectator struct {
	SessionID model.SessionID
}

func (JoinAsSpectator) Tag() Tag { return TagJoinAsSpectator }

type LeaveSession struct{}

func (LeaveSession) Tag() Tag { return TagLeaveSession }

type StartSession struct{}

func (StartSession) Tag() Tag { return TagStartSession }

type Disconnect struct{}

func (Disconnect) Tag() Tag { return TagDisconnect }

// --- server -> client, reliable channel ---

type AuthSuccess struct {
	PlayerID      model.PlayerID
	ServerVersion string
}

func (AuthSuccess) Tag() Tag { return TagAuthSuccess }

type AuthFailure struct {
	Reason string
}

func (AuthFailure) Tag() Tag { return TagAuthFailure }

type HeartbeatAck struct {
	ServerTick int64
}

func (HeartbeatAck) Tag() Tag { return TagHeartbeatAck }

type PlayerSummary struct {
	ID   model.PlayerID
	Name string
}

type SessionSummary struct {
	ID               model.SessionID
	TrackName        string
	HostName         string
	ParticipantCount uint8
	MaxPlayers       uint8
	SpectatorCount   uint8
	State            uint8 // session.Lobby etc, see internal/session
}

type CarSummary struct {
	ID   model.CarConfigID
	Name string
}

type TrackSummary struct {
	ID   model.TrackConfigID
	Name string
}

type LobbyState struct {
	Players  []PlayerSummary
	Sessions []SessionSummary
	Cars     []CarSummary
	Tracks   []TrackSummary
}

func (LobbyState) Tag() Tag { return TagLobbyState }

type SessionJoined struct {
	SessionID   model.SessionID
	GridPosition uint8
}

func (SessionJoined) Tag() Tag { return TagSessionJoined }

type SessionLeft struct{}

func (SessionLeft) Tag() Tag { return TagSessionLeft }

type SessionStarting struct {
	CountdownSeconds uint8
}

func (SessionStarting) Tag() Tag { return TagSessionStarting }

// ErrCodeShuttingDown (503) is reserved for "server shutting down" (§6).
const ErrCodeShuttingDown = 503

// ErrCodeProtocolViolation is used when a connection exceeds the
// malformed-message threshold (§7, §8 scenario 5).
const ErrCodeProtocolViolation = 400

type Error struct {
	Code    uint32
	Message string
}

func (Error) Tag() Tag { return TagError }

type PlayerDisconnected struct {
	PlayerID model.PlayerID
}

func (PlayerDisconnected) Tag() Tag { return TagPlayerDisconnected }

// --- datagram channel ---

type PlayerInput struct {
	ServerTickAck int64
	Throttle      float64
	Brake         float64
	Steering      float64
}

func (PlayerInput) Tag() Tag { return TagPlayerInput }

type CarTelemetry struct {
	PlayerID      model.PlayerID
	X, Y          float64
	Yaw           float64
	Speed         float64
	Throttle      float64
	Steering      float64
	CurrentLap    uint16
	TrackProgress float64
	FinishOrder   *uint16 // nil when unassigned or DNF
	DNF           bool    // left mid-race; FinishOrder stays nil
}

type Telemetry struct {
	ServerTick     int64
	SessionState   uint8
	CountdownMs    *int64 // nil outside Countdown
	Cars           []CarTelemetry
}

func (Telemetry) Tag() Tag { return TagTelemetry }
