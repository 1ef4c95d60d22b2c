package codec

import "fmt"

// Encode serializes a message as tag + payload using the stable binary
// encoding of §4.1. It is used directly for datagram payloads and
// wrapped with a length prefix by EncodeFrame for the reliable channel.
func Encode(msg Message) ([]byte, error) {
	w := newWriter()
	w.writeUint32(uint32(msg.Tag()))

	switch m := msg.(type) {
	case Authenticate:
		w.writeString(m.Token)
		w.writeString(m.Name)
	case Heartbeat:
		w.writeInt64(m.ClientTick)
	case SelectCar:
		w.writeUUID(toUUID(m.CarID))
	case RequestLobbyState:
		// no fields
	case CreateSession:
		w.writeUUID(toUUID(m.TrackID))
		w.writeUint8(m.MaxPlayers)
		w.writeUint8(m.AICount)
		w.writeUint16(m.LapLimit)
	case JoinSession:
		w.writeUUID(toUUID(m.SessionID))
	case JoinAsSpectator:
		w.writeUUID(toUUID(m.SessionID))
	case LeaveSession:
		// no fields
	case StartSession:
		// no fields
	case Disconnect:
		// no fields

	case AuthSuccess:
		w.writeUUID(toUUID(m.PlayerID))
		w.writeString(m.ServerVersion)
	case AuthFailure:
		w.writeString(m.Reason)
	case HeartbeatAck:
		w.writeInt64(m.ServerTick)
	case LobbyState:
		encodeLobbyState(w, m)
	case SessionJoined:
		w.writeUUID(toUUID(m.SessionID))
		w.writeUint8(m.GridPosition)
	case SessionLeft:
		// no fields
	case SessionStarting:
		w.writeUint8(m.CountdownSeconds)
	case Error:
		w.writeUint32(m.Code)
		w.writeString(m.Message)
	case PlayerDisconnected:
		w.writeUUID(toUUID(m.PlayerID))

	case PlayerInput:
		w.writeInt64(m.ServerTickAck)
		w.writeFloat64(m.Throttle)
		w.writeFloat64(m.Brake)
		w.writeFloat64(m.Steering)
	case Telemetry:
		encodeTelemetry(w, m)

	default:
		return nil, fmt.Errorf("codec: unknown message type %T", msg)
	}

	return w.bytes(), nil
}

func encodeLobbyState(w *writer, m LobbyState) {
	w.writeUint16(uint16(len(m.Players)))
	for _, p := range m.Players {
		w.writeUUID(toUUID(p.ID))
		w.writeString(p.Name)
	}
	w.writeUint16(uint16(len(m.Sessions)))
	for _, s := range m.Sessions {
		w.writeUUID(toUUID(s.ID))
		w.writeString(s.TrackName)
		w.writeString(s.HostName)
		w.writeUint8(s.ParticipantCount)
		w.writeUint8(s.MaxPlayers)
		w.writeUint8(s.SpectatorCount)
		w.writeUint8(s.State)
	}
	w.writeUint16(uint16(len(m.Cars)))
	for _, c := range m.Cars {
		w.writeUUID(toUUID(c.ID))
		w.writeString(c.Name)
	}
	w.writeUint16(uint16(len(m.Tracks)))
	for _, t := range m.Tracks {
		w.writeUUID(toUUID(t.ID))
		w.writeString(t.Name)
	}
}

func encodeTelemetry(w *writer, m Telemetry) {
	w.writeInt64(m.ServerTick)
	w.writeUint8(m.SessionState)
	w.writeOptionInt64(m.CountdownMs)
	w.writeUint16(uint16(len(m.Cars)))
	for _, c := range m.Cars {
		w.writeUUID(toUUID(c.PlayerID))
		w.writeFloat64(c.X)
		w.writeFloat64(c.Y)
		w.writeFloat64(c.Yaw)
		w.writeFloat64(c.Speed)
		w.writeFloat64(c.Throttle)
		w.writeFloat64(c.Steering)
		w.writeUint16(c.CurrentLap)
		w.writeFloat64(c.TrackProgress)
		w.writeOptionUint16(c.FinishOrder)
		w.writeBool(c.DNF)
	}
}
