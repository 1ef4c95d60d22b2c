package codec

// Decode parses a tag + payload produced by Encode. Any structural
// problem — truncation, unknown tag — is reported as ErrMalformed and
// never panics (§4.1).
func Decode(data []byte) (Message, error) {
	r := newReader(data)
	tagValue, err := r.readUint32()
	if err != nil {
		return nil, err
	}

	switch Tag(tagValue) {
	case TagAuthenticate:
		token, err := r.readString()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		return Authenticate{Token: token, Name: name}, nil

	case TagHeartbeat:
		tick, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		return Heartbeat{ClientTick: tick}, nil

	case TagSelectCar:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		return SelectCar{CarID: toCarConfigID(id)}, nil

	case TagRequestLobbyState:
		return RequestLobbyState{}, nil

	case TagCreateSession:
		trackID, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		maxPlayers, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		aiCount, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		lapLimit, err := r.readUint16()
		if err != nil {
			return nil, err
		}
		return CreateSession{
			TrackID:    toTrackConfigID(trackID),
			MaxPlayers: maxPlayers,
			AICount:    aiCount,
			LapLimit:   lapLimit,
		}, nil

	case TagJoinSession:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		return JoinSession{SessionID: toSessionID(id)}, nil

	case TagJoinAsSpectator:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		return JoinAsSpectator{SessionID: toSessionID(id)}, nil

	case TagLeaveSession:
		return LeaveSession{}, nil

	case TagStartSession:
		return StartSession{}, nil

	case TagDisconnect:
		return Disconnect{}, nil

	case TagAuthSuccess:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		version, err := r.readString()
		if err != nil {
			return nil, err
		}
		return AuthSuccess{PlayerID: toPlayerID(id), ServerVersion: version}, nil

	case TagAuthFailure:
		reason, err := r.readString()
		if err != nil {
			return nil, err
		}
		return AuthFailure{Reason: reason}, nil

	case TagHeartbeatAck:
		tick, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		return HeartbeatAck{ServerTick: tick}, nil

	case TagLobbyState:
		return decodeLobbyState(r)

	case TagSessionJoined:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		grid, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		return SessionJoined{SessionID: toSessionID(id), GridPosition: grid}, nil

	case TagSessionLeft:
		return SessionLeft{}, nil

	case TagSessionStarting:
		seconds, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		return SessionStarting{CountdownSeconds: seconds}, nil

	case TagError:
		code, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		message, err := r.readString()
		if err != nil {
			return nil, err
		}
		return Error{Code: code, Message: message}, nil

	case TagPlayerDisconnected:
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		return PlayerDisconnected{PlayerID: toPlayerID(id)}, nil

	case TagPlayerInput:
		tickAck, err := r.readInt64()
		if err != nil {
			return nil, err
		}
		throttle, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		brake, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		steering, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		return PlayerInput{ServerTickAck: tickAck, Throttle: throttle, Brake: brake, Steering: steering}, nil

	case TagTelemetry:
		return decodeTelemetry(r)

	default:
		return nil, malformed("unknown tag")
	}
}

func decodeLobbyState(r *reader) (Message, error) {
	numPlayers, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	players := make([]PlayerSummary, 0, numPlayers)
	for i := uint16(0); i < numPlayers; i++ {
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		players = append(players, PlayerSummary{ID: toPlayerID(id), Name: name})
	}

	numSessions, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	sessions := make([]SessionSummary, 0, numSessions)
	for i := uint16(0); i < numSessions; i++ {
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		trackName, err := r.readString()
		if err != nil {
			return nil, err
		}
		hostName, err := r.readString()
		if err != nil {
			return nil, err
		}
		participantCount, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		maxPlayers, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		spectatorCount, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		state, err := r.readUint8()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, SessionSummary{
			ID: toSessionID(id), TrackName: trackName, HostName: hostName,
			ParticipantCount: participantCount, MaxPlayers: maxPlayers,
			SpectatorCount: spectatorCount, State: state,
		})
	}

	numCars, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	cars := make([]CarSummary, 0, numCars)
	for i := uint16(0); i < numCars; i++ {
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		cars = append(cars, CarSummary{ID: toCarConfigID(id), Name: name})
	}

	numTracks, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	tracks := make([]TrackSummary, 0, numTracks)
	for i := uint16(0); i < numTracks; i++ {
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, TrackSummary{ID: toTrackConfigID(id), Name: name})
	}

	return LobbyState{Players: players, Sessions: sessions, Cars: cars, Tracks: tracks}, nil
}

func decodeTelemetry(r *reader) (Message, error) {
	tick, err := r.readInt64()
	if err != nil {
		return nil, err
	}
	state, err := r.readUint8()
	if err != nil {
		return nil, err
	}
	countdownMs, err := r.readOptionInt64()
	if err != nil {
		return nil, err
	}
	numCars, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	cars := make([]CarTelemetry, 0, numCars)
	for i := uint16(0); i < numCars; i++ {
		id, err := r.readUUID()
		if err != nil {
			return nil, err
		}
		x, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		y, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		yaw, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		speed, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		throttle, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		steering, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		currentLap, err := r.readUint16()
		if err != nil {
			return nil, err
		}
		progress, err := r.readFloat64()
		if err != nil {
			return nil, err
		}
		finishOrder, err := r.readOptionUint16()
		if err != nil {
			return nil, err
		}
		dnf, err := r.readBool()
		if err != nil {
			return nil, err
		}
		cars = append(cars, CarTelemetry{
			PlayerID: toPlayerID(id), X: x, Y: y, Yaw: yaw, Speed: speed,
			Throttle: throttle, Steering: steering, CurrentLap: currentLap,
			TrackProgress: progress, FinishOrder: finishOrder, DNF: dnf,
		})
	}

	return Telemetry{ServerTick: tick, SessionState: state, CountdownMs: countdownMs, Cars: cars}, nil
}
