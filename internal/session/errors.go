package session

import "errors"

// LobbyError variants owned by the session itself (§4.4, §7). The
// registry owns the rest (NotInLobby, AlreadyInSession, UnknownSession,
// AlreadyStarted, NotHost) in internal/registry.
var (
	ErrSessionFull  = errors.New("session: full")
	ErrWrongState   = errors.New("session: wrong state for this operation")
	ErrNotInSession = errors.New("session: player not in this session")
)
