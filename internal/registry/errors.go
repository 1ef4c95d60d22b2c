package registry

import "errors"

// Errors returned by the lobby/session registry (§4.5, §7). Errors owned
// by a session itself (SessionFull, WrongState, NotInSession) live in
// internal/session and are returned through this package unchanged.
var (
	ErrNotInLobby       = errors.New("registry: player is not in the lobby pool")
	ErrAlreadyInSession = errors.New("registry: player is already in a session")
	ErrUnknownSession   = errors.New("registry: unknown session id")
	ErrUnknownPlayer   = errors.New("registry: unknown player id")
	ErrUnknownCar      = errors.New("registry: unknown car config id")
	ErrUnknownTrack    = errors.New("registry: unknown track config id")
	ErrAlreadyStarted  = errors.New("registry: session has already started")
	ErrNotHost         = errors.New("registry: requesting player is not the host")
	ErrAuthFailed      = errors.New("registry: authentication failed")
	ErrNoCarSelected   = errors.New("registry: player has not selected a car")
)
