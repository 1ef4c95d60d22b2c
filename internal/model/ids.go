// Package model holds the shared, dependency-free data types that every
// other package builds on: identifiers, players, car/track configuration,
// and per-car simulation state.
package model

import "github.com/google/uuid"

// PlayerID, SessionID, CarConfigID and TrackConfigID are opaque 128-bit
// identifiers. They are never parsed for structure by the simulation; only
// equality matters.
type (
	PlayerID      uuid.UUID
	SessionID     uuid.UUID
	CarConfigID   uuid.UUID
	TrackConfigID uuid.UUID
)

// ConnectionID is an opaque 64-bit handle for one accepted reliable-channel
// connection, assigned sequentially by the listener. Datagram correlation
// (§3) is done separately, by peer address, in transport.AddressRegistry;
// ConnectionID itself carries no address information.
type ConnectionID uint64

func NewPlayerID() PlayerID           { return PlayerID(uuid.New()) }
func NewSessionID() SessionID         { return SessionID(uuid.New()) }
func (p PlayerID) String() string     { return uuid.UUID(p).String() }
func (s SessionID) String() string    { return uuid.UUID(s).String() }
func (c CarConfigID) String() string  { return uuid.UUID(c).String() }
func (t TrackConfigID) String() string { return uuid.UUID(t).String() }

func (p PlayerID) IsZero() bool  { return uuid.UUID(p) == uuid.Nil }
func (s SessionID) IsZero() bool { return uuid.UUID(s) == uuid.Nil }

func ParsePlayerID(s string) (PlayerID, error) {
	u, err := uuid.Parse(s)
	return PlayerID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	return SessionID(u), err
}
